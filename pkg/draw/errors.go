package draw

import "errors"

// Domain-level error values returned by the draw components.
var (
	ErrInvalidPackDefinition = errors.New("invalid pack definition")
	ErrUnknownPack           = errors.New("unknown pack")
	ErrUnknownCard           = errors.New("unknown card")
	ErrInvalidDrawCount      = errors.New("invalid draw count")
	ErrInvalidRandomValue    = errors.New("invalid random value")
	ErrInvalidOrchestrator   = errors.New("invalid orchestrator config")
)
