package fairness

import "errors"

// Domain-level error values returned by the fairness engine.
var (
	ErrNotCommitted      = errors.New("server seed not committed")
	ErrFairnessViolation = errors.New("fairness violation")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidSeedState  = errors.New("invalid seed state")
	ErrInvalidEngine     = errors.New("invalid engine config")
)
