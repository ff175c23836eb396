package market

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
)

// CoordinatorOption configures a Coordinator instance.
type CoordinatorOption func(*Coordinator)

// OperationLogger records domain-level events emitted by coordinator
// operations, including compensation outcomes that must never be dropped.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing marketplace operation.
type OperationLog struct {
	Operation    string
	OperationID  string
	UserID       string
	ListingID    string
	OfferID      string
	CollectionID string
	CardID       string
	Quantity     int64
	Points       int64
	Status       string
	Detail       string
	Error        error
}

// WithOperationLogger wires a logger that receives callbacks for every
// operation.
func WithOperationLogger(logger OperationLogger) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.logger = logger
	}
}

// WithConflictRetries overrides the bounded retry budget for store
// transaction conflicts.
func WithConflictRetries(retries int) CoordinatorOption {
	return func(coordinator *Coordinator) {
		if retries >= 0 {
			coordinator.conflictRetries = retries
		}
	}
}

// WithIDGenerator overrides operation-id generation (tests).
func WithIDGenerator(newID func() string) CoordinatorOption {
	return func(coordinator *Coordinator) {
		if newID != nil {
			coordinator.newID = newID
		}
	}
}

// WithPackStore enables the pre-draw balance check in OpenPack, so a batch
// the user cannot afford never consumes fairness nonces.
func WithPackStore(packs draw.PackStore) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.packs = packs
	}
}

// WithClock overrides the coordinator clock (tests).
func WithClock(now func() time.Time) CoordinatorOption {
	return func(coordinator *Coordinator) {
		if now != nil {
			coordinator.nowFn = now
		}
	}
}
