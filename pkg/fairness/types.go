package fairness

import "context"

// SeedState is the per-user commit-reveal state. ServerSeed stays secret until
// the operator rotates it; ServerSeedHash is published before any draw that
// uses the seed. Nonce is scoped to the server seed and never decreases.
type SeedState struct {
	UserID         string
	ServerSeed     string
	ServerSeedHash string
	ClientSeed     string
	Nonce          int64
}

// Roll is one deterministic pseudo-random outcome plus the provenance needed
// to verify it after the fact.
type Roll struct {
	Value          float64
	Nonce          int64
	RandomHash     string
	ServerSeedHash string
	ClientSeed     string
}

// SeedStore persists seed state. Reads and the nonce increment that follows
// them must happen inside one WithTx call.
type SeedStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore SeedStore) error) error
	GetSeedState(ctx context.Context, userID string) (SeedState, bool, error)
	SaveSeedState(ctx context.Context, state SeedState) error
}
