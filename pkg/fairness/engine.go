package fairness

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	serverSeedBytes = 32
	clientSeedBytes = 16
)

// Engine implements the commit-reveal fairness scheme: the server commits to
// sha256(server_seed) before serving any draw on that seed, then derives each
// outcome from HMAC-SHA256(key=server_seed, message=client_seed || nonce).
type Engine struct {
	store   SeedStore
	entropy io.Reader
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEntropy overrides the randomness source (tests).
func WithEntropy(entropy io.Reader) EngineOption {
	return func(engine *Engine) {
		engine.entropy = entropy
	}
}

// NewEngine wires an Engine over a SeedStore.
func NewEngine(store SeedStore, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: seed store dependency is nil", ErrInvalidEngine)
	}
	engine := &Engine{store: store, entropy: rand.Reader}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	return engine, nil
}

// CommitSeed rotates the user's server seed and returns the hash of the new
// seed. The hash must reach the user before the first draw on the seed; the
// nonce restarts because it is scoped to the server seed.
func (engine *Engine) CommitSeed(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	var committedHash string
	err := engine.store.WithTx(ctx, func(ctx context.Context, txStore SeedStore) error {
		state, found, err := txStore.GetSeedState(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			state = SeedState{UserID: userID}
		}
		if state.ClientSeed == "" {
			clientSeed, err := engine.randomHex(clientSeedBytes)
			if err != nil {
				return err
			}
			state.ClientSeed = clientSeed
		}
		serverSeed, err := engine.randomHex(serverSeedBytes)
		if err != nil {
			return err
		}
		state.ServerSeed = serverSeed
		state.ServerSeedHash = hashHex(serverSeed)
		state.Nonce = 0
		committedHash = state.ServerSeedHash
		return txStore.SaveSeedState(ctx, state)
	})
	if err != nil {
		return "", err
	}
	return committedHash, nil
}

// RotateClientSeed replaces the user's client seed. The nonce is preserved:
// it is unique per server seed, and older draws stay verifiable against the
// seed pair they were made with.
func (engine *Engine) RotateClientSeed(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	var rotatedSeed string
	err := engine.store.WithTx(ctx, func(ctx context.Context, txStore SeedStore) error {
		state, found, err := txStore.GetSeedState(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: no seed state for user %s", ErrNotCommitted, userID)
		}
		clientSeed, err := engine.randomHex(clientSeedBytes)
		if err != nil {
			return err
		}
		state.ClientSeed = clientSeed
		rotatedSeed = clientSeed
		return txStore.SaveSeedState(ctx, state)
	})
	if err != nil {
		return "", err
	}
	return rotatedSeed, nil
}

// NextRandom consumes the next nonce for the user and returns the derived
// uniform value in [0,1) with its provenance. The nonce read and increment
// share one store transaction, so concurrent draws serialize.
func (engine *Engine) NextRandom(ctx context.Context, userID string) (Roll, error) {
	if strings.TrimSpace(userID) == "" {
		return Roll{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	var roll Roll
	err := engine.store.WithTx(ctx, func(ctx context.Context, txStore SeedStore) error {
		state, found, err := txStore.GetSeedState(ctx, userID)
		if err != nil {
			return err
		}
		if !found || state.ServerSeed == "" {
			return fmt.Errorf("%w: user %s has no committed server seed", ErrNotCommitted, userID)
		}
		nonceUsed := state.Nonce + 1
		randomHash := randomHashHex(state.ServerSeed, state.ClientSeed, nonceUsed)
		roll = Roll{
			Value:          valueFromHash(randomHash),
			Nonce:          nonceUsed,
			RandomHash:     randomHash,
			ServerSeedHash: state.ServerSeedHash,
			ClientSeed:     state.ClientSeed,
		}
		state.Nonce = nonceUsed
		return txStore.SaveSeedState(ctx, state)
	})
	if err != nil {
		return Roll{}, err
	}
	return roll, nil
}

// Reveal discloses the secret server seed so past draws can be audited, and
// commits a fresh seed in the same transaction. A revealed seed never serves
// another draw: anyone holding the seed, the client seed, and the nonce could
// precompute every remaining outcome on it. The hash of the replacement seed
// is returned alongside the revealed state.
func (engine *Engine) Reveal(ctx context.Context, userID string) (SeedState, string, error) {
	if strings.TrimSpace(userID) == "" {
		return SeedState{}, "", fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	var revealed SeedState
	var nextHash string
	err := engine.store.WithTx(ctx, func(ctx context.Context, txStore SeedStore) error {
		stored, found, err := txStore.GetSeedState(ctx, userID)
		if err != nil {
			return err
		}
		if !found || stored.ServerSeed == "" {
			return fmt.Errorf("%w: user %s has no committed server seed", ErrNotCommitted, userID)
		}
		revealed = stored

		serverSeed, err := engine.randomHex(serverSeedBytes)
		if err != nil {
			return err
		}
		stored.ServerSeed = serverSeed
		stored.ServerSeedHash = hashHex(serverSeed)
		stored.Nonce = 0
		nextHash = stored.ServerSeedHash
		return txStore.SaveSeedState(ctx, stored)
	})
	if err != nil {
		return SeedState{}, "", err
	}
	return revealed, nextHash, nil
}

// Verify recomputes the committed hash and the outcome HMAC for a historical
// draw. Any mismatch is ErrFairnessViolation; it is never reported as valid.
func Verify(serverSeed string, serverSeedHash string, clientSeed string, nonce int64, expectedRandomHash string) error {
	if hashHex(serverSeed) != serverSeedHash {
		return fmt.Errorf("%w: server seed hash mismatch", ErrFairnessViolation)
	}
	recomputed := randomHashHex(serverSeed, clientSeed, nonce)
	if subtle.ConstantTimeCompare([]byte(recomputed), []byte(expectedRandomHash)) != 1 {
		return fmt.Errorf("%w: random hash mismatch at nonce %d", ErrFairnessViolation, nonce)
	}
	return nil
}

// ValueFromHash maps a hex HMAC digest onto [0,1) the same way NextRandom
// does, so auditors can reproduce the sampled outcome, not just the hash.
func ValueFromHash(randomHash string) (float64, error) {
	digest, err := hex.DecodeString(randomHash)
	if err != nil || len(digest) < 8 {
		return 0, fmt.Errorf("%w: malformed random hash", ErrFairnessViolation)
	}
	return float64(binary.BigEndian.Uint64(digest[:8])>>11) / (1 << 53), nil
}

func (engine *Engine) randomHex(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := io.ReadFull(engine.entropy, buffer); err != nil {
		return "", fmt.Errorf("%w: entropy read failed: %v", ErrInvalidSeedState, err)
	}
	return hex.EncodeToString(buffer), nil
}

func hashHex(serverSeed string) string {
	digest := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(digest[:])
}

func randomHashHex(serverSeed string, clientSeed string, nonce int64) string {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	mac.Write([]byte(clientSeed + strconv.FormatInt(nonce, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// valueFromHash assumes a digest produced by randomHashHex; the top 53 bits of
// the first eight bytes keep the result exact in a float64.
func valueFromHash(randomHash string) float64 {
	digest, _ := hex.DecodeString(randomHash)
	return float64(binary.BigEndian.Uint64(digest[:8])>>11) / (1 << 53)
}
