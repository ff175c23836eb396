package draw

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/gacha/pkg/fairness"
)

// Card is the catalog view of a master card document.
type Card struct {
	CardID       string
	CollectionID string
	Name         string
	Rarity       int
	PointWorth   int64
	ImageURL     string
}

// CardCatalog resolves card metadata for drawn card ids.
type CardCatalog interface {
	GetCard(ctx context.Context, collectionID string, cardID string) (Card, error)
}

// PackStore reads validated pack definitions.
type PackStore interface {
	GetPack(ctx context.Context, collectionID string, packID string) (Pack, bool, error)
	IncrementPopularity(ctx context.Context, collectionID string, packID string, delta int64) error
}

// OpeningRecord is one append-only provenance entry in the pack-opening
// ledger. It carries everything needed for an offline fairness audit.
type OpeningRecord struct {
	UserID         string
	CollectionID   string
	PackID         string
	CardID         string
	RarityID       string
	NumDraw        int
	ServerSeedHash string
	ClientSeed     string
	Nonce          int64
	RandomHash     string
	CreatedUnixUTC int64
}

// OpeningLog is the append-only pack-opening ledger.
type OpeningLog interface {
	Append(ctx context.Context, record OpeningRecord) error
}

// Result is one successful draw with its audit provenance.
type Result struct {
	CardID         string
	CollectionID   string
	RarityID       string
	Rarity         int
	CardName       string
	PointWorth     int64
	ImageURL       string
	NumDraw        int
	ServerSeedHash string
	ClientSeed     string
	Nonce          int64
	RandomHash     string
}

// Failure is one draw in a batch that could not be completed. The nonce it
// consumed is still recorded in the opening ledger.
type Failure struct {
	NumDraw int
	Reason  string
}

// BatchResult returns per-entry outcomes: a batch where some draws fail still
// reports the draws that succeeded.
type BatchResult struct {
	PackID       string
	CollectionID string
	PricePoints  int64
	Results      []Result
	Failures     []Failure
}

// Orchestrator drives single and batch draws against pack definitions.
type Orchestrator struct {
	packs    PackStore
	catalog  CardCatalog
	fair     *fairness.Engine
	openings OpeningLog
	nowFn    func() int64
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(packs PackStore, catalog CardCatalog, fair *fairness.Engine, openings OpeningLog, now func() int64) (*Orchestrator, error) {
	if packs == nil || catalog == nil || fair == nil || openings == nil || now == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidOrchestrator)
	}
	return &Orchestrator{packs: packs, catalog: catalog, fair: fair, openings: openings, nowFn: now}, nil
}

// batch sizes offered by the product
var allowedCounts = map[int]bool{1: true, 5: true, 10: true}

// Draw performs count draws from one pack. All draws in the batch share the
// user's current seed pair and consume strictly increasing nonces, and every
// draw appends one opening-ledger record, including draws that subsequently
// fail to resolve: a consumed nonce is a real outcome and must stay auditable.
func (orchestrator *Orchestrator) Draw(ctx context.Context, userID string, collectionID string, packID string, count int) (BatchResult, error) {
	if !allowedCounts[count] {
		return BatchResult{}, fmt.Errorf("%w: %d (must be 1, 5 or 10)", ErrInvalidDrawCount, count)
	}
	pack, found, err := orchestrator.packs.GetPack(ctx, collectionID, packID)
	if err != nil {
		return BatchResult{}, err
	}
	if !found {
		return BatchResult{}, fmt.Errorf("%w: %s/%s", ErrUnknownPack, collectionID, packID)
	}
	if err := pack.Validate(); err != nil {
		return BatchResult{}, err
	}
	outcomes := pack.Outcomes()

	batch := BatchResult{PackID: packID, CollectionID: collectionID, PricePoints: pack.PricePoints}
	for numDraw := 1; numDraw <= count; numDraw++ {
		roll, err := orchestrator.fair.NextRandom(ctx, userID)
		if err != nil {
			// No nonce was consumed, nothing to record.
			batch.Failures = append(batch.Failures, Failure{NumDraw: numDraw, Reason: err.Error()})
			continue
		}
		outcome, sampleErr := Sample(outcomes, roll.Value)
		record := OpeningRecord{
			UserID:         userID,
			CollectionID:   collectionID,
			PackID:         packID,
			CardID:         outcome.CardID,
			RarityID:       outcome.RarityID,
			NumDraw:        numDraw,
			ServerSeedHash: roll.ServerSeedHash,
			ClientSeed:     roll.ClientSeed,
			Nonce:          roll.Nonce,
			RandomHash:     roll.RandomHash,
			CreatedUnixUTC: orchestrator.nowFn(),
		}
		if err := orchestrator.openings.Append(ctx, record); err != nil {
			return batch, fmt.Errorf("opening ledger append for nonce %d: %w", roll.Nonce, err)
		}
		if sampleErr != nil {
			batch.Failures = append(batch.Failures, Failure{NumDraw: numDraw, Reason: sampleErr.Error()})
			continue
		}
		card, err := orchestrator.catalog.GetCard(ctx, collectionID, outcome.CardID)
		if err != nil {
			batch.Failures = append(batch.Failures, Failure{NumDraw: numDraw, Reason: err.Error()})
			continue
		}
		batch.Results = append(batch.Results, Result{
			CardID:         outcome.CardID,
			CollectionID:   collectionID,
			RarityID:       outcome.RarityID,
			Rarity:         card.Rarity,
			CardName:       card.Name,
			PointWorth:     card.PointWorth,
			ImageURL:       card.ImageURL,
			NumDraw:        numDraw,
			ServerSeedHash: roll.ServerSeedHash,
			ClientSeed:     roll.ClientSeed,
			Nonce:          roll.Nonce,
			RandomHash:     roll.RandomHash,
		})
	}

	if len(batch.Results) > 0 {
		// Popularity is advisory; a failed bump never fails the draw.
		_ = orchestrator.packs.IncrementPopularity(ctx, collectionID, packID, int64(len(batch.Results)))
	}
	return batch, nil
}
