package draw

import (
	"fmt"
	"math"
)

// SplitPolicy names how a rarity's probability mass is distributed across the
// cards in its pool. The policy is explicit on every pack so the sampler never
// has to infer one.
type SplitPolicy string

// SplitUniform divides a rarity's probability evenly across its card pool.
const SplitUniform SplitPolicy = "uniform"

const probabilityTolerance = 1e-9

// Rarity is one tier of a pack: a probability and the pool of cards that can
// come out of it.
type Rarity struct {
	ID          string
	Probability float64
	CardPool    []string
}

// Pack is a validated pack definition. Rarity order is significant: flattening
// walks rarities and pools in stored order, and changing that order would
// change which card a historical roll selects.
type Pack struct {
	ID           string
	CollectionID string
	PricePoints  int64
	SplitPolicy  SplitPolicy
	Rarities     []Rarity
	Popularity   int64
}

// Validate checks the pack once, at write time. Draws assume a valid pack.
func (pack Pack) Validate() error {
	if len(pack.Rarities) == 0 {
		return fmt.Errorf("%w: pack %s has no rarities", ErrInvalidPackDefinition, pack.ID)
	}
	if pack.SplitPolicy != SplitUniform {
		return fmt.Errorf("%w: pack %s has unknown split policy %q", ErrInvalidPackDefinition, pack.ID, pack.SplitPolicy)
	}
	if pack.PricePoints < 0 {
		return fmt.Errorf("%w: pack %s has negative price", ErrInvalidPackDefinition, pack.ID)
	}
	totalProbability := 0.0
	for _, rarity := range pack.Rarities {
		if rarity.Probability <= 0 || rarity.Probability > 1 {
			return fmt.Errorf("%w: rarity %s probability %v outside (0,1]", ErrInvalidPackDefinition, rarity.ID, rarity.Probability)
		}
		if len(rarity.CardPool) == 0 {
			return fmt.Errorf("%w: rarity %s has an empty card pool", ErrInvalidPackDefinition, rarity.ID)
		}
		totalProbability += rarity.Probability
	}
	if math.Abs(totalProbability-1.0) > probabilityTolerance {
		return fmt.Errorf("%w: pack %s probabilities sum to %v", ErrInvalidPackDefinition, pack.ID, totalProbability)
	}
	return nil
}

// Outcomes flattens the rarity table into the stable weighted outcome list the
// sampler consumes. Under SplitUniform each card in a pool carries
// rarity.Probability / len(pool).
func (pack Pack) Outcomes() []Outcome {
	outcomes := make([]Outcome, 0)
	for _, rarity := range pack.Rarities {
		perCard := rarity.Probability / float64(len(rarity.CardPool))
		for _, cardID := range rarity.CardPool {
			outcomes = append(outcomes, Outcome{
				CardID:      cardID,
				RarityID:    rarity.ID,
				Probability: perCard,
			})
		}
	}
	return outcomes
}
