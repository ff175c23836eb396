package draw

import "fmt"

// Outcome is one entry of a flattened weighted outcome list.
type Outcome struct {
	CardID      string
	RarityID    string
	Probability float64
}

// Sample selects one outcome by cumulative-sum over the list's stored order.
// The first outcome whose cumulative upper bound exceeds r wins. If rounding
// leaves the total mass short of 1.0 and r falls in the gap, the last outcome
// is selected; historical draws replay identically as long as the outcome
// order is unchanged.
func Sample(outcomes []Outcome, r float64) (Outcome, error) {
	if len(outcomes) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty outcome list", ErrInvalidPackDefinition)
	}
	if r < 0 || r >= 1 {
		return Outcome{}, fmt.Errorf("%w: %v outside [0,1)", ErrInvalidRandomValue, r)
	}
	cumulative := 0.0
	for _, outcome := range outcomes {
		cumulative += outcome.Probability
		if r < cumulative {
			return outcome, nil
		}
	}
	return outcomes[len(outcomes)-1], nil
}
