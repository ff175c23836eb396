package draw

import (
	"errors"
	"testing"
)

func threeOutcomes() []Outcome {
	return []Outcome{
		{CardID: "A", Probability: 0.5},
		{CardID: "B", Probability: 0.3},
		{CardID: "C", Probability: 0.2},
	}
}

func TestSampleCumulativeBoundaries(test *testing.T) {
	test.Parallel()
	cases := []struct {
		r    float64
		want string
	}{
		{0.0, "A"},
		{0.49, "A"},
		{0.5, "B"},
		{0.79, "B"},
		{0.8, "C"},
		{0.999999, "C"},
	}
	for _, testCase := range cases {
		outcome, err := Sample(threeOutcomes(), testCase.r)
		if err != nil {
			test.Fatalf("sample r=%v: %v", testCase.r, err)
		}
		if outcome.CardID != testCase.want {
			test.Fatalf("r=%v selected %s, want %s", testCase.r, outcome.CardID, testCase.want)
		}
	}
}

func TestSampleClampsRoundingGapToLastOutcome(test *testing.T) {
	test.Parallel()
	short := []Outcome{
		{CardID: "A", Probability: 0.3333333333},
		{CardID: "B", Probability: 0.3333333333},
		{CardID: "C", Probability: 0.3333333333},
	}
	outcome, err := Sample(short, 0.9999999999999)
	if err != nil {
		test.Fatalf("sample: %v", err)
	}
	if outcome.CardID != "C" {
		test.Fatalf("gap roll selected %s, want last outcome C", outcome.CardID)
	}
}

func TestSampleRejectsEmptyAndOutOfRange(test *testing.T) {
	test.Parallel()
	if _, err := Sample(nil, 0.5); !errors.Is(err, ErrInvalidPackDefinition) {
		test.Fatalf("empty outcome list: %v", err)
	}
	if _, err := Sample(threeOutcomes(), 1.0); !errors.Is(err, ErrInvalidRandomValue) {
		test.Fatalf("r=1.0 accepted: %v", err)
	}
	if _, err := Sample(threeOutcomes(), -0.1); !errors.Is(err, ErrInvalidRandomValue) {
		test.Fatalf("negative r accepted: %v", err)
	}
}

func TestPackValidateAndOutcomes(test *testing.T) {
	test.Parallel()
	pack := Pack{
		ID:           "starter",
		CollectionID: "base",
		PricePoints:  100,
		SplitPolicy:  SplitUniform,
		Rarities: []Rarity{
			{ID: "common", Probability: 0.8, CardPool: []string{"c1", "c2"}},
			{ID: "rare", Probability: 0.2, CardPool: []string{"r1"}},
		},
	}
	if err := pack.Validate(); err != nil {
		test.Fatalf("valid pack rejected: %v", err)
	}
	outcomes := pack.Outcomes()
	if len(outcomes) != 3 {
		test.Fatalf("expected 3 flattened outcomes, got %d", len(outcomes))
	}
	if outcomes[0].CardID != "c1" || outcomes[0].Probability != 0.4 {
		test.Fatalf("uniform split broken: %+v", outcomes[0])
	}
	if outcomes[2].CardID != "r1" || outcomes[2].Probability != 0.2 {
		test.Fatalf("rarity order not stable: %+v", outcomes[2])
	}

	badSum := pack
	badSum.Rarities = []Rarity{{ID: "common", Probability: 0.5, CardPool: []string{"c1"}}}
	if err := badSum.Validate(); !errors.Is(err, ErrInvalidPackDefinition) {
		test.Fatalf("probability sum 0.5 accepted: %v", err)
	}

	emptyPool := pack
	emptyPool.Rarities = []Rarity{{ID: "common", Probability: 1.0, CardPool: nil}}
	if err := emptyPool.Validate(); !errors.Is(err, ErrInvalidPackDefinition) {
		test.Fatalf("empty pool accepted: %v", err)
	}

	badPolicy := pack
	badPolicy.SplitPolicy = "weighted"
	if err := badPolicy.Validate(); !errors.Is(err, ErrInvalidPackDefinition) {
		test.Fatalf("unknown split policy accepted: %v", err)
	}
}
