package market

import (
	"context"
	"errors"
	"testing"
)

func fusionFixtureStore() *memoryStore {
	store := newMemoryStore()
	store.recipes["recipe-1"] = FusionRecipe{
		ID:                 "recipe-1",
		ResultCollectionID: "col-1",
		ResultCardID:       "card-fused",
		Ingredients: []FusionIngredient{
			{CollectionID: "col-1", CardID: "card-a", Quantity: 2},
			{CollectionID: "col-1", CardID: "card-b", Quantity: 1},
		},
	}
	store.userCards[cardKey("user-1", "col-1", "card-a")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-a", Quantity: 3,
	}
	store.userCards[cardKey("user-1", "col-1", "card-b")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-b", Quantity: 1,
	}
	return store
}

func TestPerformFusionConsumesIngredientsAndGrantsResult(test *testing.T) {
	test.Parallel()

	store := fusionFixtureStore()
	remote := &stubRemoteLedger{}
	coordinator := mustCoordinator(test, store, remote)

	outcome, err := coordinator.PerformFusion(context.Background(), "user-1", "recipe-1")
	if err != nil {
		test.Fatalf("PerformFusion: %v", err)
	}
	if !outcome.Fused || outcome.ResultCardID != "card-fused" {
		test.Fatalf("unexpected outcome: %+v", outcome)
	}

	cardA := store.userCards[cardKey("user-1", "col-1", "card-a")]
	if cardA.Quantity != 1 {
		test.Fatalf("expected card-a reduced to 1, got %d", cardA.Quantity)
	}
	if _, found := store.userCards[cardKey("user-1", "col-1", "card-b")]; found {
		test.Fatal("expected card-b deleted after full consumption")
	}
	if store.fusionCounts["user-1"] != 1 {
		test.Fatalf("expected fusion count 1, got %d", store.fusionCounts["user-1"])
	}
	if len(remote.applies) != 1 || len(remote.applies[0].CardGrants) != 1 {
		test.Fatalf("expected one remote grant, got %+v", remote.applies)
	}
	grant := remote.applies[0].CardGrants[0]
	if grant.CardID != "card-fused" || grant.Quantity != 1 {
		test.Fatalf("unexpected grant: %+v", grant)
	}
}

func TestPerformFusionReportsAllMissingIngredientsWithoutMutating(test *testing.T) {
	test.Parallel()

	store := fusionFixtureStore()
	// card-a short by one, card-b fully locked by a listing
	store.userCards[cardKey("user-1", "col-1", "card-a")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-a", Quantity: 1,
	}
	store.userCards[cardKey("user-1", "col-1", "card-b")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-b", Quantity: 1, LockedQuantity: 1,
	}
	remote := &stubRemoteLedger{}
	coordinator := mustCoordinator(test, store, remote)

	outcome, err := coordinator.PerformFusion(context.Background(), "user-1", "recipe-1")
	if err != nil {
		test.Fatalf("PerformFusion: %v", err)
	}
	if outcome.Fused {
		test.Fatal("expected fusion to report missing ingredients")
	}
	if len(outcome.Missing) != 2 {
		test.Fatalf("expected both shortfalls reported, got %+v", outcome.Missing)
	}
	first := outcome.Missing[0]
	if first.CardID != "card-a" || first.Required != 2 || first.Available != 1 {
		test.Fatalf("unexpected first shortfall: %+v", first)
	}
	second := outcome.Missing[1]
	if second.CardID != "card-b" || second.Available != 0 {
		test.Fatalf("locked quantity must not count as available: %+v", second)
	}

	if store.userCards[cardKey("user-1", "col-1", "card-a")].Quantity != 1 {
		test.Fatal("missing-ingredient outcome must not mutate inventory")
	}
	if len(remote.applies) != 0 {
		test.Fatal("missing-ingredient outcome must not call the remote ledger")
	}
	if store.fusionCounts["user-1"] != 0 {
		test.Fatal("missing-ingredient outcome must not count as a fusion")
	}
}

func TestPerformFusionRestoresIngredientsOnRemoteFailure(test *testing.T) {
	test.Parallel()

	store := fusionFixtureStore()
	remote := &stubRemoteLedger{err: errors.New("remote unavailable")}
	logger := &recordingOperationLogger{}
	coordinator := mustCoordinator(test, store, remote, WithOperationLogger(logger))

	_, err := coordinator.PerformFusion(context.Background(), "user-1", "recipe-1")
	if !errors.Is(err, ErrRemoteService) {
		test.Fatalf("expected ErrRemoteService, got %v", err)
	}

	cardA := store.userCards[cardKey("user-1", "col-1", "card-a")]
	if cardA.Quantity != 3 {
		test.Fatalf("expected card-a restored to 3, got %d", cardA.Quantity)
	}
	cardB := store.userCards[cardKey("user-1", "col-1", "card-b")]
	if cardB.Quantity != 1 {
		test.Fatalf("expected card-b restored to 1, got %d", cardB.Quantity)
	}
	if _, found := logger.lastByStatus(operationStatusCompensated); !found {
		test.Fatal("expected a compensation log entry")
	}
}

func TestPerformFusionUnknownRecipe(test *testing.T) {
	test.Parallel()

	coordinator := mustCoordinator(test, newMemoryStore(), &stubRemoteLedger{})
	if _, err := coordinator.PerformFusion(context.Background(), "user-1", "missing"); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}
