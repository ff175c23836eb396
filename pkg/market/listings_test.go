package market

import (
	"context"
	"errors"
	"testing"
)

func TestCreateListingReservesQuantity(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1", Quantity: 5, LockedQuantity: 1,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{}, WithIDGenerator(sequentialIDs("listing")))

	listing, err := coordinator.CreateListing(context.Background(), "user-1", "col-1", "card-1", 3, 120, 0)
	if err != nil {
		test.Fatalf("CreateListing: %v", err)
	}
	if listing.Status != ListingStatusOpen || listing.Quantity != 3 {
		test.Fatalf("unexpected listing: %+v", listing)
	}

	card := store.userCards[cardKey("user-1", "col-1", "card-1")]
	if card.Quantity != 5 || card.LockedQuantity != 4 {
		test.Fatalf("expected quantity untouched and lock raised, got %+v", card)
	}
	stored, found := store.listings[listing.ID]
	if !found || stored.PricePoints != 120 {
		test.Fatalf("listing not persisted as expected: %+v", stored)
	}
}

func TestCreateListingRejectsOverAvailable(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1", Quantity: 5, LockedQuantity: 4,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{})

	if _, err := coordinator.CreateListing(context.Background(), "user-1", "col-1", "card-1", 2, 100, 0); !errors.Is(err, ErrInsufficientQuantity) {
		test.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}
	if _, err := coordinator.CreateListing(context.Background(), "user-1", "col-1", "card-1", 1, 0, 0); !errors.Is(err, ErrValidation) {
		test.Fatalf("expected ErrValidation for missing prices, got %v", err)
	}
	if card := store.userCards[cardKey("user-1", "col-1", "card-1")]; card.LockedQuantity != 4 {
		test.Fatalf("rejected listings must not change locks, got %+v", card)
	}
}

func TestWithdrawListingReleasesReservationAndKeepsDocument(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1", Quantity: 5, LockedQuantity: 3,
	}
	store.listings["listing-1"] = Listing{
		ID: "listing-1", OwnerID: "user-1", CollectionID: "col-1", CardID: "card-1",
		Quantity: 3, PricePoints: 100, Status: ListingStatusOpen,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{})

	if err := coordinator.WithdrawListing(context.Background(), "user-1", "listing-1"); err != nil {
		test.Fatalf("WithdrawListing: %v", err)
	}

	card := store.userCards[cardKey("user-1", "col-1", "card-1")]
	if card.LockedQuantity != 0 || card.Quantity != 5 {
		test.Fatalf("unexpected card after release: %+v", card)
	}
	listing, found := store.listings["listing-1"]
	if !found || listing.Status != ListingStatusWithdrawn {
		test.Fatalf("expected retained listing with withdrawn status, got %+v found=%v", listing, found)
	}
}

func TestWithdrawListingGuards(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.listings["listing-1"] = Listing{
		ID: "listing-1", OwnerID: "user-1", Status: ListingStatusWithdrawn,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{})

	if err := coordinator.WithdrawListing(context.Background(), "user-2", "listing-1"); !errors.Is(err, ErrNotOwner) {
		test.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := coordinator.WithdrawListing(context.Background(), "user-1", "listing-1"); !errors.Is(err, ErrListingNotOpen) {
		test.Fatalf("expected ErrListingNotOpen, got %v", err)
	}
	if err := coordinator.WithdrawListing(context.Background(), "user-1", "missing"); !errors.Is(err, ErrNotFound) {
		test.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithdrawListingLogsClampAnomaly(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1", Quantity: 5, LockedQuantity: 1,
	}
	store.listings["listing-1"] = Listing{
		ID: "listing-1", OwnerID: "user-1", CollectionID: "col-1", CardID: "card-1",
		Quantity: 3, Status: ListingStatusOpen,
	}
	logger := &recordingOperationLogger{}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{}, WithOperationLogger(logger))

	if err := coordinator.WithdrawListing(context.Background(), "user-1", "listing-1"); err != nil {
		test.Fatalf("clamped withdrawal must still succeed: %v", err)
	}
	if card := store.userCards[cardKey("user-1", "col-1", "card-1")]; card.LockedQuantity != 0 {
		test.Fatalf("expected lock clamped to zero, got %+v", card)
	}
	entry, found := logger.lastByStatus(operationStatusOK)
	if !found || entry.Detail == "" {
		test.Fatalf("expected clamp anomaly noted in log detail, got %+v", entry)
	}
}

func TestDestroyCardCreditsPointWorth(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.balances["user-1"] = 10
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1",
		Quantity: 4, LockedQuantity: 1, PointWorth: 25,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{})

	credited, err := coordinator.DestroyCard(context.Background(), "user-1", "col-1", "card-1", 2)
	if err != nil {
		test.Fatalf("DestroyCard: %v", err)
	}
	if credited != 50 {
		test.Fatalf("expected 50 points credited, got %d", credited)
	}
	if store.balances["user-1"] != 60 {
		test.Fatalf("expected balance 60, got %d", store.balances["user-1"])
	}
	card := store.userCards[cardKey("user-1", "col-1", "card-1")]
	if card.Quantity != 2 || card.LockedQuantity != 1 {
		test.Fatalf("unexpected card after destroy: %+v", card)
	}

	if _, err := coordinator.DestroyCard(context.Background(), "user-1", "col-1", "card-1", 2); !errors.Is(err, ErrInsufficientQuantity) {
		test.Fatalf("locked copy must not be destroyable, got %v", err)
	}
}

func TestDestroyCardDeletesDocumentAtZero(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1", Quantity: 1, PointWorth: 5,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{})

	if _, err := coordinator.DestroyCard(context.Background(), "user-1", "col-1", "card-1", 1); err != nil {
		test.Fatalf("DestroyCard: %v", err)
	}
	if _, found := store.userCards[cardKey("user-1", "col-1", "card-1")]; found {
		test.Fatal("expected card document deleted at zero quantity")
	}
}

func TestWithdrawForShippingRemovesDigitalCopies(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1", Quantity: 3,
	}
	store.userCards[cardKey("user-1", "col-1", "card-2")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-2", Quantity: 1,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{})

	request, err := coordinator.WithdrawForShipping(context.Background(), "user-1", "address-1", []ShipmentItem{
		{CollectionID: "col-1", CardID: "card-1", Quantity: 2},
		{CollectionID: "col-1", CardID: "card-2", Quantity: 1},
	})
	if err != nil {
		test.Fatalf("WithdrawForShipping: %v", err)
	}
	if request.Status != withdrawRequestPending || len(request.Items) != 2 {
		test.Fatalf("unexpected request: %+v", request)
	}
	if card := store.userCards[cardKey("user-1", "col-1", "card-1")]; card.Quantity != 1 {
		test.Fatalf("expected card-1 reduced to 1, got %+v", card)
	}
	if _, found := store.userCards[cardKey("user-1", "col-1", "card-2")]; found {
		test.Fatal("expected card-2 deleted after shipping its last copy")
	}
	if len(store.withdrawals) != 1 {
		test.Fatalf("expected one withdraw request persisted, got %d", len(store.withdrawals))
	}
}

func TestWithdrawForShippingRejectsLockedQuantity(test *testing.T) {
	test.Parallel()

	store := newMemoryStore()
	store.userCards[cardKey("user-1", "col-1", "card-1")] = UserCard{
		UserID: "user-1", CollectionID: "col-1", CardID: "card-1", Quantity: 2, LockedQuantity: 2,
	}
	coordinator := mustCoordinator(test, store, &stubRemoteLedger{})

	_, err := coordinator.WithdrawForShipping(context.Background(), "user-1", "address-1", []ShipmentItem{
		{CollectionID: "col-1", CardID: "card-1", Quantity: 1},
	})
	if !errors.Is(err, ErrInsufficientQuantity) {
		test.Fatalf("expected ErrInsufficientQuantity for locked copies, got %v", err)
	}
	if len(store.withdrawals) != 0 {
		test.Fatal("failed withdrawal must not persist a request")
	}
}
