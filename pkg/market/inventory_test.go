package market

import (
	"errors"
	"testing"
)

func TestApplyListingReservesAvailableQuantity(test *testing.T) {
	test.Parallel()

	card := UserCard{Quantity: 5, LockedQuantity: 2}
	reserved, err := ApplyListing(card, 3)
	if err != nil {
		test.Fatalf("ApplyListing: %v", err)
	}
	if reserved.Quantity != 5 || reserved.LockedQuantity != 5 {
		test.Fatalf("unexpected card after reserve: %+v", reserved)
	}

	if _, err := ApplyListing(card, 4); !errors.Is(err, ErrInsufficientQuantity) {
		test.Fatalf("expected ErrInsufficientQuantity for over-reserve, got %v", err)
	}
	if _, err := ApplyListing(card, 0); !errors.Is(err, ErrValidation) {
		test.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}
}

func TestReleaseListingClampsAtZero(test *testing.T) {
	test.Parallel()

	card := UserCard{Quantity: 5, LockedQuantity: 3}
	released, clamped := ReleaseListing(card, 3)
	if clamped || released.LockedQuantity != 0 {
		test.Fatalf("unexpected clean release: %+v clamped=%v", released, clamped)
	}

	short := UserCard{Quantity: 5, LockedQuantity: 1}
	released, clamped = ReleaseListing(short, 3)
	if !clamped || released.LockedQuantity != 0 {
		test.Fatalf("expected clamped release to zero, got %+v clamped=%v", released, clamped)
	}
}

func TestApplyDestroyNeverTouchesLockedQuantity(test *testing.T) {
	test.Parallel()

	card := UserCard{Quantity: 5, LockedQuantity: 3}
	if _, _, err := ApplyDestroy(card, 3); !errors.Is(err, ErrInsufficientQuantity) {
		test.Fatalf("locked quantity must not be destroyable, got %v", err)
	}

	burned, remove, err := ApplyDestroy(card, 2)
	if err != nil {
		test.Fatalf("ApplyDestroy: %v", err)
	}
	if remove || burned.Quantity != 3 || burned.LockedQuantity != 3 {
		test.Fatalf("unexpected card after burn: %+v remove=%v", burned, remove)
	}

	last := UserCard{Quantity: 1, LockedQuantity: 0}
	_, remove, err = ApplyDestroy(last, 1)
	if err != nil {
		test.Fatalf("ApplyDestroy last copy: %v", err)
	}
	if !remove {
		test.Fatal("expected delete signal when both counters reach zero")
	}
}

func TestSettleSaleConsumesBothCounters(test *testing.T) {
	test.Parallel()

	card := UserCard{Quantity: 3, LockedQuantity: 2}
	settled, remove, clamped := SettleSale(card, 2)
	if remove || clamped {
		test.Fatalf("unexpected flags: remove=%v clamped=%v", remove, clamped)
	}
	if settled.Quantity != 1 || settled.LockedQuantity != 0 {
		test.Fatalf("unexpected card after settlement: %+v", settled)
	}

	final := UserCard{Quantity: 1, LockedQuantity: 1}
	_, remove, _ = SettleSale(final, 1)
	if !remove {
		test.Fatal("expected delete signal when the last reserved copy is sold")
	}
}

func TestGrantCardCreatesOrIncrements(test *testing.T) {
	test.Parallel()

	template := UserCard{UserID: "user-1", CollectionID: "col-1", CardID: "card-1", PointWorth: 40}
	created := GrantCard(UserCard{}, false, template, 2, 1700000000)
	if created.Quantity != 2 || created.LockedQuantity != 0 || created.AcquiredUnixUTC != 1700000000 {
		test.Fatalf("unexpected created card: %+v", created)
	}

	existing := UserCard{UserID: "user-1", Quantity: 3, LockedQuantity: 1, AcquiredUnixUTC: 42}
	grown := GrantCard(existing, true, template, 2, 1700000000)
	if grown.Quantity != 5 || grown.LockedQuantity != 1 || grown.AcquiredUnixUTC != 42 {
		test.Fatalf("unexpected incremented card: %+v", grown)
	}
}
