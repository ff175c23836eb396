package market

import "fmt"

// Pure quantity-transition rules for owned cards. The coordinator enforces
// them inside store transactions; they perform no I/O of their own.

// ApplyListing reserves quantity for a new sell listing.
// Requires Quantity - LockedQuantity >= listQuantity.
func ApplyListing(card UserCard, listQuantity int64) (UserCard, error) {
	if listQuantity <= 0 {
		return card, fmt.Errorf("%w: listing quantity must be positive", ErrValidation)
	}
	if card.Available() < listQuantity {
		return card, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientQuantity, listQuantity, card.Available())
	}
	card.LockedQuantity += listQuantity
	return card, nil
}

// ReleaseListing returns a withdrawn listing's reservation. LockedQuantity is
// clamped at zero; a clamp means an upstream accounting bug, so the caller
// must log it, but the user operation still succeeds.
func ReleaseListing(card UserCard, listedQuantity int64) (UserCard, bool) {
	clamped := false
	card.LockedQuantity -= listedQuantity
	if card.LockedQuantity < 0 {
		card.LockedQuantity = 0
		clamped = true
	}
	return card, clamped
}

// ApplyDestroy burns part of a card. The locked portion is never eligible.
// The second return value reports whether the card document should be
// deleted rather than kept at zero.
func ApplyDestroy(card UserCard, destroyQuantity int64) (UserCard, bool, error) {
	if destroyQuantity <= 0 {
		return card, false, fmt.Errorf("%w: destroy quantity must be positive", ErrValidation)
	}
	if card.Available() < destroyQuantity {
		return card, false, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientQuantity, destroyQuantity, card.Available())
	}
	card.Quantity -= destroyQuantity
	remove := card.Quantity == 0 && card.LockedQuantity == 0
	return card, remove, nil
}

// SettleSale consumes sold quantity out of the seller's reservation after a
// trade completes. Returns the updated card, whether the document should be
// deleted (fully consumed), and whether the locked counter had to be clamped.
func SettleSale(card UserCard, soldQuantity int64) (UserCard, bool, bool) {
	card.Quantity -= soldQuantity
	if card.Quantity < 0 {
		card.Quantity = 0
	}
	card, clamped := ReleaseListing(card, soldQuantity)
	remove := card.Quantity == 0 && card.LockedQuantity == 0
	return card, remove, clamped
}

// GrantCard increments an existing owned card or materializes a new one from
// the template.
func GrantCard(existing UserCard, found bool, template UserCard, quantity int64, nowUnixUTC int64) UserCard {
	if !found {
		template.Quantity = quantity
		template.LockedQuantity = 0
		template.AcquiredUnixUTC = nowUnixUTC
		return template
	}
	existing.Quantity += quantity
	return existing
}
