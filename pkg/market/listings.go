package market

import (
	"context"
	"fmt"
)

// CreateListing opens a user sell listing. The listed quantity is reserved
// on the owned card via LockedQuantity; the card never leaves the owner's
// inventory until a sale settles.
func (coordinator *Coordinator) CreateListing(ctx context.Context, ownerID string, collectionID string, cardID string, quantity int64, pricePoints int64, priceCashCents int64) (Listing, error) {
	if ownerID == "" {
		return Listing{}, WrapError(operationCreateListing, cardID, codeValidation, fmt.Errorf("%w: owner id is required", ErrValidation))
	}
	if pricePoints < 0 || priceCashCents < 0 {
		return Listing{}, WrapError(operationCreateListing, cardID, codeValidation, fmt.Errorf("%w: prices must not be negative", ErrValidation))
	}
	if pricePoints == 0 && priceCashCents == 0 {
		return Listing{}, WrapError(operationCreateListing, cardID, codeValidation, fmt.Errorf("%w: at least one price is required", ErrValidation))
	}

	listing := Listing{
		ID:             coordinator.newID(),
		OwnerID:        ownerID,
		CollectionID:   collectionID,
		CardID:         cardID,
		Quantity:       quantity,
		PricePoints:    pricePoints,
		PriceCashCents: priceCashCents,
		Status:         ListingStatusOpen,
		CreatedUnixUTC: coordinator.nowUnixUTC(),
	}

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		card, found, getErr := txStore.GetUserCard(ctx, ownerID, collectionID, cardID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: card %s/%s", ErrNotFound, collectionID, cardID)
		}
		reserved, reserveErr := ApplyListing(card, quantity)
		if reserveErr != nil {
			return reserveErr
		}
		if saveErr := txStore.SaveUserCard(ctx, reserved); saveErr != nil {
			return saveErr
		}
		return txStore.SaveListing(ctx, listing)
	})
	if localErr != nil {
		return Listing{}, WrapError(operationCreateListing, cardID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationCreateListing,
		OperationID:  listing.ID,
		UserID:       ownerID,
		ListingID:    listing.ID,
		CollectionID: collectionID,
		CardID:       cardID,
		Quantity:     quantity,
		Points:       pricePoints,
		Status:       operationStatusOK,
	})
	return listing, nil
}

// WithdrawListing closes an open listing and releases its reservation. The
// listing document is retained with Status withdrawn. If the release has to
// clamp LockedQuantity at zero the anomaly is logged, but the withdrawal
// still succeeds.
func (coordinator *Coordinator) WithdrawListing(ctx context.Context, ownerID string, listingID string) error {
	if ownerID == "" {
		return WrapError(operationWithdrawListing, listingID, codeValidation, fmt.Errorf("%w: owner id is required", ErrValidation))
	}

	clamped := false
	var listing Listing

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		found := false
		var getErr error
		listing, found, getErr = txStore.GetListing(ctx, listingID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
		}
		if listing.OwnerID != ownerID {
			return fmt.Errorf("%w: listing %s", ErrNotOwner, listingID)
		}
		if listing.Status != ListingStatusOpen {
			return fmt.Errorf("%w: listing %s is %s", ErrListingNotOpen, listingID, listing.Status)
		}

		card, cardFound, cardErr := txStore.GetUserCard(ctx, ownerID, listing.CollectionID, listing.CardID)
		if cardErr != nil {
			return cardErr
		}
		if cardFound {
			released, wasClamped := ReleaseListing(card, listing.Quantity)
			clamped = wasClamped
			if saveErr := txStore.SaveUserCard(ctx, released); saveErr != nil {
				return saveErr
			}
		}

		listing.Status = ListingStatusWithdrawn
		return txStore.SaveListing(ctx, listing)
	})
	if localErr != nil {
		return WrapError(operationWithdrawListing, listingID, codeFor(localErr), localErr)
	}

	entry := OperationLog{
		Operation:    operationWithdrawListing,
		OperationID:  coordinator.newID(),
		UserID:       ownerID,
		ListingID:    listingID,
		CollectionID: listing.CollectionID,
		CardID:       listing.CardID,
		Quantity:     listing.Quantity,
		Status:       operationStatusOK,
	}
	if clamped {
		entry.Detail = "locked quantity clamped at zero during release"
	}
	coordinator.logOperation(ctx, entry)
	return nil
}

// DestroyCard burns available quantity of an owned card and credits the
// card's point worth per copy to the local balance. Locked quantity is never
// eligible. The card document is deleted when both counters reach zero.
func (coordinator *Coordinator) DestroyCard(ctx context.Context, userID string, collectionID string, cardID string, quantity int64) (int64, error) {
	if userID == "" {
		return 0, WrapError(operationDestroyCard, cardID, codeValidation, fmt.Errorf("%w: user id is required", ErrValidation))
	}

	var creditedPoints int64

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		card, found, getErr := txStore.GetUserCard(ctx, userID, collectionID, cardID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: card %s/%s", ErrNotFound, collectionID, cardID)
		}
		updated, remove, destroyErr := ApplyDestroy(card, quantity)
		if destroyErr != nil {
			return destroyErr
		}
		if remove {
			if deleteErr := txStore.DeleteUserCard(ctx, userID, collectionID, cardID); deleteErr != nil {
				return deleteErr
			}
		} else {
			if saveErr := txStore.SaveUserCard(ctx, updated); saveErr != nil {
				return saveErr
			}
		}
		creditedPoints = card.PointWorth * quantity
		if creditedPoints > 0 {
			return txStore.AdjustPointsBalance(ctx, userID, creditedPoints)
		}
		return nil
	})
	if localErr != nil {
		return 0, WrapError(operationDestroyCard, cardID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationDestroyCard,
		OperationID:  coordinator.newID(),
		UserID:       userID,
		CollectionID: collectionID,
		CardID:       cardID,
		Quantity:     quantity,
		Points:       creditedPoints,
		Status:       operationStatusOK,
	})
	return creditedPoints, nil
}

// WithdrawForShipping removes available quantity from the user's digital
// inventory and records a pending shipment request for the physical cards.
func (coordinator *Coordinator) WithdrawForShipping(ctx context.Context, userID string, addressID string, items []ShipmentItem) (WithdrawRequest, error) {
	if userID == "" {
		return WithdrawRequest{}, WrapError(operationWithdrawShipping, "", codeValidation, fmt.Errorf("%w: user id is required", ErrValidation))
	}
	if addressID == "" {
		return WithdrawRequest{}, WrapError(operationWithdrawShipping, "", codeValidation, fmt.Errorf("%w: address id is required", ErrValidation))
	}
	if len(items) == 0 {
		return WithdrawRequest{}, WrapError(operationWithdrawShipping, "", codeValidation, fmt.Errorf("%w: at least one item is required", ErrValidation))
	}

	request := WithdrawRequest{
		ID:             coordinator.newID(),
		UserID:         userID,
		AddressID:      addressID,
		Items:          items,
		Status:         withdrawRequestPending,
		CreatedUnixUTC: coordinator.nowUnixUTC(),
	}

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		for _, item := range items {
			card, found, getErr := txStore.GetUserCard(ctx, userID, item.CollectionID, item.CardID)
			if getErr != nil {
				return getErr
			}
			if !found {
				return fmt.Errorf("%w: card %s/%s", ErrNotFound, item.CollectionID, item.CardID)
			}
			updated, remove, destroyErr := ApplyDestroy(card, item.Quantity)
			if destroyErr != nil {
				return destroyErr
			}
			if remove {
				if deleteErr := txStore.DeleteUserCard(ctx, userID, item.CollectionID, item.CardID); deleteErr != nil {
					return deleteErr
				}
			} else {
				if saveErr := txStore.SaveUserCard(ctx, updated); saveErr != nil {
					return saveErr
				}
			}
		}
		return txStore.InsertWithdrawRequest(ctx, request)
	})
	if localErr != nil {
		return WithdrawRequest{}, WrapError(operationWithdrawShipping, "", codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationWithdrawShipping,
		OperationID: request.ID,
		UserID:      userID,
		Quantity:    int64(len(items)),
		Status:      operationStatusOK,
	})
	return request, nil
}
