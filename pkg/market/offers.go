package market

import (
	"context"
	"fmt"
)

// OfferPoints places a point offer on an open listing. The listing's
// denormalized highest point offer is updated when the new offer beats it.
func (coordinator *Coordinator) OfferPoints(ctx context.Context, offererID string, listingID string, points int64) (Offer, error) {
	return coordinator.placeOffer(ctx, operationOfferPoints, offererID, listingID, OfferKindPoint, points)
}

// OfferCash places a cash offer, denominated in cents, on an open listing.
func (coordinator *Coordinator) OfferCash(ctx context.Context, offererID string, listingID string, cents int64) (Offer, error) {
	return coordinator.placeOffer(ctx, operationOfferCash, offererID, listingID, OfferKindCash, cents)
}

func (coordinator *Coordinator) placeOffer(ctx context.Context, operation string, offererID string, listingID string, kind OfferKind, amount int64) (Offer, error) {
	if offererID == "" {
		return Offer{}, WrapError(operation, listingID, codeValidation, fmt.Errorf("%w: offerer id is required", ErrValidation))
	}
	if amount <= 0 {
		return Offer{}, WrapError(operation, listingID, codeValidation, fmt.Errorf("%w: amount must be positive", ErrValidation))
	}

	offer := Offer{
		ID:             coordinator.newID(),
		ListingID:      listingID,
		Kind:           kind,
		OffererID:      offererID,
		Amount:         amount,
		Status:         OfferStatusOpen,
		CreatedUnixUTC: coordinator.nowUnixUTC(),
	}

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		listing, found, getErr := txStore.GetListing(ctx, listingID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
		}
		if listing.Status != ListingStatusOpen {
			return fmt.Errorf("%w: listing %s is %s", ErrListingNotOpen, listingID, listing.Status)
		}
		if listing.OwnerID == offererID {
			return fmt.Errorf("%w: cannot offer on own listing", ErrValidation)
		}
		if kind == OfferKindPoint {
			balance, balanceErr := txStore.GetPointsBalance(ctx, offererID)
			if balanceErr != nil {
				return balanceErr
			}
			if balance < amount {
				return fmt.Errorf("%w: offer %d, balance %d", ErrInsufficientBalance, amount, balance)
			}
		}
		if saveErr := txStore.SaveOffer(ctx, offer); saveErr != nil {
			return saveErr
		}

		switch kind {
		case OfferKindPoint:
			if amount > listing.HighestOfferPoints {
				listing.HighestOfferPoints = amount
				listing.HighestOfferPointsID = offer.ID
				return txStore.SaveListing(ctx, listing)
			}
		case OfferKindCash:
			if amount > listing.HighestOfferCashCents {
				listing.HighestOfferCashCents = amount
				listing.HighestOfferCashOfferID = offer.ID
				return txStore.SaveListing(ctx, listing)
			}
		}
		return nil
	})
	if localErr != nil {
		return Offer{}, WrapError(operation, listingID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:   operation,
		OperationID: offer.ID,
		UserID:      offererID,
		ListingID:   listingID,
		OfferID:     offer.ID,
		Points:      amount,
		Status:      operationStatusOK,
	})
	return offer, nil
}

// refreshHighestOffers recomputes the listing's denormalized best-offer
// pointers from the open offers that remain under it. Callers run it inside
// their transaction whenever an offer leaves the open state.
func refreshHighestOffers(ctx context.Context, txStore Store, listing *Listing) error {
	open, err := txStore.ListOpenOffers(ctx, listing.ID)
	if err != nil {
		return err
	}
	listing.HighestOfferPoints = 0
	listing.HighestOfferPointsID = ""
	listing.HighestOfferCashCents = 0
	listing.HighestOfferCashOfferID = ""
	for _, offer := range open {
		switch offer.Kind {
		case OfferKindPoint:
			if offer.Amount > listing.HighestOfferPoints {
				listing.HighestOfferPoints = offer.Amount
				listing.HighestOfferPointsID = offer.ID
			}
		case OfferKindCash:
			if offer.Amount > listing.HighestOfferCashCents {
				listing.HighestOfferCashCents = offer.Amount
				listing.HighestOfferCashOfferID = offer.ID
			}
		}
	}
	return nil
}

// WithdrawOffer retracts the caller's open offer. Accepted offers are locked
// in until the payment window resolves them, so only open offers withdraw.
// The listing's best-offer pointers are recomputed in the same transaction.
func (coordinator *Coordinator) WithdrawOffer(ctx context.Context, offererID string, listingID string, offerID string) error {
	if offererID == "" {
		return WrapError(operationWithdrawOffer, offerID, codeValidation, fmt.Errorf("%w: offerer id is required", ErrValidation))
	}

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		offer, found, getErr := txStore.GetOffer(ctx, listingID, offerID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: offer %s", ErrNotFound, offerID)
		}
		if offer.OffererID != offererID {
			return fmt.Errorf("%w: offer %s", ErrNotOwner, offerID)
		}
		if offer.Status != OfferStatusOpen {
			return fmt.Errorf("%w: offer %s is %s, only open offers can be withdrawn", ErrOfferNotPayable, offerID, offer.Status)
		}

		offer.Status = OfferStatusWithdrawn
		if saveErr := txStore.SaveOffer(ctx, offer); saveErr != nil {
			return saveErr
		}

		listing, listingFound, listingErr := txStore.GetListing(ctx, listingID)
		if listingErr != nil {
			return listingErr
		}
		if !listingFound {
			return nil
		}
		if refreshErr := refreshHighestOffers(ctx, txStore, &listing); refreshErr != nil {
			return refreshErr
		}
		return txStore.SaveListing(ctx, listing)
	})
	if localErr != nil {
		return WrapError(operationWithdrawOffer, offerID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationWithdrawOffer,
		OperationID: coordinator.newID(),
		UserID:      offererID,
		ListingID:   listingID,
		OfferID:     offerID,
		Status:      operationStatusOK,
	})
	return nil
}

// AcceptOffer marks an open offer accepted by the listing owner and starts
// the payment window. The listing moves to accepted so no further offers or
// direct buys can race the settlement.
func (coordinator *Coordinator) AcceptOffer(ctx context.Context, ownerID string, listingID string, offerID string) (Offer, error) {
	if ownerID == "" {
		return Offer{}, WrapError(operationAcceptOffer, offerID, codeValidation, fmt.Errorf("%w: owner id is required", ErrValidation))
	}

	var accepted Offer

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		listing, found, getErr := txStore.GetListing(ctx, listingID)
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

		offer, offerFound, offerErr := txStore.GetOffer(ctx, listingID, offerID)
		if offerErr != nil {
			return offerErr
		}
		if !offerFound {
			return fmt.Errorf("%w: offer %s", ErrNotFound, offerID)
		}
		if offer.Status != OfferStatusOpen {
			return fmt.Errorf("%w: offer %s is %s", ErrOfferNotPayable, offerID, offer.Status)
		}

		due := coordinator.nowFn().UTC().Add(offerPaymentWindow).Unix()
		offer.Status = OfferStatusAccepted
		offer.PaymentDueUnixUTC = due
		if saveErr := txStore.SaveOffer(ctx, offer); saveErr != nil {
			return saveErr
		}

		listing.Status = ListingStatusAccepted
		listing.PaymentDueUnixUTC = due
		if saveErr := txStore.SaveListing(ctx, listing); saveErr != nil {
			return saveErr
		}
		accepted = offer
		return nil
	})
	if localErr != nil {
		return Offer{}, WrapError(operationAcceptOffer, offerID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:   operationAcceptOffer,
		OperationID: coordinator.newID(),
		UserID:      ownerID,
		ListingID:   listingID,
		OfferID:     offerID,
		Points:      accepted.Amount,
		Status:      operationStatusOK,
	})
	return accepted, nil
}

// PayPointOffer settles an accepted point offer. Both sides of the trade are
// local point and card documents, so the whole settlement is one store
// transaction: debit buyer, credit seller, move one unit of the card, close
// the listing when its quantity is exhausted, and append the transaction
// record. Payment past the due date is rejected.
func (coordinator *Coordinator) PayPointOffer(ctx context.Context, buyerID string, listingID string, offerID string) (Transaction, error) {
	if buyerID == "" {
		return Transaction{}, WrapError(operationPayPointOffer, offerID, codeValidation, fmt.Errorf("%w: buyer id is required", ErrValidation))
	}

	record := Transaction{
		ID:            coordinator.newID(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		Quantity:      1,
		TradedUnixUTC: coordinator.nowUnixUTC(),
	}

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		offer, offerFound, offerErr := txStore.GetOffer(ctx, listingID, offerID)
		if offerErr != nil {
			return offerErr
		}
		if !offerFound {
			return fmt.Errorf("%w: offer %s", ErrNotFound, offerID)
		}
		if offer.OffererID != buyerID {
			return fmt.Errorf("%w: offer %s", ErrNotOwner, offerID)
		}
		if offer.Kind != OfferKindPoint {
			return fmt.Errorf("%w: offer %s is a %s offer", ErrOfferNotPayable, offerID, offer.Kind)
		}
		if offer.Status != OfferStatusAccepted {
			return fmt.Errorf("%w: offer %s is %s", ErrOfferNotPayable, offerID, offer.Status)
		}
		now := coordinator.nowUnixUTC()
		if offer.PaymentDueUnixUTC != 0 && now > offer.PaymentDueUnixUTC {
			return fmt.Errorf("%w: offer %s", ErrPaymentDueElapsed, offerID)
		}

		listing, listingFound, listingErr := txStore.GetListing(ctx, listingID)
		if listingErr != nil {
			return listingErr
		}
		if !listingFound {
			return fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
		}

		balance, balanceErr := txStore.GetPointsBalance(ctx, buyerID)
		if balanceErr != nil {
			return balanceErr
		}
		if balance < offer.Amount {
			return fmt.Errorf("%w: price %d, balance %d", ErrInsufficientBalance, offer.Amount, balance)
		}
		if adjustErr := txStore.AdjustPointsBalance(ctx, buyerID, -offer.Amount); adjustErr != nil {
			return adjustErr
		}
		if adjustErr := txStore.AdjustPointsBalance(ctx, listing.OwnerID, offer.Amount); adjustErr != nil {
			return adjustErr
		}
		if spentErr := txStore.AddPointsSpent(ctx, buyerID, offer.Amount); spentErr != nil {
			return spentErr
		}

		settleErr := coordinator.transferCardUnit(ctx, txStore, listing, buyerID, 1)
		if settleErr != nil {
			return settleErr
		}

		// The offer leaves the open set before the pointers are recomputed,
		// so a reopened listing never advertises the offer that just paid.
		offer.Status = OfferStatusPaid
		offer.PaidAtUnixUTC = now
		if saveErr := txStore.SaveOffer(ctx, offer); saveErr != nil {
			return saveErr
		}

		listing.Quantity -= 1
		if listing.Quantity <= 0 {
			if deleteErr := txStore.DeleteListing(ctx, listingID); deleteErr != nil {
				return deleteErr
			}
		} else {
			listing.Status = ListingStatusOpen
			listing.PaymentDueUnixUTC = 0
			if refreshErr := refreshHighestOffers(ctx, txStore, &listing); refreshErr != nil {
				return refreshErr
			}
			if saveErr := txStore.SaveListing(ctx, listing); saveErr != nil {
				return saveErr
			}
		}

		record.SellerID = listing.OwnerID
		record.CollectionID = listing.CollectionID
		record.CardID = listing.CardID
		record.PricePoints = offer.Amount
		return txStore.InsertTransaction(ctx, record)
	})
	if localErr != nil {
		return Transaction{}, WrapError(operationPayPointOffer, offerID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationPayPointOffer,
		OperationID:  record.ID,
		UserID:       buyerID,
		ListingID:    listingID,
		OfferID:      offerID,
		CollectionID: record.CollectionID,
		CardID:       record.CardID,
		Quantity:     1,
		Points:       record.PricePoints,
		Status:       operationStatusOK,
	})
	return record, nil
}

// PayPricePoint buys quantity units of an open listing directly at its
// point price, with no prior offer.
func (coordinator *Coordinator) PayPricePoint(ctx context.Context, buyerID string, listingID string, quantity int64) (Transaction, error) {
	if buyerID == "" {
		return Transaction{}, WrapError(operationPayPricePoint, listingID, codeValidation, fmt.Errorf("%w: buyer id is required", ErrValidation))
	}
	if quantity <= 0 {
		return Transaction{}, WrapError(operationPayPricePoint, listingID, codeValidation, fmt.Errorf("%w: quantity must be positive", ErrValidation))
	}

	record := Transaction{
		ID:            coordinator.newID(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		Quantity:      quantity,
		TradedUnixUTC: coordinator.nowUnixUTC(),
	}

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		listing, found, getErr := txStore.GetListing(ctx, listingID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
		}
		if listing.Status != ListingStatusOpen {
			return fmt.Errorf("%w: listing %s is %s", ErrListingNotOpen, listingID, listing.Status)
		}
		if listing.OwnerID == buyerID {
			return fmt.Errorf("%w: cannot buy own listing", ErrValidation)
		}
		if listing.PricePoints <= 0 {
			return fmt.Errorf("%w: listing %s has no point price", ErrValidation, listingID)
		}
		if listing.Quantity < quantity {
			return fmt.Errorf("%w: requested %d, listed %d", ErrInsufficientQuantity, quantity, listing.Quantity)
		}

		totalPoints := listing.PricePoints * quantity
		balance, balanceErr := txStore.GetPointsBalance(ctx, buyerID)
		if balanceErr != nil {
			return balanceErr
		}
		if balance < totalPoints {
			return fmt.Errorf("%w: price %d, balance %d", ErrInsufficientBalance, totalPoints, balance)
		}
		if adjustErr := txStore.AdjustPointsBalance(ctx, buyerID, -totalPoints); adjustErr != nil {
			return adjustErr
		}
		if adjustErr := txStore.AdjustPointsBalance(ctx, listing.OwnerID, totalPoints); adjustErr != nil {
			return adjustErr
		}
		if spentErr := txStore.AddPointsSpent(ctx, buyerID, totalPoints); spentErr != nil {
			return spentErr
		}

		if settleErr := coordinator.transferCardUnit(ctx, txStore, listing, buyerID, quantity); settleErr != nil {
			return settleErr
		}

		listing.Quantity -= quantity
		if listing.Quantity <= 0 {
			if deleteErr := txStore.DeleteListing(ctx, listingID); deleteErr != nil {
				return deleteErr
			}
		} else {
			if saveErr := txStore.SaveListing(ctx, listing); saveErr != nil {
				return saveErr
			}
		}

		record.SellerID = listing.OwnerID
		record.CollectionID = listing.CollectionID
		record.CardID = listing.CardID
		record.PricePoints = totalPoints
		return txStore.InsertTransaction(ctx, record)
	})
	if localErr != nil {
		return Transaction{}, WrapError(operationPayPricePoint, listingID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationPayPricePoint,
		OperationID:  record.ID,
		UserID:       buyerID,
		ListingID:    listingID,
		CollectionID: record.CollectionID,
		CardID:       record.CardID,
		Quantity:     quantity,
		Points:       record.PricePoints,
		Status:       operationStatusOK,
	})
	return record, nil
}

// SettleCashOffer completes an accepted cash offer after the payment
// provider confirms the charge. No points move; the card transfer, offer and
// listing lifecycle, and the transaction record are one local commit. Called
// from the payment webhook, so the paid amount comes from the provider event
// and is checked against the offer.
func (coordinator *Coordinator) SettleCashOffer(ctx context.Context, listingID string, offerID string, paidCents int64) (Transaction, error) {
	record := Transaction{
		ID:            coordinator.newID(),
		ListingID:     listingID,
		Quantity:      1,
		TradedUnixUTC: coordinator.nowUnixUTC(),
	}

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		offer, offerFound, offerErr := txStore.GetOffer(ctx, listingID, offerID)
		if offerErr != nil {
			return offerErr
		}
		if !offerFound {
			return fmt.Errorf("%w: offer %s", ErrNotFound, offerID)
		}
		if offer.Kind != OfferKindCash {
			return fmt.Errorf("%w: offer %s is a %s offer", ErrOfferNotPayable, offerID, offer.Kind)
		}
		if offer.Status != OfferStatusAccepted {
			return fmt.Errorf("%w: offer %s is %s", ErrOfferNotPayable, offerID, offer.Status)
		}
		if paidCents != offer.Amount {
			return fmt.Errorf("%w: paid %d cents, offer is %d", ErrValidation, paidCents, offer.Amount)
		}

		listing, listingFound, listingErr := txStore.GetListing(ctx, listingID)
		if listingErr != nil {
			return listingErr
		}
		if !listingFound {
			return fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
		}

		if settleErr := coordinator.transferCardUnit(ctx, txStore, listing, offer.OffererID, 1); settleErr != nil {
			return settleErr
		}

		offer.Status = OfferStatusPaid
		offer.PaidAtUnixUTC = coordinator.nowUnixUTC()
		if saveErr := txStore.SaveOffer(ctx, offer); saveErr != nil {
			return saveErr
		}

		listing.Quantity -= 1
		if listing.Quantity <= 0 {
			if deleteErr := txStore.DeleteListing(ctx, listingID); deleteErr != nil {
				return deleteErr
			}
		} else {
			listing.Status = ListingStatusOpen
			listing.PaymentDueUnixUTC = 0
			if refreshErr := refreshHighestOffers(ctx, txStore, &listing); refreshErr != nil {
				return refreshErr
			}
			if saveErr := txStore.SaveListing(ctx, listing); saveErr != nil {
				return saveErr
			}
		}

		record.SellerID = listing.OwnerID
		record.BuyerID = offer.OffererID
		record.CollectionID = listing.CollectionID
		record.CardID = listing.CardID
		record.PriceCashCents = offer.Amount
		return txStore.InsertTransaction(ctx, record)
	})
	if localErr != nil {
		return Transaction{}, WrapError(operationSettleCashOffer, offerID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationSettleCashOffer,
		OperationID:  record.ID,
		UserID:       record.BuyerID,
		ListingID:    listingID,
		OfferID:      offerID,
		CollectionID: record.CollectionID,
		CardID:       record.CardID,
		Quantity:     1,
		Status:       operationStatusOK,
	})
	return record, nil
}

// transferCardUnit moves sold quantity from the seller's reserved inventory
// to the buyer, inside the caller's transaction.
func (coordinator *Coordinator) transferCardUnit(ctx context.Context, txStore Store, listing Listing, buyerID string, quantity int64) error {
	sellerCard, sellerFound, sellerErr := txStore.GetUserCard(ctx, listing.OwnerID, listing.CollectionID, listing.CardID)
	if sellerErr != nil {
		return sellerErr
	}
	if !sellerFound {
		return fmt.Errorf("%w: seller card %s/%s", ErrNotFound, listing.CollectionID, listing.CardID)
	}
	settled, removeSeller, clamped := SettleSale(sellerCard, quantity)
	if clamped {
		coordinator.logOperation(ctx, OperationLog{
			Operation:    operationPayPointOffer,
			UserID:       listing.OwnerID,
			ListingID:    listing.ID,
			CollectionID: listing.CollectionID,
			CardID:       listing.CardID,
			Quantity:     quantity,
			Status:       operationStatusError,
			Detail:       "locked quantity clamped at zero during sale settlement",
		})
	}
	if removeSeller {
		if deleteErr := txStore.DeleteUserCard(ctx, listing.OwnerID, listing.CollectionID, listing.CardID); deleteErr != nil {
			return deleteErr
		}
	} else {
		if saveErr := txStore.SaveUserCard(ctx, settled); saveErr != nil {
			return saveErr
		}
	}

	buyerCard, buyerFound, buyerErr := txStore.GetUserCard(ctx, buyerID, listing.CollectionID, listing.CardID)
	if buyerErr != nil {
		return buyerErr
	}
	template := UserCard{
		UserID:       buyerID,
		CollectionID: listing.CollectionID,
		CardID:       listing.CardID,
		CardName:     sellerCard.CardName,
		PointWorth:   sellerCard.PointWorth,
		Rarity:       sellerCard.Rarity,
	}
	granted := GrantCard(buyerCard, buyerFound, template, quantity, coordinator.nowUnixUTC())
	return txStore.SaveUserCard(ctx, granted)
}
