package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
)

// Coordinator executes compound marketplace operations. Each operation
// follows the same shape: validate and commit all local mutations inside one
// store transaction, then issue at most one bundled remote ledger call, and
// compensate the local commit if the remote side fails. Remote failures and
// compensation outcomes are always surfaced through the operation logger.
type Coordinator struct {
	store           Store
	remote          RemoteLedger
	packs           draw.PackStore
	logger          OperationLogger
	nowFn           func() time.Time
	newID           func() string
	conflictRetries int
}

// NewCoordinator validates dependencies and builds a Coordinator.
func NewCoordinator(store Store, remote RemoteLedger, options ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidCoordinator)
	}
	if remote == nil {
		return nil, fmt.Errorf("%w: remote ledger is required", ErrInvalidCoordinator)
	}
	coordinator := &Coordinator{
		store:           store,
		remote:          remote,
		nowFn:           time.Now,
		newID:           uuid.NewString,
		conflictRetries: defaultConflictRetries,
	}
	for _, option := range options {
		option(coordinator)
	}
	return coordinator, nil
}

func (coordinator *Coordinator) nowUnixUTC() int64 {
	return coordinator.nowFn().UTC().Unix()
}

// runInTx executes fn inside a store transaction, retrying a bounded number
// of times when the store reports a lost concurrency race.
func (coordinator *Coordinator) runInTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	var lastErr error
	for attempt := 0; attempt <= coordinator.conflictRetries; attempt++ {
		lastErr = coordinator.store.WithTx(ctx, fn)
		if !errors.Is(lastErr, ErrConcurrencyConflict) {
			return lastErr
		}
	}
	return lastErr
}

func (coordinator *Coordinator) logOperation(ctx context.Context, entry OperationLog) {
	if coordinator.logger == nil {
		return
	}
	coordinator.logger.LogOperation(ctx, entry)
}

// BuyFromOfficialListing purchases quantity units of an operator-stocked card
// with points. Stock and the marketplace counter are committed locally first;
// the point debit and card grant go to the remote ledger as one idempotent
// call. A remote failure restores the local stock and is reported as
// ErrRemoteService.
func (coordinator *Coordinator) BuyFromOfficialListing(ctx context.Context, userID string, collectionID string, cardID string, quantity int64) error {
	if userID == "" {
		return WrapError(operationBuyOfficial, cardID, codeValidation, fmt.Errorf("%w: user id is required", ErrValidation))
	}
	if quantity <= 0 {
		return WrapError(operationBuyOfficial, cardID, codeValidation, fmt.Errorf("%w: quantity must be positive", ErrValidation))
	}

	operationID := coordinator.newID()
	var totalPoints int64
	var soldEntry OfficialListingEntry

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		entry, found, getErr := txStore.GetOfficialListing(ctx, collectionID, cardID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: official listing %s/%s", ErrNotFound, collectionID, cardID)
		}
		if entry.Quantity < quantity {
			return fmt.Errorf("%w: requested %d, in stock %d", ErrInsufficientQuantity, quantity, entry.Quantity)
		}
		soldEntry = entry
		totalPoints = entry.PricePoints * quantity

		balance, balanceErr := txStore.GetPointsBalance(ctx, userID)
		if balanceErr != nil {
			return balanceErr
		}
		if balance < totalPoints {
			return fmt.Errorf("%w: price %d, balance %d", ErrInsufficientBalance, totalPoints, balance)
		}

		entry.Quantity -= quantity
		if entry.Quantity == 0 {
			if deleteErr := txStore.DeleteOfficialListing(ctx, collectionID, cardID); deleteErr != nil {
				return deleteErr
			}
		} else {
			if saveErr := txStore.SaveOfficialListing(ctx, entry); saveErr != nil {
				return saveErr
			}
		}

		master, masterFound, masterErr := txStore.GetMasterCard(ctx, collectionID, cardID)
		if masterErr != nil {
			return masterErr
		}
		if masterFound {
			master.QuantityInMarketplace -= quantity
			if master.QuantityInMarketplace < 0 {
				master.QuantityInMarketplace = 0
			}
			if saveErr := txStore.SaveMasterCard(ctx, master); saveErr != nil {
				return saveErr
			}
		}
		return nil
	})
	if localErr != nil {
		return WrapError(operationBuyOfficial, cardID, codeFor(localErr), localErr)
	}

	remoteErr := coordinator.remote.Apply(ctx, RemoteApply{
		OperationID: operationID,
		UserID:      userID,
		PointsDelta: -totalPoints,
		CardGrants: []CardGrant{{
			CollectionID: collectionID,
			CardID:       cardID,
			Quantity:     quantity,
		}},
	})
	if remoteErr != nil {
		coordinator.compensateOfficialStock(ctx, operationBuyOfficial, operationID, userID, soldEntry, quantity, remoteErr)
		return WrapError(operationBuyOfficial, cardID, codeRemote, fmt.Errorf("%w: %v", ErrRemoteService, remoteErr))
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationBuyOfficial,
		OperationID:  operationID,
		UserID:       userID,
		CollectionID: collectionID,
		CardID:       cardID,
		Quantity:     quantity,
		Points:       totalPoints,
		Status:       operationStatusOK,
	})
	return nil
}

// compensateOfficialStock restores official listing stock after a failed
// remote call. A purchase of the last units deletes the entry, so the
// pre-decrement entry is carried in and recreated with its original prices
// when needed. The outcome, success or not, is logged with the operation id
// for reconciliation.
func (coordinator *Coordinator) compensateOfficialStock(ctx context.Context, operation string, operationID string, userID string, sold OfficialListingEntry, quantity int64, remoteErr error) {
	collectionID := sold.CollectionID
	cardID := sold.CardID
	compensateErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		entry, found, getErr := txStore.GetOfficialListing(ctx, collectionID, cardID)
		if getErr != nil {
			return getErr
		}
		if !found {
			entry = sold
			entry.Quantity = 0
		}
		entry.Quantity += quantity
		if saveErr := txStore.SaveOfficialListing(ctx, entry); saveErr != nil {
			return saveErr
		}

		master, masterFound, masterErr := txStore.GetMasterCard(ctx, collectionID, cardID)
		if masterErr != nil {
			return masterErr
		}
		if masterFound {
			master.QuantityInMarketplace += quantity
			if saveErr := txStore.SaveMasterCard(ctx, master); saveErr != nil {
				return saveErr
			}
		}
		return nil
	})

	entry := OperationLog{
		Operation:    operation,
		OperationID:  operationID,
		UserID:       userID,
		CollectionID: collectionID,
		CardID:       cardID,
		Quantity:     quantity,
		Status:       operationStatusCompensated,
		Detail:       "remote ledger call failed, local stock restored",
		Error:        remoteErr,
	}
	if compensateErr != nil {
		entry.Status = operationStatusError
		entry.Detail = "remote ledger call failed and compensation also failed, manual reconciliation required"
		entry.Error = errors.Join(remoteErr, compensateErr)
	}
	coordinator.logOperation(ctx, entry)
}

// WithdrawFromOfficialListing pulls operator stock back out of the official
// marketplace. Entries are deleted at exactly zero quantity.
func (coordinator *Coordinator) WithdrawFromOfficialListing(ctx context.Context, collectionID string, cardID string, quantity int64) error {
	if quantity <= 0 {
		return WrapError(operationWithdrawOfficial, cardID, codeValidation, fmt.Errorf("%w: quantity must be positive", ErrValidation))
	}

	operationID := coordinator.newID()

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		entry, found, getErr := txStore.GetOfficialListing(ctx, collectionID, cardID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: official listing %s/%s", ErrNotFound, collectionID, cardID)
		}
		if entry.Quantity < quantity {
			return fmt.Errorf("%w: requested %d, in stock %d", ErrInsufficientQuantity, quantity, entry.Quantity)
		}

		entry.Quantity -= quantity
		if entry.Quantity == 0 {
			if deleteErr := txStore.DeleteOfficialListing(ctx, collectionID, cardID); deleteErr != nil {
				return deleteErr
			}
		} else {
			if saveErr := txStore.SaveOfficialListing(ctx, entry); saveErr != nil {
				return saveErr
			}
		}

		master, masterFound, masterErr := txStore.GetMasterCard(ctx, collectionID, cardID)
		if masterErr != nil {
			return masterErr
		}
		if masterFound {
			master.QuantityInMarketplace -= quantity
			if master.QuantityInMarketplace < 0 {
				master.QuantityInMarketplace = 0
			}
			master.Quantity += quantity
			if saveErr := txStore.SaveMasterCard(ctx, master); saveErr != nil {
				return saveErr
			}
		}
		return nil
	})
	if localErr != nil {
		return WrapError(operationWithdrawOfficial, cardID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationWithdrawOfficial,
		OperationID:  operationID,
		CollectionID: collectionID,
		CardID:       cardID,
		Quantity:     quantity,
		Status:       operationStatusOK,
	})
	return nil
}
