package market

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
)

// PackOpener performs provably fair draws. Satisfied by draw.Orchestrator.
type PackOpener interface {
	Draw(ctx context.Context, userID string, collectionID string, packID string, count int) (draw.BatchResult, error)
}

// OpenPack charges the pack price per draw and credits the drawn cards to the
// user's local inventory. With a pack store configured, the balance is checked
// against the full batch price before any draw runs so an unaffordable batch
// never consumes nonces; after drawing, only successful draws are charged.
// Draw provenance lands in the opening ledger inside the opener itself.
func (coordinator *Coordinator) OpenPack(ctx context.Context, opener PackOpener, userID string, collectionID string, packID string, count int) (draw.BatchResult, error) {
	if opener == nil {
		return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeValidation, fmt.Errorf("%w: pack opener is required", ErrValidation))
	}
	if userID == "" {
		return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeValidation, fmt.Errorf("%w: user id is required", ErrValidation))
	}

	if coordinator.packs != nil {
		pack, found, packErr := coordinator.packs.GetPack(ctx, collectionID, packID)
		if packErr != nil {
			return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeInternal, packErr)
		}
		if !found {
			return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeNotFound, fmt.Errorf("%w: pack %s/%s", ErrNotFound, collectionID, packID))
		}
		fullPrice := pack.PricePoints * int64(count)
		balance, balanceErr := coordinator.store.GetPointsBalance(ctx, userID)
		if balanceErr != nil {
			return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeInternal, balanceErr)
		}
		if balance < fullPrice {
			return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeBalance, fmt.Errorf("%w: price %d, balance %d", ErrInsufficientBalance, fullPrice, balance))
		}
	}

	batch, drawErr := opener.Draw(ctx, userID, collectionID, packID, count)
	if drawErr != nil {
		return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeFor(drawErr), drawErr)
	}

	charged := batch.PricePoints * int64(len(batch.Results))

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		if charged > 0 {
			balance, balanceErr := txStore.GetPointsBalance(ctx, userID)
			if balanceErr != nil {
				return balanceErr
			}
			if balance < charged {
				return fmt.Errorf("%w: price %d, balance %d", ErrInsufficientBalance, charged, balance)
			}
			if adjustErr := txStore.AdjustPointsBalance(ctx, userID, -charged); adjustErr != nil {
				return adjustErr
			}
			if spentErr := txStore.AddPointsSpent(ctx, userID, charged); spentErr != nil {
				return spentErr
			}
		}
		now := coordinator.nowUnixUTC()
		for _, result := range batch.Results {
			card, found, getErr := txStore.GetUserCard(ctx, userID, result.CollectionID, result.CardID)
			if getErr != nil {
				return getErr
			}
			template := UserCard{
				UserID:       userID,
				CollectionID: result.CollectionID,
				CardID:       result.CardID,
				CardName:     result.CardName,
				PointWorth:   result.PointWorth,
				Rarity:       result.Rarity,
			}
			granted := GrantCard(card, found, template, 1, now)
			if saveErr := txStore.SaveUserCard(ctx, granted); saveErr != nil {
				return saveErr
			}
		}
		return nil
	})
	if localErr != nil {
		return draw.BatchResult{}, WrapError(operationOpenPack, packID, codeFor(localErr), localErr)
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationOpenPack,
		OperationID:  coordinator.newID(),
		UserID:       userID,
		CollectionID: collectionID,
		CardID:       packID,
		Quantity:     int64(len(batch.Results)),
		Points:       charged,
		Status:       operationStatusOK,
	})
	return batch, nil
}
