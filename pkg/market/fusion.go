package market

import (
	"context"
	"errors"
	"fmt"
)

// FusionOutcome reports the result of a fusion attempt. When the user cannot
// cover every ingredient, Fused is false and Missing lists each shortfall;
// that is a normal outcome, not an error, and nothing is mutated.
type FusionOutcome struct {
	Fused              bool
	ResultCollectionID string
	ResultCardID       string
	Missing            []MissingIngredient
}

// PerformFusion consumes a recipe's ingredients from the user's available
// quantities and grants the result card through the remote ledger. Only
// unlocked quantity counts toward an ingredient. Ingredient consumption
// commits locally first; a remote failure restores every consumed ingredient.
func (coordinator *Coordinator) PerformFusion(ctx context.Context, userID string, recipeID string) (FusionOutcome, error) {
	if userID == "" {
		return FusionOutcome{}, WrapError(operationPerformFusion, recipeID, codeValidation, fmt.Errorf("%w: user id is required", ErrValidation))
	}

	operationID := coordinator.newID()
	var outcome FusionOutcome
	var recipe FusionRecipe

	localErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		found := false
		var getErr error
		recipe, found, getErr = txStore.GetFusionRecipe(ctx, recipeID)
		if getErr != nil {
			return getErr
		}
		if !found {
			return fmt.Errorf("%w: fusion recipe %s", ErrNotFound, recipeID)
		}

		// First pass: check coverage without mutating anything, so a shortfall
		// reports every missing ingredient at once.
		cards := make(map[string]UserCard, len(recipe.Ingredients))
		cardFound := make(map[string]bool, len(recipe.Ingredients))
		missing := make([]MissingIngredient, 0)
		for _, ingredient := range recipe.Ingredients {
			key := ingredient.CollectionID + "/" + ingredient.CardID
			card, ok, cardErr := txStore.GetUserCard(ctx, userID, ingredient.CollectionID, ingredient.CardID)
			if cardErr != nil {
				return cardErr
			}
			cards[key] = card
			cardFound[key] = ok
			available := int64(0)
			if ok {
				available = card.Available()
			}
			if available < ingredient.Quantity {
				missing = append(missing, MissingIngredient{
					CollectionID: ingredient.CollectionID,
					CardID:       ingredient.CardID,
					Required:     ingredient.Quantity,
					Available:    available,
				})
			}
		}
		if len(missing) > 0 {
			outcome = FusionOutcome{Fused: false, Missing: missing}
			return nil
		}

		for _, ingredient := range recipe.Ingredients {
			key := ingredient.CollectionID + "/" + ingredient.CardID
			card := cards[key]
			updated, remove, destroyErr := ApplyDestroy(card, ingredient.Quantity)
			if destroyErr != nil {
				return destroyErr
			}
			if remove {
				if deleteErr := txStore.DeleteUserCard(ctx, userID, ingredient.CollectionID, ingredient.CardID); deleteErr != nil {
					return deleteErr
				}
			} else {
				if saveErr := txStore.SaveUserCard(ctx, updated); saveErr != nil {
					return saveErr
				}
			}
		}
		if countErr := txStore.IncrementFusionCount(ctx, userID); countErr != nil {
			return countErr
		}
		outcome = FusionOutcome{
			Fused:              true,
			ResultCollectionID: recipe.ResultCollectionID,
			ResultCardID:       recipe.ResultCardID,
		}
		return nil
	})
	if localErr != nil {
		return FusionOutcome{}, WrapError(operationPerformFusion, recipeID, codeFor(localErr), localErr)
	}
	if !outcome.Fused {
		coordinator.logOperation(ctx, OperationLog{
			Operation:   operationPerformFusion,
			OperationID: operationID,
			UserID:      userID,
			Status:      operationStatusOK,
			Detail:      fmt.Sprintf("missing %d ingredients, nothing consumed", len(outcome.Missing)),
		})
		return outcome, nil
	}

	remoteErr := coordinator.remote.Apply(ctx, RemoteApply{
		OperationID: operationID,
		UserID:      userID,
		CardGrants: []CardGrant{{
			CollectionID: recipe.ResultCollectionID,
			CardID:       recipe.ResultCardID,
			Quantity:     1,
		}},
	})
	if remoteErr != nil {
		coordinator.compensateFusion(ctx, operationID, userID, recipe, remoteErr)
		return FusionOutcome{}, WrapError(operationPerformFusion, recipeID, codeRemote, fmt.Errorf("%w: %v", ErrRemoteService, remoteErr))
	}

	coordinator.logOperation(ctx, OperationLog{
		Operation:    operationPerformFusion,
		OperationID:  operationID,
		UserID:       userID,
		CollectionID: recipe.ResultCollectionID,
		CardID:       recipe.ResultCardID,
		Quantity:     1,
		Status:       operationStatusOK,
	})
	return outcome, nil
}

// compensateFusion restores consumed ingredients after a failed remote grant.
func (coordinator *Coordinator) compensateFusion(ctx context.Context, operationID string, userID string, recipe FusionRecipe, remoteErr error) {
	compensateErr := coordinator.runInTx(ctx, func(ctx context.Context, txStore Store) error {
		now := coordinator.nowUnixUTC()
		for _, ingredient := range recipe.Ingredients {
			card, found, getErr := txStore.GetUserCard(ctx, userID, ingredient.CollectionID, ingredient.CardID)
			if getErr != nil {
				return getErr
			}
			template := UserCard{
				UserID:       userID,
				CollectionID: ingredient.CollectionID,
				CardID:       ingredient.CardID,
			}
			master, masterFound, masterErr := txStore.GetMasterCard(ctx, ingredient.CollectionID, ingredient.CardID)
			if masterErr != nil {
				return masterErr
			}
			if masterFound {
				template.CardName = master.Name
				template.Rarity = master.Rarity
				template.PointWorth = master.PointWorth
			}
			restored := GrantCard(card, found, template, ingredient.Quantity, now)
			if saveErr := txStore.SaveUserCard(ctx, restored); saveErr != nil {
				return saveErr
			}
		}
		return nil
	})

	entry := OperationLog{
		Operation:    operationPerformFusion,
		OperationID:  operationID,
		UserID:       userID,
		CollectionID: recipe.ResultCollectionID,
		CardID:       recipe.ResultCardID,
		Status:       operationStatusCompensated,
		Detail:       "remote grant failed, ingredients restored",
		Error:        remoteErr,
	}
	if compensateErr != nil {
		entry.Status = operationStatusError
		entry.Detail = "remote grant failed and ingredient restore also failed, manual reconciliation required"
		entry.Error = errors.Join(remoteErr, compensateErr)
	}
	coordinator.logOperation(ctx, entry)
}
