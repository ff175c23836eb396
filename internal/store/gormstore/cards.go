package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

func (store *Store) GetUserCard(ctx context.Context, userID string, collectionID string, cardID string) (market.UserCard, bool, error) {
	var row UserCard
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND collection_id = ? AND card_id = ?", userID, collectionID, cardID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.UserCard{}, false, nil
	}
	if err != nil {
		return market.UserCard{}, false, classifyError(err)
	}
	return market.UserCard{
		UserID:          row.UserID,
		CollectionID:    row.CollectionID,
		CardID:          row.CardID,
		CardName:        row.CardName,
		Quantity:        row.Quantity,
		LockedQuantity:  row.LockedQuantity,
		PointWorth:      row.PointWorth,
		Rarity:          row.Rarity,
		AcquiredUnixUTC: row.AcquiredAt.Unix(),
	}, true, nil
}

func (store *Store) SaveUserCard(ctx context.Context, card market.UserCard) error {
	acquiredAt := time.Unix(card.AcquiredUnixUTC, 0).UTC()
	if card.AcquiredUnixUTC == 0 {
		acquiredAt = time.Now().UTC()
	}
	row := UserCard{
		UserID:         card.UserID,
		CollectionID:   card.CollectionID,
		CardID:         card.CardID,
		CardName:       card.CardName,
		Quantity:       card.Quantity,
		LockedQuantity: card.LockedQuantity,
		PointWorth:     card.PointWorth,
		Rarity:         card.Rarity,
		AcquiredAt:     acquiredAt,
		UpdatedAt:      time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "collection_id"}, {Name: "card_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}

func (store *Store) DeleteUserCard(ctx context.Context, userID string, collectionID string, cardID string) error {
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND collection_id = ? AND card_id = ?", userID, collectionID, cardID).
		Delete(&UserCard{}).Error
	return classifyError(err)
}

func (store *Store) GetMasterCard(ctx context.Context, collectionID string, cardID string) (market.MasterCard, bool, error) {
	var row MasterCard
	err := store.db.WithContext(ctx).
		Where("collection_id = ? AND card_id = ?", collectionID, cardID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.MasterCard{}, false, nil
	}
	if err != nil {
		return market.MasterCard{}, false, classifyError(err)
	}
	return market.MasterCard{
		CollectionID:          row.CollectionID,
		CardID:                row.CardID,
		Name:                  row.Name,
		Rarity:                row.Rarity,
		PointWorth:            row.PointWorth,
		Quantity:              row.Quantity,
		QuantityInMarketplace: row.QuantityInMarketplace,
	}, true, nil
}

func (store *Store) SaveMasterCard(ctx context.Context, card market.MasterCard) error {
	row := MasterCard{
		CollectionID:          card.CollectionID,
		CardID:                card.CardID,
		Name:                  card.Name,
		Rarity:                card.Rarity,
		PointWorth:            card.PointWorth,
		Quantity:              card.Quantity,
		QuantityInMarketplace: card.QuantityInMarketplace,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection_id"}, {Name: "card_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}
