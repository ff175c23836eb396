package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
)

// packRarity is the stored JSON shape of one rarity tier.
type packRarity struct {
	RarityID    string   `json:"rarity_id"`
	Probability float64  `json:"probability"`
	CardPool    []string `json:"card_pool"`
}

func (store *Store) GetPack(ctx context.Context, collectionID string, packID string) (draw.Pack, bool, error) {
	var row Pack
	err := store.db.WithContext(ctx).
		Where("collection_id = ? AND pack_id = ?", collectionID, packID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return draw.Pack{}, false, nil
	}
	if err != nil {
		return draw.Pack{}, false, classifyError(err)
	}
	var rarities []packRarity
	if unmarshalErr := json.Unmarshal(row.Rarities, &rarities); unmarshalErr != nil {
		return draw.Pack{}, false, fmt.Errorf("pack %s/%s: %w", collectionID, packID, unmarshalErr)
	}
	pack := draw.Pack{
		ID:           row.PackID,
		CollectionID: row.CollectionID,
		PricePoints:  row.PricePoints,
		SplitPolicy:  draw.SplitPolicy(row.SplitPolicy),
		Popularity:   row.Popularity,
		Rarities:     make([]draw.Rarity, 0, len(rarities)),
	}
	for _, rarity := range rarities {
		pack.Rarities = append(pack.Rarities, draw.Rarity{
			ID:          rarity.RarityID,
			Probability: rarity.Probability,
			CardPool:    rarity.CardPool,
		})
	}
	return pack, true, nil
}

// SavePack validates and stores a pack definition. Invalid definitions are
// rejected at write time so draws never see one.
func (store *Store) SavePack(ctx context.Context, pack draw.Pack) error {
	if err := pack.Validate(); err != nil {
		return err
	}
	rarities := make([]packRarity, 0, len(pack.Rarities))
	for _, rarity := range pack.Rarities {
		rarities = append(rarities, packRarity{
			RarityID:    rarity.ID,
			Probability: rarity.Probability,
			CardPool:    rarity.CardPool,
		})
	}
	encoded, marshalErr := json.Marshal(rarities)
	if marshalErr != nil {
		return marshalErr
	}
	row := Pack{
		CollectionID: pack.CollectionID,
		PackID:       pack.ID,
		PricePoints:  pack.PricePoints,
		SplitPolicy:  string(pack.SplitPolicy),
		Rarities:     datatypes.JSON(encoded),
		Popularity:   pack.Popularity,
		UpdatedAt:    time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection_id"}, {Name: "pack_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}

func (store *Store) IncrementPopularity(ctx context.Context, collectionID string, packID string, delta int64) error {
	err := store.db.WithContext(ctx).
		Model(&Pack{}).
		Where("collection_id = ? AND pack_id = ?", collectionID, packID).
		Updates(map[string]any{
			"popularity": gorm.Expr("popularity + ?", delta),
			"updated_at": time.Now().UTC(),
		}).Error
	return classifyError(err)
}

// GetCard resolves catalog metadata for a drawn card id.
func (store *Store) GetCard(ctx context.Context, collectionID string, cardID string) (draw.Card, error) {
	var row MasterCard
	err := store.db.WithContext(ctx).
		Where("collection_id = ? AND card_id = ?", collectionID, cardID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return draw.Card{}, fmt.Errorf("%w: %s/%s", draw.ErrUnknownCard, collectionID, cardID)
	}
	if err != nil {
		return draw.Card{}, classifyError(err)
	}
	return draw.Card{
		CardID:       row.CardID,
		CollectionID: row.CollectionID,
		Name:         row.Name,
		Rarity:       row.Rarity,
		PointWorth:   row.PointWorth,
		ImageURL:     row.ImageURL,
	}, nil
}
