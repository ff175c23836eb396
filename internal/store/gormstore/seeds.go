package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/gacha/pkg/fairness"
)

// seedStore adapts the database to fairness.SeedStore. It is a separate type
// because the seed and market transactional contracts differ only in the
// store type handed to the callback.
type seedStore struct {
	db *gorm.DB
}

// Seeds returns the fairness.SeedStore view of the database.
func (store *Store) Seeds() fairness.SeedStore {
	return seedStore{db: store.db}
}

func (seeds seedStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore fairness.SeedStore) error) error {
	err := seeds.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, seedStore{db: transaction})
	})
	return classifyError(err)
}

func (seeds seedStore) GetSeedState(ctx context.Context, userID string) (fairness.SeedState, bool, error) {
	var row SeedState
	err := seeds.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fairness.SeedState{}, false, nil
	}
	if err != nil {
		return fairness.SeedState{}, false, classifyError(err)
	}
	return fairness.SeedState{
		UserID:         row.UserID,
		ServerSeed:     row.ServerSeed,
		ServerSeedHash: row.ServerSeedHash,
		ClientSeed:     row.ClientSeed,
		Nonce:          row.Nonce,
	}, true, nil
}

func (seeds seedStore) SaveSeedState(ctx context.Context, state fairness.SeedState) error {
	row := SeedState{
		UserID:         state.UserID,
		ServerSeed:     state.ServerSeed,
		ServerSeedHash: state.ServerSeedHash,
		ClientSeed:     state.ClientSeed,
		Nonce:          state.Nonce,
		UpdatedAt:      time.Now().UTC(),
	}
	err := seeds.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}
