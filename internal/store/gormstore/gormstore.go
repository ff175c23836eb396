// Package gormstore persists marketplace, seed, and pack state through GORM,
// against sqlite for development and PostgreSQL in production.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

const (
	pgUniqueViolationCode      = "23505"
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	sqliteConstraintCode       = 19
	sqliteBusyCode             = 5
	sqliteLockedCode           = 6
)

// Store implements market.Store, fairness.SeedStore, draw.PackStore, and
// draw.CardCatalog on one gorm.DB.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table the store uses.
func (store *Store) AutoMigrate() error {
	return store.db.AutoMigrate(AllModels()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore market.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	return classifyError(err)
}

func (store *Store) GetPointsBalance(ctx context.Context, userID string) (int64, error) {
	var wallet Wallet
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, classifyError(err)
	}
	return wallet.PointsBalance, nil
}

func (store *Store) AdjustPointsBalance(ctx context.Context, userID string, delta int64) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"points_balance": gorm.Expr("points_balance + ?", delta),
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return classifyError(result.Error)
	}
	if result.RowsAffected == 0 {
		wallet := Wallet{UserID: userID, PointsBalance: delta, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		return classifyError(store.db.WithContext(ctx).Create(&wallet).Error)
	}
	return nil
}

func (store *Store) AddPointsSpent(ctx context.Context, userID string, points int64) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"points_spent": gorm.Expr("points_spent + ?", points),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return classifyError(result.Error)
	}
	if result.RowsAffected == 0 {
		wallet := Wallet{UserID: userID, PointsSpent: points, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		return classifyError(store.db.WithContext(ctx).Create(&wallet).Error)
	}
	return nil
}

func (store *Store) IncrementFusionCount(ctx context.Context, userID string) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"fusion_count": gorm.Expr("fusion_count + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return classifyError(result.Error)
	}
	if result.RowsAffected == 0 {
		wallet := Wallet{UserID: userID, FusionCount: 1, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		return classifyError(store.db.WithContext(ctx).Create(&wallet).Error)
	}
	return nil
}

// classifyError maps driver-level failures to the domain sentinels the
// coordinator understands. Lost races become ErrConcurrencyConflict so the
// bounded retry loop can run again; unique violations become
// ErrDuplicateRecord.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, market.ErrConcurrencyConflict) || errors.Is(err, market.ErrDuplicateRecord) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", market.ErrDuplicateRecord, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolationCode:
			return fmt.Errorf("%w: %v", market.ErrDuplicateRecord, err)
		case pgSerializationFailureCode, pgDeadlockDetectedCode:
			return fmt.Errorf("%w: %v", market.ErrConcurrencyConflict, err)
		}
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xFF {
		case sqliteConstraintCode:
			return fmt.Errorf("%w: %v", market.ErrDuplicateRecord, err)
		case sqliteBusyCode, sqliteLockedCode:
			return fmt.Errorf("%w: %v", market.ErrConcurrencyConflict, err)
		}
	}
	return err
}
