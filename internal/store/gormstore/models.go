package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet holds a user's point balance and lifetime counters.
type Wallet struct {
	UserID        string    `gorm:"primaryKey"`
	PointsBalance int64     `gorm:"not null"`
	PointsSpent   int64     `gorm:"not null"`
	FusionCount   int64     `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// UserCard mirrors the user_cards table. Quantity is total owned;
// LockedQuantity is the portion reserved by open listings.
type UserCard struct {
	UserID         string    `gorm:"primaryKey"`
	CollectionID   string    `gorm:"primaryKey"`
	CardID         string    `gorm:"primaryKey"`
	CardName       string    `gorm:"not null"`
	Quantity       int64     `gorm:"not null"`
	LockedQuantity int64     `gorm:"not null"`
	PointWorth     int64     `gorm:"not null"`
	Rarity         int       `gorm:"not null"`
	AcquiredAt     time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (UserCard) TableName() string { return "user_cards" }

// MasterCard mirrors the master_cards table.
type MasterCard struct {
	CollectionID          string `gorm:"primaryKey"`
	CardID                string `gorm:"primaryKey"`
	Name                  string `gorm:"not null"`
	Rarity                int    `gorm:"not null"`
	PointWorth            int64  `gorm:"not null"`
	Quantity              int64  `gorm:"not null"`
	QuantityInMarketplace int64  `gorm:"not null"`
	ImageURL              string `gorm:""`
}

func (MasterCard) TableName() string { return "master_cards" }

// Listing mirrors the listings table.
type Listing struct {
	ListingID               string     `gorm:"type:uuid;primaryKey"`
	OwnerID                 string     `gorm:"not null;index:idx_listings_owner"`
	CollectionID            string     `gorm:"not null"`
	CardID                  string     `gorm:"not null"`
	Quantity                int64      `gorm:"not null"`
	PricePoints             int64      `gorm:"not null"`
	PriceCashCents          int64      `gorm:"not null"`
	Status                  string     `gorm:"not null;index:idx_listings_status"`
	HighestOfferPoints      int64      `gorm:"not null"`
	HighestOfferPointsID    string     `gorm:""`
	HighestOfferCashCents   int64      `gorm:"not null"`
	HighestOfferCashOfferID string     `gorm:""`
	PaymentDueAt            *time.Time `gorm:""`
	ExpiresAt               *time.Time `gorm:""`
	CreatedAt               time.Time  `gorm:"not null"`
	UpdatedAt               time.Time  `gorm:"not null"`
}

func (Listing) TableName() string { return "listings" }

func (listing *Listing) BeforeCreate(tx *gorm.DB) error {
	if listing.ListingID == "" {
		listing.ListingID = uuid.NewString()
	}
	return nil
}

// Offer mirrors the offers table.
type Offer struct {
	OfferID      string     `gorm:"type:uuid;primaryKey"`
	ListingID    string     `gorm:"type:uuid;not null;index:idx_offers_listing"`
	Kind         string     `gorm:"not null"`
	OffererID    string     `gorm:"not null"`
	Amount       int64      `gorm:"not null"`
	Status       string     `gorm:"not null"`
	PaymentDueAt *time.Time `gorm:""`
	PaidAt       *time.Time `gorm:""`
	ExpiresAt    *time.Time `gorm:""`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

func (Offer) TableName() string { return "offers" }

func (offer *Offer) BeforeCreate(tx *gorm.DB) error {
	if offer.OfferID == "" {
		offer.OfferID = uuid.NewString()
	}
	return nil
}

// OfficialListing mirrors the official_listings table.
type OfficialListing struct {
	CollectionID   string    `gorm:"primaryKey"`
	CardID         string    `gorm:"primaryKey"`
	Quantity       int64     `gorm:"not null"`
	PricePoints    int64     `gorm:"not null"`
	PriceCashCents int64     `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (OfficialListing) TableName() string { return "official_listings" }

// FusionRecipe mirrors the fusion_recipes table. Ingredients is a JSON array
// of {collection_id, card_id, quantity}.
type FusionRecipe struct {
	RecipeID           string         `gorm:"type:uuid;primaryKey"`
	ResultCollectionID string         `gorm:"not null"`
	ResultCardID       string         `gorm:"not null"`
	Ingredients        datatypes.JSON `gorm:"not null"`
	CreatedAt          time.Time      `gorm:"not null"`
}

func (FusionRecipe) TableName() string { return "fusion_recipes" }

// TradeTransaction mirrors the transactions table.
type TradeTransaction struct {
	TransactionID  string    `gorm:"type:uuid;primaryKey"`
	ListingID      string    `gorm:"not null;index:idx_transactions_listing"`
	SellerID       string    `gorm:"not null"`
	BuyerID        string    `gorm:"not null"`
	CollectionID   string    `gorm:"not null"`
	CardID         string    `gorm:"not null"`
	Quantity       int64     `gorm:"not null"`
	PricePoints    int64     `gorm:"not null"`
	PriceCashCents int64     `gorm:"not null"`
	TradedAt       time.Time `gorm:"not null"`
}

func (TradeTransaction) TableName() string { return "transactions" }

func (record *TradeTransaction) BeforeCreate(tx *gorm.DB) error {
	if record.TransactionID == "" {
		record.TransactionID = uuid.NewString()
	}
	return nil
}

// WithdrawRequest mirrors the withdraw_requests table. Items is a JSON array
// of {collection_id, card_id, quantity}.
type WithdrawRequest struct {
	RequestID string         `gorm:"type:uuid;primaryKey"`
	UserID    string         `gorm:"not null;index:idx_withdraw_requests_user"`
	AddressID string         `gorm:"not null"`
	Items     datatypes.JSON `gorm:"not null"`
	Status    string         `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (WithdrawRequest) TableName() string { return "withdraw_requests" }

// SeedState mirrors the seed_states table, one row per user.
type SeedState struct {
	UserID         string    `gorm:"primaryKey"`
	ServerSeed     string    `gorm:"not null"`
	ServerSeedHash string    `gorm:"not null"`
	ClientSeed     string    `gorm:"not null"`
	Nonce          int64     `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (SeedState) TableName() string { return "seed_states" }

// Pack mirrors the packs table. Rarities is the JSON pack definition, an
// array of {rarity_id, probability, card_pool}.
type Pack struct {
	CollectionID string         `gorm:"primaryKey"`
	PackID       string         `gorm:"primaryKey"`
	PricePoints  int64          `gorm:"not null"`
	SplitPolicy  string         `gorm:"not null"`
	Rarities     datatypes.JSON `gorm:"not null"`
	Popularity   int64          `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (Pack) TableName() string { return "packs" }

// ProcessedWebhookEvent records handled payment events for idempotent
// webhook delivery.
type ProcessedWebhookEvent struct {
	EventID     string    `gorm:"primaryKey"`
	ProcessedAt time.Time `gorm:"not null"`
}

func (ProcessedWebhookEvent) TableName() string { return "processed_webhook_events" }

// AllModels lists every table for AutoMigrate.
func AllModels() []any {
	return []any{
		&Wallet{},
		&UserCard{},
		&MasterCard{},
		&Listing{},
		&Offer{},
		&OfficialListing{},
		&FusionRecipe{},
		&TradeTransaction{},
		&WithdrawRequest{},
		&SeedState{},
		&Pack{},
		&ProcessedWebhookEvent{},
	}
}
