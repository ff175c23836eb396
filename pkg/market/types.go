package market

import "context"

// UserCard is one owned card aggregate. Quantity is the total owned;
// LockedQuantity is the portion reserved by open sell listings. Only
// Quantity - LockedQuantity is eligible for new listings, fusion, destruction,
// or shipping.
type UserCard struct {
	UserID          string
	CollectionID    string
	CardID          string
	CardName        string
	Quantity        int64
	LockedQuantity  int64
	PointWorth      int64
	Rarity          int
	AcquiredUnixUTC int64
}

// Available is the portion of the card not reserved by listings.
func (card UserCard) Available() int64 {
	return card.Quantity - card.LockedQuantity
}

// MasterCard is the operator-owned source document a user card derives from.
// QuantityInMarketplace mirrors stock moved into official listings.
type MasterCard struct {
	CollectionID          string
	CardID                string
	Name                  string
	Rarity                int
	PointWorth            int64
	Quantity              int64
	QuantityInMarketplace int64
}

// ListingStatus is the user-listing lifecycle.
type ListingStatus string

const (
	ListingStatusOpen      ListingStatus = "open"
	ListingStatusAccepted  ListingStatus = "accepted"
	ListingStatusWithdrawn ListingStatus = "withdrawn"
)

// Listing is a user sell listing. HighestOffer* fields are denormalized
// pointers to the current best offer of each kind.
type Listing struct {
	ID                      string
	OwnerID                 string
	CollectionID            string
	CardID                  string
	Quantity                int64
	PricePoints             int64
	PriceCashCents          int64
	Status                  ListingStatus
	HighestOfferPoints      int64
	HighestOfferPointsID    string
	HighestOfferCashCents   int64
	HighestOfferCashOfferID string
	CreatedUnixUTC          int64
	ExpiresAtUnixUTC        int64
	PaymentDueUnixUTC       int64
}

// OfferKind distinguishes point offers from cash offers.
type OfferKind string

const (
	OfferKindPoint OfferKind = "point"
	OfferKindCash  OfferKind = "cash"
)

// OfferStatus is the offer lifecycle.
type OfferStatus string

const (
	OfferStatusOpen      OfferStatus = "open"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusPaid      OfferStatus = "paid"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
)

// Offer is a bid on a listing. Amount is points for point offers and cents
// for cash offers.
type Offer struct {
	ID                string
	ListingID         string
	Kind              OfferKind
	OffererID         string
	Amount            int64
	Status            OfferStatus
	CreatedUnixUTC    int64
	ExpiresAtUnixUTC  int64
	PaymentDueUnixUTC int64
	PaidAtUnixUTC     int64
}

// OfficialListingEntry is one operator-stocked card offered for direct sale.
type OfficialListingEntry struct {
	CollectionID   string
	CardID         string
	Quantity       int64
	PricePoints    int64
	PriceCashCents int64
}

// Transaction is the settlement record appended for every completed trade.
type Transaction struct {
	ID             string
	ListingID      string
	SellerID       string
	BuyerID        string
	CollectionID   string
	CardID         string
	Quantity       int64
	PricePoints    int64
	PriceCashCents int64
	TradedUnixUTC  int64
}

// ShipmentItem is one card line of a physical withdraw request.
type ShipmentItem struct {
	CollectionID string
	CardID       string
	Quantity     int64
}

// WithdrawRequest records a user's request to ship physical cards.
type WithdrawRequest struct {
	ID             string
	UserID         string
	AddressID      string
	Items          []ShipmentItem
	Status         string
	CreatedUnixUTC int64
}

// FusionIngredient is one required input of a fusion recipe.
type FusionIngredient struct {
	CollectionID string
	CardID       string
	Quantity     int64
}

// FusionRecipe turns a fixed ingredient set into one result card.
type FusionRecipe struct {
	ID                 string
	ResultCollectionID string
	ResultCardID       string
	Ingredients        []FusionIngredient
}

// MissingIngredient names a fusion ingredient the user cannot cover.
type MissingIngredient struct {
	CollectionID string
	CardID       string
	Required     int64
	Available    int64
}

// Store is the persistence contract used by the Coordinator. Every compound
// operation runs its read-validate-write sequence inside one WithTx call; the
// store maps lost races to ErrConcurrencyConflict so the coordinator can
// retry.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetPointsBalance(ctx context.Context, userID string) (int64, error)
	AdjustPointsBalance(ctx context.Context, userID string, delta int64) error
	AddPointsSpent(ctx context.Context, userID string, points int64) error
	IncrementFusionCount(ctx context.Context, userID string) error

	GetUserCard(ctx context.Context, userID string, collectionID string, cardID string) (UserCard, bool, error)
	SaveUserCard(ctx context.Context, card UserCard) error
	DeleteUserCard(ctx context.Context, userID string, collectionID string, cardID string) error

	GetMasterCard(ctx context.Context, collectionID string, cardID string) (MasterCard, bool, error)
	SaveMasterCard(ctx context.Context, card MasterCard) error

	GetListing(ctx context.Context, listingID string) (Listing, bool, error)
	SaveListing(ctx context.Context, listing Listing) error
	DeleteListing(ctx context.Context, listingID string) error

	GetOffer(ctx context.Context, listingID string, offerID string) (Offer, bool, error)
	SaveOffer(ctx context.Context, offer Offer) error
	ListOpenOffers(ctx context.Context, listingID string) ([]Offer, error)

	GetOfficialListing(ctx context.Context, collectionID string, cardID string) (OfficialListingEntry, bool, error)
	SaveOfficialListing(ctx context.Context, entry OfficialListingEntry) error
	DeleteOfficialListing(ctx context.Context, collectionID string, cardID string) error

	GetFusionRecipe(ctx context.Context, recipeID string) (FusionRecipe, bool, error)

	InsertTransaction(ctx context.Context, record Transaction) error
	InsertWithdrawRequest(ctx context.Context, request WithdrawRequest) error
}

// CardGrant is one card credited by the remote ledger service.
type CardGrant struct {
	CollectionID string
	CardID       string
	Quantity     int64
}

// RemoteApply bundles everything one compound operation asks of the remote
// points/cards context, so that side applies it atomically or not at all.
// OperationID doubles as the idempotency key.
type RemoteApply struct {
	OperationID string
	UserID      string
	CardGrants  []CardGrant
	PointsDelta int64
}

// RemoteLedger is the remote bounded context owning the user-facing card and
// point ledger. One call per compound operation; success or failure, never
// partial.
type RemoteLedger interface {
	Apply(ctx context.Context, apply RemoteApply) error
}
