package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

func (store *Store) GetListing(ctx context.Context, listingID string) (market.Listing, bool, error) {
	var row Listing
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("listing_id = ?", listingID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Listing{}, false, nil
	}
	if err != nil {
		return market.Listing{}, false, classifyError(err)
	}
	return market.Listing{
		ID:                      row.ListingID,
		OwnerID:                 row.OwnerID,
		CollectionID:            row.CollectionID,
		CardID:                  row.CardID,
		Quantity:                row.Quantity,
		PricePoints:             row.PricePoints,
		PriceCashCents:          row.PriceCashCents,
		Status:                  market.ListingStatus(row.Status),
		HighestOfferPoints:      row.HighestOfferPoints,
		HighestOfferPointsID:    row.HighestOfferPointsID,
		HighestOfferCashCents:   row.HighestOfferCashCents,
		HighestOfferCashOfferID: row.HighestOfferCashOfferID,
		CreatedUnixUTC:          row.CreatedAt.Unix(),
		ExpiresAtUnixUTC:        timeOrZero(row.ExpiresAt),
		PaymentDueUnixUTC:       timeOrZero(row.PaymentDueAt),
	}, true, nil
}

func (store *Store) SaveListing(ctx context.Context, listing market.Listing) error {
	row := Listing{
		ListingID:               listing.ID,
		OwnerID:                 listing.OwnerID,
		CollectionID:            listing.CollectionID,
		CardID:                  listing.CardID,
		Quantity:                listing.Quantity,
		PricePoints:             listing.PricePoints,
		PriceCashCents:          listing.PriceCashCents,
		Status:                  string(listing.Status),
		HighestOfferPoints:      listing.HighestOfferPoints,
		HighestOfferPointsID:    listing.HighestOfferPointsID,
		HighestOfferCashCents:   listing.HighestOfferCashCents,
		HighestOfferCashOfferID: listing.HighestOfferCashOfferID,
		PaymentDueAt:            timePointer(listing.PaymentDueUnixUTC),
		ExpiresAt:               timePointer(listing.ExpiresAtUnixUTC),
		CreatedAt:               time.Unix(listing.CreatedUnixUTC, 0).UTC(),
		UpdatedAt:               time.Now().UTC(),
	}
	if row.CreatedAt.IsZero() || listing.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "listing_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}

func (store *Store) DeleteListing(ctx context.Context, listingID string) error {
	err := store.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Delete(&Listing{}).Error
	return classifyError(err)
}

func (store *Store) GetOffer(ctx context.Context, listingID string, offerID string) (market.Offer, bool, error) {
	var row Offer
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("listing_id = ? AND offer_id = ?", listingID, offerID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Offer{}, false, nil
	}
	if err != nil {
		return market.Offer{}, false, classifyError(err)
	}
	return market.Offer{
		ID:                row.OfferID,
		ListingID:         row.ListingID,
		Kind:              market.OfferKind(row.Kind),
		OffererID:         row.OffererID,
		Amount:            row.Amount,
		Status:            market.OfferStatus(row.Status),
		CreatedUnixUTC:    row.CreatedAt.Unix(),
		ExpiresAtUnixUTC:  timeOrZero(row.ExpiresAt),
		PaymentDueUnixUTC: timeOrZero(row.PaymentDueAt),
		PaidAtUnixUTC:     timeOrZero(row.PaidAt),
	}, true, nil
}

func (store *Store) SaveOffer(ctx context.Context, offer market.Offer) error {
	row := Offer{
		OfferID:      offer.ID,
		ListingID:    offer.ListingID,
		Kind:         string(offer.Kind),
		OffererID:    offer.OffererID,
		Amount:       offer.Amount,
		Status:       string(offer.Status),
		PaymentDueAt: timePointer(offer.PaymentDueUnixUTC),
		PaidAt:       timePointer(offer.PaidAtUnixUTC),
		ExpiresAt:    timePointer(offer.ExpiresAtUnixUTC),
		CreatedAt:    time.Unix(offer.CreatedUnixUTC, 0).UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if offer.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "offer_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}

func (store *Store) ListOpenOffers(ctx context.Context, listingID string) ([]market.Offer, error) {
	var rows []Offer
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("listing_id = ? AND status = ?", listingID, string(market.OfferStatusOpen)).
		Find(&rows).Error
	if err != nil {
		return nil, classifyError(err)
	}
	open := make([]market.Offer, 0, len(rows))
	for _, row := range rows {
		open = append(open, market.Offer{
			ID:                row.OfferID,
			ListingID:         row.ListingID,
			Kind:              market.OfferKind(row.Kind),
			OffererID:         row.OffererID,
			Amount:            row.Amount,
			Status:            market.OfferStatus(row.Status),
			CreatedUnixUTC:    row.CreatedAt.Unix(),
			ExpiresAtUnixUTC:  timeOrZero(row.ExpiresAt),
			PaymentDueUnixUTC: timeOrZero(row.PaymentDueAt),
			PaidAtUnixUTC:     timeOrZero(row.PaidAt),
		})
	}
	return open, nil
}

func (store *Store) GetOfficialListing(ctx context.Context, collectionID string, cardID string) (market.OfficialListingEntry, bool, error) {
	var row OfficialListing
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("collection_id = ? AND card_id = ?", collectionID, cardID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.OfficialListingEntry{}, false, nil
	}
	if err != nil {
		return market.OfficialListingEntry{}, false, classifyError(err)
	}
	return market.OfficialListingEntry{
		CollectionID:   row.CollectionID,
		CardID:         row.CardID,
		Quantity:       row.Quantity,
		PricePoints:    row.PricePoints,
		PriceCashCents: row.PriceCashCents,
	}, true, nil
}

func (store *Store) SaveOfficialListing(ctx context.Context, entry market.OfficialListingEntry) error {
	row := OfficialListing{
		CollectionID:   entry.CollectionID,
		CardID:         entry.CardID,
		Quantity:       entry.Quantity,
		PricePoints:    entry.PricePoints,
		PriceCashCents: entry.PriceCashCents,
		UpdatedAt:      time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection_id"}, {Name: "card_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}

func (store *Store) DeleteOfficialListing(ctx context.Context, collectionID string, cardID string) error {
	err := store.db.WithContext(ctx).
		Where("collection_id = ? AND card_id = ?", collectionID, cardID).
		Delete(&OfficialListing{}).Error
	return classifyError(err)
}

func (store *Store) GetFusionRecipe(ctx context.Context, recipeID string) (market.FusionRecipe, bool, error) {
	var row FusionRecipe
	err := store.db.WithContext(ctx).
		Where("recipe_id = ?", recipeID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.FusionRecipe{}, false, nil
	}
	if err != nil {
		return market.FusionRecipe{}, false, classifyError(err)
	}
	var ingredients []market.FusionIngredient
	if unmarshalErr := json.Unmarshal(row.Ingredients, &ingredients); unmarshalErr != nil {
		return market.FusionRecipe{}, false, unmarshalErr
	}
	return market.FusionRecipe{
		ID:                 row.RecipeID,
		ResultCollectionID: row.ResultCollectionID,
		ResultCardID:       row.ResultCardID,
		Ingredients:        ingredients,
	}, true, nil
}

// SaveFusionRecipe stores a recipe definition; used by operator tooling and
// tests rather than the coordinator.
func (store *Store) SaveFusionRecipe(ctx context.Context, recipe market.FusionRecipe) error {
	ingredients, marshalErr := json.Marshal(recipe.Ingredients)
	if marshalErr != nil {
		return marshalErr
	}
	row := FusionRecipe{
		RecipeID:           recipe.ID,
		ResultCollectionID: recipe.ResultCollectionID,
		ResultCardID:       recipe.ResultCardID,
		Ingredients:        datatypes.JSON(ingredients),
		CreatedAt:          time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipe_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	return classifyError(err)
}

func (store *Store) InsertTransaction(ctx context.Context, record market.Transaction) error {
	row := TradeTransaction{
		TransactionID:  record.ID,
		ListingID:      record.ListingID,
		SellerID:       record.SellerID,
		BuyerID:        record.BuyerID,
		CollectionID:   record.CollectionID,
		CardID:         record.CardID,
		Quantity:       record.Quantity,
		PricePoints:    record.PricePoints,
		PriceCashCents: record.PriceCashCents,
		TradedAt:       time.Unix(record.TradedUnixUTC, 0).UTC(),
	}
	if record.TradedUnixUTC == 0 {
		row.TradedAt = time.Now().UTC()
	}
	return classifyError(store.db.WithContext(ctx).Create(&row).Error)
}

func (store *Store) InsertWithdrawRequest(ctx context.Context, request market.WithdrawRequest) error {
	items, marshalErr := json.Marshal(request.Items)
	if marshalErr != nil {
		return marshalErr
	}
	row := WithdrawRequest{
		RequestID: request.ID,
		UserID:    request.UserID,
		AddressID: request.AddressID,
		Items:     datatypes.JSON(items),
		Status:    request.Status,
		CreatedAt: time.Unix(request.CreatedUnixUTC, 0).UTC(),
	}
	if request.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	return classifyError(store.db.WithContext(ctx).Create(&row).Error)
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func timePointer(unixUTC int64) *time.Time {
	if unixUTC == 0 {
		return nil
	}
	value := time.Unix(unixUTC, 0).UTC()
	return &value
}
