package gormstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/gacha/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
	"github.com/MarkoPoloResearchLab/gacha/pkg/fairness"
	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

func openTestStore(test *testing.T) *gormstore.Store {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/gacha.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	store := gormstore.New(database)
	if err := store.AutoMigrate(); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return store
}

func TestWalletRoundTrip(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	balance, err := store.GetPointsBalance(ctx, "user-1")
	if err != nil || balance != 0 {
		test.Fatalf("expected zero balance for unknown user, got %d err=%v", balance, err)
	}

	if err := store.AdjustPointsBalance(ctx, "user-1", 500); err != nil {
		test.Fatalf("AdjustPointsBalance: %v", err)
	}
	if err := store.AdjustPointsBalance(ctx, "user-1", -200); err != nil {
		test.Fatalf("AdjustPointsBalance: %v", err)
	}
	if err := store.AddPointsSpent(ctx, "user-1", 200); err != nil {
		test.Fatalf("AddPointsSpent: %v", err)
	}
	if err := store.IncrementFusionCount(ctx, "user-1"); err != nil {
		test.Fatalf("IncrementFusionCount: %v", err)
	}

	balance, err = store.GetPointsBalance(ctx, "user-1")
	if err != nil {
		test.Fatalf("GetPointsBalance: %v", err)
	}
	if balance != 300 {
		test.Fatalf("expected balance 300, got %d", balance)
	}
}

func TestUserCardRoundTrip(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	card := market.UserCard{
		UserID:          "user-1",
		CollectionID:    "col-1",
		CardID:          "card-1",
		CardName:        "Ember Drake",
		Quantity:        3,
		LockedQuantity:  1,
		PointWorth:      40,
		Rarity:          3,
		AcquiredUnixUTC: 1700000000,
	}
	if err := store.SaveUserCard(ctx, card); err != nil {
		test.Fatalf("SaveUserCard: %v", err)
	}

	loaded, found, err := store.GetUserCard(ctx, "user-1", "col-1", "card-1")
	if err != nil || !found {
		test.Fatalf("GetUserCard: found=%v err=%v", found, err)
	}
	if loaded != card {
		test.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, card)
	}

	card.Quantity = 5
	if err := store.SaveUserCard(ctx, card); err != nil {
		test.Fatalf("upsert SaveUserCard: %v", err)
	}
	loaded, _, err = store.GetUserCard(ctx, "user-1", "col-1", "card-1")
	if err != nil || loaded.Quantity != 5 {
		test.Fatalf("expected upserted quantity 5, got %+v err=%v", loaded, err)
	}

	if err := store.DeleteUserCard(ctx, "user-1", "col-1", "card-1"); err != nil {
		test.Fatalf("DeleteUserCard: %v", err)
	}
	if _, found, _ := store.GetUserCard(ctx, "user-1", "col-1", "card-1"); found {
		test.Fatal("expected card deleted")
	}
}

func TestListingAndOfferRoundTrip(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	listing := market.Listing{
		ID:             "11111111-1111-1111-1111-111111111111",
		OwnerID:        "seller-1",
		CollectionID:   "col-1",
		CardID:         "card-1",
		Quantity:       2,
		PricePoints:    300,
		Status:         market.ListingStatusOpen,
		CreatedUnixUTC: 1700000000,
	}
	if err := store.SaveListing(ctx, listing); err != nil {
		test.Fatalf("SaveListing: %v", err)
	}

	offer := market.Offer{
		ID:             "22222222-2222-2222-2222-222222222222",
		ListingID:      listing.ID,
		Kind:           market.OfferKindPoint,
		OffererID:      "buyer-1",
		Amount:         250,
		Status:         market.OfferStatusOpen,
		CreatedUnixUTC: 1700000100,
	}
	if err := store.SaveOffer(ctx, offer); err != nil {
		test.Fatalf("SaveOffer: %v", err)
	}

	loadedListing, found, err := store.GetListing(ctx, listing.ID)
	if err != nil || !found {
		test.Fatalf("GetListing: found=%v err=%v", found, err)
	}
	if loadedListing.PricePoints != 300 || loadedListing.Status != market.ListingStatusOpen {
		test.Fatalf("unexpected listing: %+v", loadedListing)
	}

	loadedOffer, found, err := store.GetOffer(ctx, listing.ID, offer.ID)
	if err != nil || !found {
		test.Fatalf("GetOffer: found=%v err=%v", found, err)
	}
	if loadedOffer.Amount != 250 || loadedOffer.Kind != market.OfferKindPoint {
		test.Fatalf("unexpected offer: %+v", loadedOffer)
	}

	withdrawn := market.Offer{
		ID:             "33333333-3333-3333-3333-333333333333",
		ListingID:      listing.ID,
		Kind:           market.OfferKindCash,
		OffererID:      "buyer-2",
		Amount:         999,
		Status:         market.OfferStatusWithdrawn,
		CreatedUnixUTC: 1700000200,
	}
	if err := store.SaveOffer(ctx, withdrawn); err != nil {
		test.Fatalf("SaveOffer withdrawn: %v", err)
	}
	open, err := store.ListOpenOffers(ctx, listing.ID)
	if err != nil {
		test.Fatalf("ListOpenOffers: %v", err)
	}
	if len(open) != 1 || open[0].ID != offer.ID {
		test.Fatalf("expected only the open offer listed, got %+v", open)
	}

	loadedOffer.Status = market.OfferStatusAccepted
	loadedOffer.PaymentDueUnixUTC = 1700172800
	if err := store.SaveOffer(ctx, loadedOffer); err != nil {
		test.Fatalf("update SaveOffer: %v", err)
	}
	updated, _, _ := store.GetOffer(ctx, listing.ID, offer.ID)
	if updated.Status != market.OfferStatusAccepted || updated.PaymentDueUnixUTC != 1700172800 {
		test.Fatalf("unexpected updated offer: %+v", updated)
	}
	if remaining, listErr := store.ListOpenOffers(ctx, listing.ID); listErr != nil || len(remaining) != 0 {
		test.Fatalf("accepted offers must leave the open set, got %+v err=%v", remaining, listErr)
	}

	if err := store.DeleteListing(ctx, listing.ID); err != nil {
		test.Fatalf("DeleteListing: %v", err)
	}
	if _, found, _ := store.GetListing(ctx, listing.ID); found {
		test.Fatal("expected listing deleted")
	}
}

func TestOfficialListingRoundTrip(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	entry := market.OfficialListingEntry{
		CollectionID: "col-1",
		CardID:       "card-1",
		Quantity:     10,
		PricePoints:  100,
	}
	if err := store.SaveOfficialListing(ctx, entry); err != nil {
		test.Fatalf("SaveOfficialListing: %v", err)
	}
	loaded, found, err := store.GetOfficialListing(ctx, "col-1", "card-1")
	if err != nil || !found || loaded != entry {
		test.Fatalf("round trip mismatch: %+v found=%v err=%v", loaded, found, err)
	}
	if err := store.DeleteOfficialListing(ctx, "col-1", "card-1"); err != nil {
		test.Fatalf("DeleteOfficialListing: %v", err)
	}
	if _, found, _ := store.GetOfficialListing(ctx, "col-1", "card-1"); found {
		test.Fatal("expected entry deleted")
	}
}

func TestFusionRecipeRoundTrip(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	recipe := market.FusionRecipe{
		ID:                 "33333333-3333-3333-3333-333333333333",
		ResultCollectionID: "col-1",
		ResultCardID:       "card-fused",
		Ingredients: []market.FusionIngredient{
			{CollectionID: "col-1", CardID: "card-a", Quantity: 2},
			{CollectionID: "col-1", CardID: "card-b", Quantity: 1},
		},
	}
	if err := store.SaveFusionRecipe(ctx, recipe); err != nil {
		test.Fatalf("SaveFusionRecipe: %v", err)
	}
	loaded, found, err := store.GetFusionRecipe(ctx, recipe.ID)
	if err != nil || !found {
		test.Fatalf("GetFusionRecipe: found=%v err=%v", found, err)
	}
	if len(loaded.Ingredients) != 2 || loaded.Ingredients[0].CardID != "card-a" {
		test.Fatalf("unexpected ingredients: %+v", loaded.Ingredients)
	}
}

func TestSeedStateRoundTrip(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	seeds := store.Seeds()
	ctx := context.Background()

	_, found, err := seeds.GetSeedState(ctx, "user-1")
	if err != nil || found {
		test.Fatalf("expected no state for unknown user, found=%v err=%v", found, err)
	}

	state := fairness.SeedState{
		UserID:         "user-1",
		ServerSeed:     "aa",
		ServerSeedHash: "bb",
		ClientSeed:     "cc",
		Nonce:          4,
	}
	if err := seeds.SaveSeedState(ctx, state); err != nil {
		test.Fatalf("SaveSeedState: %v", err)
	}
	state.Nonce = 5
	if err := seeds.SaveSeedState(ctx, state); err != nil {
		test.Fatalf("upsert SaveSeedState: %v", err)
	}

	loaded, found, err := seeds.GetSeedState(ctx, "user-1")
	if err != nil || !found {
		test.Fatalf("GetSeedState: found=%v err=%v", found, err)
	}
	if loaded != state {
		test.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, state)
	}
}

func TestPackRoundTripAndPopularity(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	pack := draw.Pack{
		ID:           "pack-1",
		CollectionID: "col-1",
		PricePoints:  100,
		SplitPolicy:  draw.SplitUniform,
		Rarities: []draw.Rarity{
			{ID: "common", Probability: 0.8, CardPool: []string{"card-1", "card-2"}},
			{ID: "rare", Probability: 0.2, CardPool: []string{"card-3"}},
		},
	}
	if err := store.SavePack(ctx, pack); err != nil {
		test.Fatalf("SavePack: %v", err)
	}

	invalid := pack
	invalid.Rarities = nil
	if err := store.SavePack(ctx, invalid); !errors.Is(err, draw.ErrInvalidPackDefinition) {
		test.Fatalf("expected invalid pack rejected at write time, got %v", err)
	}

	loaded, found, err := store.GetPack(ctx, "col-1", "pack-1")
	if err != nil || !found {
		test.Fatalf("GetPack: found=%v err=%v", found, err)
	}
	if len(loaded.Rarities) != 2 || loaded.Rarities[1].ID != "rare" {
		test.Fatalf("unexpected rarities: %+v", loaded.Rarities)
	}
	if err := loaded.Validate(); err != nil {
		test.Fatalf("loaded pack must validate: %v", err)
	}

	if err := store.IncrementPopularity(ctx, "col-1", "pack-1", 5); err != nil {
		test.Fatalf("IncrementPopularity: %v", err)
	}
	loaded, _, _ = store.GetPack(ctx, "col-1", "pack-1")
	if loaded.Popularity != 5 {
		test.Fatalf("expected popularity 5, got %d", loaded.Popularity)
	}
}

func TestCardCatalogLookup(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	master := market.MasterCard{
		CollectionID: "col-1",
		CardID:       "card-1",
		Name:         "Ember Drake",
		Rarity:       3,
		PointWorth:   40,
		Quantity:     100,
	}
	if err := store.SaveMasterCard(ctx, master); err != nil {
		test.Fatalf("SaveMasterCard: %v", err)
	}

	card, err := store.GetCard(ctx, "col-1", "card-1")
	if err != nil {
		test.Fatalf("GetCard: %v", err)
	}
	if card.Name != "Ember Drake" || card.PointWorth != 40 {
		test.Fatalf("unexpected card: %+v", card)
	}
	if _, err := store.GetCard(ctx, "col-1", "missing"); !errors.Is(err, draw.ErrUnknownCard) {
		test.Fatalf("expected ErrUnknownCard, got %v", err)
	}
}

func TestWebhookEventIdempotency(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	processed, err := store.WebhookEventProcessed(ctx, "evt-1")
	if err != nil || processed {
		test.Fatalf("expected unseen event, got processed=%v err=%v", processed, err)
	}

	first, err := store.MarkWebhookEventProcessed(ctx, "evt-1")
	if err != nil || !first {
		test.Fatalf("expected first delivery marked fresh, got first=%v err=%v", first, err)
	}
	processed, err = store.WebhookEventProcessed(ctx, "evt-1")
	if err != nil || !processed {
		test.Fatalf("expected event reported processed, got processed=%v err=%v", processed, err)
	}
	second, err := store.MarkWebhookEventProcessed(ctx, "evt-1")
	if err != nil {
		test.Fatalf("replayed delivery must not error: %v", err)
	}
	if second {
		test.Fatal("expected replayed delivery reported as already processed")
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()

	store := openTestStore(test)
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := store.WithTx(ctx, func(ctx context.Context, txStore market.Store) error {
		if adjustErr := txStore.AdjustPointsBalance(ctx, "user-1", 100); adjustErr != nil {
			return adjustErr
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		test.Fatalf("expected sentinel error, got %v", err)
	}
	balance, err := store.GetPointsBalance(ctx, "user-1")
	if err != nil || balance != 0 {
		test.Fatalf("expected rollback to zero balance, got %d err=%v", balance, err)
	}
}
