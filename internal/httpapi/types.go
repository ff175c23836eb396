package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
	"github.com/MarkoPoloResearchLab/gacha/pkg/fairness"
	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

type commitSeedResponse struct {
	ServerSeedHash string `json:"server_seed_hash"`
}

type rotateClientSeedResponse struct {
	ClientSeed string `json:"client_seed"`
}

type revealResponse struct {
	ServerSeed         string `json:"server_seed"`
	ServerSeedHash     string `json:"server_seed_hash"`
	ClientSeed         string `json:"client_seed"`
	Nonce              int64  `json:"nonce"`
	NextServerSeedHash string `json:"next_server_seed_hash"`
}

type verifyRequest struct {
	ServerSeed     string `json:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          int64  `json:"nonce"`
	RandomHash     string `json:"random_hash"`
}

type openPackRequest struct {
	Count int `json:"count"`
}

type buyOfficialRequest struct {
	Quantity int64 `json:"quantity"`
}

type createListingRequest struct {
	CollectionID   string `json:"collection_id"`
	CardID         string `json:"card_id"`
	Quantity       int64  `json:"quantity"`
	PricePoints    int64  `json:"price_points"`
	PriceCashCents int64  `json:"price_cash_cents"`
}

type placeOfferRequest struct {
	Kind   string `json:"kind"`
	Amount int64  `json:"amount"`
}

type buyListingRequest struct {
	Quantity int64 `json:"quantity"`
}

type destroyCardRequest struct {
	Quantity int64 `json:"quantity"`
}

type shippingItem struct {
	CollectionID string `json:"collection_id"`
	CardID       string `json:"card_id"`
	Quantity     int64  `json:"quantity"`
}

type shippingWithdrawRequest struct {
	AddressID string         `json:"address_id"`
	Items     []shippingItem `json:"items"`
}

type paymentEvent struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	ListingID   string `json:"listing_id"`
	OfferID     string `json:"offer_id"`
	AmountCents int64  `json:"amount_cents"`
}

func errorResponse(code string, message string) gin.H {
	return gin.H{"error": code, "message": message}
}

// respondDomainError maps domain sentinels to HTTP statuses. Anything
// unmapped is an internal error.
func respondDomainError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, market.ErrValidation),
		errors.Is(err, draw.ErrInvalidDrawCount),
		errors.Is(err, draw.ErrInvalidPackDefinition),
		errors.Is(err, fairness.ErrInvalidUserID):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	case errors.Is(err, market.ErrNotFound),
		errors.Is(err, draw.ErrUnknownPack),
		errors.Is(err, draw.ErrUnknownCard):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrInsufficientQuantity):
		ctx.JSON(http.StatusConflict, errorResponse("insufficient", err.Error()))
	case errors.Is(err, market.ErrNotOwner):
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", err.Error()))
	case errors.Is(err, market.ErrListingNotOpen),
		errors.Is(err, market.ErrOfferNotPayable),
		errors.Is(err, market.ErrPaymentDueElapsed),
		errors.Is(err, market.ErrDuplicateRecord),
		errors.Is(err, market.ErrConcurrencyConflict):
		ctx.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, fairness.ErrNotCommitted):
		ctx.JSON(http.StatusConflict, errorResponse("seed_not_committed", err.Error()))
	case errors.Is(err, fairness.ErrFairnessViolation):
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse("fairness_violation", err.Error()))
	case errors.Is(err, market.ErrRemoteService):
		ctx.JSON(http.StatusBadGateway, errorResponse("remote_ledger_error", err.Error()))
	default:
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
	}
}
