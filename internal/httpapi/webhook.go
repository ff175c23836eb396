package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

const (
	signatureHeader           = "X-Webhook-Signature"
	eventTypePaymentSucceeded = "offer_payment_succeeded"
	maxWebhookBodyBytes       = 64 * 1024
)

// handlePaymentWebhook settles cash offers when the payment provider
// confirms a charge. Deliveries are authenticated with an HMAC signature
// over the raw body and deduplicated by event id, so the provider may retry
// freely. Domain rejections return 4xx (the provider must not retry);
// transient failures return 5xx (the provider should retry).
func (server *Server) handlePaymentWebhook(ctx *gin.Context) {
	body, readErr := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBodyBytes))
	if readErr != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "unreadable body"))
		return
	}
	if !validSignature(server.cfg.WebhookSecret, body, ctx.GetHeader(signatureHeader)) {
		ctx.JSON(http.StatusUnauthorized, errorResponse("invalid_signature", "signature mismatch"))
		return
	}

	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil || event.EventID == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON event with event_id"))
		return
	}
	if event.Type != eventTypePaymentSucceeded {
		// unknown event types are acknowledged, not failed, so new provider
		// events do not wedge the delivery queue
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	processed, dedupeErr := server.deps.Events.WebhookEventProcessed(ctx.Request.Context(), event.EventID)
	if dedupeErr != nil {
		server.logger.Error("webhook dedupe lookup failed", zap.String("event_id", event.EventID), zap.Error(dedupeErr))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "dedupe failed"))
		return
	}
	if processed {
		ctx.JSON(http.StatusOK, gin.H{"status": "already_processed"})
		return
	}

	_, settleErr := server.deps.Coordinator.SettleCashOffer(ctx.Request.Context(), event.ListingID, event.OfferID, event.AmountCents)
	if settleErr != nil {
		server.logger.Error("cash offer settlement failed",
			zap.String("event_id", event.EventID),
			zap.String("listing_id", event.ListingID),
			zap.String("offer_id", event.OfferID),
			zap.Error(settleErr),
		)
		if errors.Is(settleErr, market.ErrNotFound) ||
			errors.Is(settleErr, market.ErrValidation) ||
			errors.Is(settleErr, market.ErrOfferNotPayable) {
			ctx.JSON(http.StatusBadRequest, errorResponse("unprocessable_event", settleErr.Error()))
			return
		}
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "settlement failed"))
		return
	}

	// the event id is recorded only after a successful settlement so a
	// transient 5xx leaves the delivery retryable; a concurrent replay that
	// slips past the lookup is still rejected because the offer is now paid
	if _, markErr := server.deps.Events.MarkWebhookEventProcessed(ctx.Request.Context(), event.EventID); markErr != nil {
		server.logger.Error("webhook dedupe record failed", zap.String("event_id", event.EventID), zap.Error(markErr))
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "settled"})
}

func validSignature(secret string, body []byte, signatureHex string) bool {
	if signatureHex == "" {
		return false
	}
	provided, decodeErr := hex.DecodeString(signatureHex)
	if decodeErr != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}
