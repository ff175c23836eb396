// Package oplog bridges coordinator operation callbacks onto zap.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

// ZapOperationLogger implements market.OperationLogger on a zap.Logger.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps logger. A nil logger falls back to zap.NewNop.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

// LogOperation emits one structured log line per coordinator event.
// Compensation outcomes log at error level so reconciliation alerts can key
// off them.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry market.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("operation_id", entry.OperationID),
		zap.String("user_id", entry.UserID),
		zap.String("status", entry.Status),
	}
	if entry.ListingID != "" {
		fields = append(fields, zap.String("listing_id", entry.ListingID))
	}
	if entry.OfferID != "" {
		fields = append(fields, zap.String("offer_id", entry.OfferID))
	}
	if entry.CollectionID != "" {
		fields = append(fields, zap.String("collection_id", entry.CollectionID))
	}
	if entry.CardID != "" {
		fields = append(fields, zap.String("card_id", entry.CardID))
	}
	if entry.Quantity != 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity))
	}
	if entry.Points != 0 {
		fields = append(fields, zap.Int64("points", entry.Points))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}

	switch entry.Status {
	case "ok":
		operationLogger.logger.Info("marketplace operation", fields...)
	default:
		operationLogger.logger.Error("marketplace operation", fields...)
	}
}
