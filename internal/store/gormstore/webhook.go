package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

// WebhookEventProcessed reports whether a payment event id was already
// handled.
func (store *Store) WebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&ProcessedWebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, classifyError(err)
	}
	return count > 0, nil
}

// MarkWebhookEventProcessed records a payment event id the first time it is
// seen. It returns false when the event was already processed, so webhook
// deliveries can be retried by the payment provider without double-applying.
func (store *Store) MarkWebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	row := ProcessedWebhookEvent{EventID: eventID, ProcessedAt: time.Now().UTC()}
	err := classifyError(store.db.WithContext(ctx).Create(&row).Error)
	if errors.Is(err, market.ErrDuplicateRecord) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
