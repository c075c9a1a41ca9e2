package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// WebhookDeliveryRepository persists queued/retrying/dead delivery attempts
// for the Webhook Dispatcher (C14).
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	ListDue(ctx context.Context, before time.Time, limit int) ([]*domain.WebhookDelivery, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, lastErr string) error

	// CountPending returns how many deliveries for webhookID are still
	// pending, the queue-depth check behind spec.md §4.13's per-subscription
	// cap.
	CountPending(ctx context.Context, webhookID string) (int64, error)
	// DeleteOldestOnePending removes the single oldest pending delivery for
	// webhookID, the drop-oldest eviction spec.md §4.13 requires once the
	// queue is at capacity.
	DeleteOldestOnePending(ctx context.Context, webhookID string) error
}

type gormWebhookDeliveryRepository struct{ db *gorm.DB }

func (r *gormWebhookDeliveryRepository) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return apperr.DependencyFailure("create webhook delivery", err)
	}
	return nil
}

// ListDue returns pending deliveries whose NextAttemptAt has passed, the feed
// each dispatcher worker pulls from.
func (r *gormWebhookDeliveryRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]*domain.WebhookDelivery, error) {
	var deliveries []*domain.WebhookDelivery
	q := r.db.WithContext(ctx).
		Where("last_status = ? AND next_attempt_at <= ?", domain.DeliveryStatusPending, before).
		Order("next_attempt_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&deliveries).Error; err != nil {
		return nil, apperr.DependencyFailure("list due webhook deliveries", err)
	}
	return deliveries, nil
}

func (r *gormWebhookDeliveryRepository) MarkDelivered(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Model(&domain.WebhookDelivery{}).Where("id = ?", id).
		Update("last_status", domain.DeliveryStatusDelivered).Error; err != nil {
		return apperr.DependencyFailure("mark webhook delivery delivered", err)
	}
	return nil
}

func (r *gormWebhookDeliveryRepository) MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastErr string) error {
	if err := r.db.WithContext(ctx).Model(&domain.WebhookDelivery{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastErr,
		}).Error; err != nil {
		return apperr.DependencyFailure("mark webhook delivery retry", err)
	}
	return nil
}

func (r *gormWebhookDeliveryRepository) MarkDead(ctx context.Context, id string, lastErr string) error {
	if err := r.db.WithContext(ctx).Model(&domain.WebhookDelivery{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_status":   domain.DeliveryStatusDead,
			"last_error":    lastErr,
		}).Error; err != nil {
		return apperr.DependencyFailure("mark webhook delivery dead", err)
	}
	return nil
}

func (r *gormWebhookDeliveryRepository) CountPending(ctx context.Context, webhookID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.WebhookDelivery{}).
		Where("webhook_id = ? AND last_status = ?", webhookID, domain.DeliveryStatusPending).
		Count(&count).Error; err != nil {
		return 0, apperr.DependencyFailure("count pending webhook deliveries", err)
	}
	return count, nil
}

func (r *gormWebhookDeliveryRepository) DeleteOldestOnePending(ctx context.Context, webhookID string) error {
	var oldest domain.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("webhook_id = ? AND last_status = ?", webhookID, domain.DeliveryStatusPending).
		Order("created_at ASC").
		First(&oldest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return apperr.DependencyFailure("find oldest pending webhook delivery", err)
	}
	if err := r.db.WithContext(ctx).Delete(&domain.WebhookDelivery{}, "id = ?", oldest.ID).Error; err != nil {
		return apperr.DependencyFailure("delete oldest pending webhook delivery", err)
	}
	return nil
}
