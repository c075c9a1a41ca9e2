package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// WebhookRepository manages an Organization's webhook subscriptions (spec.md
// §4.13, C14).
type WebhookRepository interface {
	Create(ctx context.Context, wh *domain.Webhook) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Webhook, error)
	Update(ctx context.Context, orgID, id string, fn func(*domain.Webhook) error) (*domain.Webhook, error)
	Delete(ctx context.Context, orgID, id string) error
	ListSubscribedTo(ctx context.Context, orgID string, event domain.WebhookEventType) ([]*domain.Webhook, error)
}

type gormWebhookRepository struct{ db *gorm.DB }

func (r *gormWebhookRepository) Create(ctx context.Context, wh *domain.Webhook) error {
	if err := r.db.WithContext(ctx).Create(wh).Error; err != nil {
		return apperr.DependencyFailure("create webhook", err)
	}
	return nil
}

func (r *gormWebhookRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Webhook, error) {
	var wh domain.Webhook
	if err := r.db.WithContext(ctx).First(&wh, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("webhook not found")
		}
		return nil, apperr.DependencyFailure("get webhook", err)
	}
	return &wh, nil
}

func (r *gormWebhookRepository) Update(ctx context.Context, orgID, id string, fn func(*domain.Webhook) error) (*domain.Webhook, error) {
	wh, err := r.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(wh); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(wh).Error; err != nil {
		return nil, apperr.DependencyFailure("update webhook", err)
	}
	return wh, nil
}

func (r *gormWebhookRepository) Delete(ctx context.Context, orgID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND org_id = ?", id, orgID).Delete(&domain.Webhook{})
	if res.Error != nil {
		return apperr.DependencyFailure("delete webhook", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("webhook not found")
	}
	return nil
}

// ListSubscribedTo returns the active webhooks of orgID whose Events include
// event. The events column is a JSON array, so filtering happens in Go rather
// than with a jsonb containment operator, keeping the driver generic.
func (r *gormWebhookRepository) ListSubscribedTo(ctx context.Context, orgID string, event domain.WebhookEventType) ([]*domain.Webhook, error) {
	var all []*domain.Webhook
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND active = ?", orgID, true).Find(&all).Error; err != nil {
		return nil, apperr.DependencyFailure("list webhooks", err)
	}
	var matched []*domain.Webhook
	for _, wh := range all {
		for _, e := range wh.Events {
			if e == event {
				matched = append(matched, wh)
				break
			}
		}
	}
	return matched, nil
}
