package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// CallEventRepository persists the append-only structured event log (spec.md
// §4.16, C16).
type CallEventRepository interface {
	Create(ctx context.Context, ev *domain.CallEvent) error
	ListByCall(ctx context.Context, orgID, callID string) ([]*domain.CallEvent, error)
}

type gormCallEventRepository struct{ db *gorm.DB }

func (r *gormCallEventRepository) Create(ctx context.Context, ev *domain.CallEvent) error {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return apperr.DependencyFailure("create call event", err)
	}
	return nil
}

func (r *gormCallEventRepository) ListByCall(ctx context.Context, orgID, callID string) ([]*domain.CallEvent, error) {
	var events []*domain.CallEvent
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND call_id = ?", orgID, callID).
		Order("created_at ASC").Find(&events).Error; err != nil {
		return nil, apperr.DependencyFailure("list call events", err)
	}
	return events, nil
}
