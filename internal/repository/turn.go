package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// TurnRepository persists Turn rows, append-only per Call (spec.md §3).
type TurnRepository interface {
	Create(ctx context.Context, turn *domain.Turn) error
	ListByCall(ctx context.Context, orgID, callID string) ([]*domain.Turn, error)
}

type gormTurnRepository struct{ db *gorm.DB }

func (r *gormTurnRepository) Create(ctx context.Context, turn *domain.Turn) error {
	if err := r.db.WithContext(ctx).Create(turn).Error; err != nil {
		return apperr.DependencyFailure("create turn", err)
	}
	return nil
}

func (r *gormTurnRepository) ListByCall(ctx context.Context, orgID, callID string) ([]*domain.Turn, error) {
	var turns []*domain.Turn
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND call_id = ?", orgID, callID).
		Order("started_at ASC").Find(&turns).Error; err != nil {
		return nil, apperr.DependencyFailure("list turns", err)
	}
	return turns, nil
}
