package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// ContextProfileRepository manages the reusable prompt/tone/tool-allowlist
// bundles an Agent is assigned (spec.md §3 supplement).
type ContextProfileRepository interface {
	Create(ctx context.Context, cp *domain.ContextProfile) error
	GetByID(ctx context.Context, orgID, id string) (*domain.ContextProfile, error)
	Update(ctx context.Context, orgID, id string, fn func(*domain.ContextProfile) error) (*domain.ContextProfile, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.ContextProfile, error)
}

type gormContextProfileRepository struct{ db *gorm.DB }

func (r *gormContextProfileRepository) Create(ctx context.Context, cp *domain.ContextProfile) error {
	if err := r.db.WithContext(ctx).Create(cp).Error; err != nil {
		return apperr.DependencyFailure("create context profile", err)
	}
	return nil
}

func (r *gormContextProfileRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ContextProfile, error) {
	var cp domain.ContextProfile
	if err := r.db.WithContext(ctx).First(&cp, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("context profile not found")
		}
		return nil, apperr.DependencyFailure("get context profile", err)
	}
	return &cp, nil
}

func (r *gormContextProfileRepository) Update(ctx context.Context, orgID, id string, fn func(*domain.ContextProfile) error) (*domain.ContextProfile, error) {
	cp, err := r.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(cp); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(cp).Error; err != nil {
		return nil, apperr.DependencyFailure("update context profile", err)
	}
	return cp, nil
}

func (r *gormContextProfileRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.ContextProfile, error) {
	var profiles []*domain.ContextProfile
	if err := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("created_at DESC").Find(&profiles).Error; err != nil {
		return nil, apperr.DependencyFailure("list context profiles", err)
	}
	return profiles, nil
}
