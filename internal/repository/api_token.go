package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// ApiTokenRepository manages bearer credentials (spec.md §4.14).
type ApiTokenRepository interface {
	Create(ctx context.Context, tok *domain.ApiToken) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.ApiToken, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.ApiToken, error)
	Revoke(ctx context.Context, orgID, id string) error
	TouchLastUsed(ctx context.Context, id string) error
}

type gormApiTokenRepository struct{ db *gorm.DB }

func (r *gormApiTokenRepository) Create(ctx context.Context, tok *domain.ApiToken) error {
	if err := r.db.WithContext(ctx).Create(tok).Error; err != nil {
		return apperr.DependencyFailure("create api token", err)
	}
	return nil
}

// GetByHash is the only lookup not scoped by org_id: the hash itself is the
// unique credential, org scoping happens after resolving it to a token.
func (r *gormApiTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.ApiToken, error) {
	var tok domain.ApiToken
	if err := r.db.WithContext(ctx).First(&tok, "token_hash = ? AND active = ?", tokenHash, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("unknown or revoked token")
		}
		return nil, apperr.DependencyFailure("get api token", err)
	}
	return &tok, nil
}

func (r *gormApiTokenRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.ApiToken, error) {
	var toks []*domain.ApiToken
	if err := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("created_at DESC").Find(&toks).Error; err != nil {
		return nil, apperr.DependencyFailure("list api tokens", err)
	}
	return toks, nil
}

func (r *gormApiTokenRepository) Revoke(ctx context.Context, orgID, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.ApiToken{}).
		Where("id = ? AND org_id = ?", id, orgID).Update("active", false)
	if res.Error != nil {
		return apperr.DependencyFailure("revoke api token", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("api token not found")
	}
	return nil
}

func (r *gormApiTokenRepository) TouchLastUsed(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Model(&domain.ApiToken{}).
		Where("id = ?", id).Update("last_used_at", gorm.Expr("now()")).Error; err != nil {
		return apperr.DependencyFailure("touch api token", err)
	}
	return nil
}
