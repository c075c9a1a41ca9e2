package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// QARepository persists QA criteria and evaluations, tenant-scoped like
// every other repository (spec.md §4.14).
type QARepository interface {
	ListCriteria(ctx context.Context, orgID string) ([]*domain.QACriterion, error)
	CreateEvaluation(ctx context.Context, eval *domain.QAEvaluation) error
	ListEvaluations(ctx context.Context, orgID string, callID string) ([]*domain.QAEvaluation, error)
}

type gormQARepository struct{ db *gorm.DB }

func (r *gormQARepository) ListCriteria(ctx context.Context, orgID string) ([]*domain.QACriterion, error) {
	var criteria []*domain.QACriterion
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND active = ?", orgID, true).
		Order("name ASC").Find(&criteria).Error; err != nil {
		return nil, apperr.DependencyFailure("list qa criteria", err)
	}
	return criteria, nil
}

func (r *gormQARepository) CreateEvaluation(ctx context.Context, eval *domain.QAEvaluation) error {
	if err := r.db.WithContext(ctx).Create(eval).Error; err != nil {
		return apperr.DependencyFailure("create qa evaluation", err)
	}
	return nil
}

func (r *gormQARepository) ListEvaluations(ctx context.Context, orgID string, callID string) ([]*domain.QAEvaluation, error) {
	var evals []*domain.QAEvaluation
	q := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if callID != "" {
		q = q.Where("call_id = ?", callID)
	}
	if err := q.Order("created_at DESC").Find(&evals).Error; err != nil {
		return nil, apperr.DependencyFailure("list qa evaluations", err)
	}
	return evals, nil
}
