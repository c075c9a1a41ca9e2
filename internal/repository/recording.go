package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// RecordingRepository persists audio artifact rows and their canonical
// Metadata (spec.md §6, §4.12).
type RecordingRepository interface {
	Create(ctx context.Context, rec *domain.Recording) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Recording, error)
	Update(ctx context.Context, orgID, id string, fn func(*domain.Recording) error) (*domain.Recording, error)
	ListByConversation(ctx context.Context, orgID, callID string) ([]*domain.Recording, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.Recording, error)
}

type gormRecordingRepository struct{ db *gorm.DB }

func (r *gormRecordingRepository) Create(ctx context.Context, rec *domain.Recording) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return apperr.DependencyFailure("create recording", err)
	}
	return nil
}

func (r *gormRecordingRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Recording, error) {
	var rec domain.Recording
	if err := r.db.WithContext(ctx).First(&rec, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("recording not found")
		}
		return nil, apperr.DependencyFailure("get recording", err)
	}
	return &rec, nil
}

func (r *gormRecordingRepository) Update(ctx context.Context, orgID, id string, fn func(*domain.Recording) error) (*domain.Recording, error) {
	rec, err := r.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return nil, apperr.DependencyFailure("update recording", err)
	}
	return rec, nil
}

func (r *gormRecordingRepository) ListByConversation(ctx context.Context, orgID, callID string) ([]*domain.Recording, error) {
	var recs []*domain.Recording
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND conversation_id = ?", orgID, callID).Find(&recs).Error; err != nil {
		return nil, apperr.DependencyFailure("list recordings", err)
	}
	return recs, nil
}

// ListUnprocessed returns Recordings awaiting offline enrichment, used by the
// Batch Job Enqueuer (C13) to drain the backlog.
func (r *gormRecordingRepository) ListUnprocessed(ctx context.Context, limit int) ([]*domain.Recording, error) {
	var recs []*domain.Recording
	q := r.db.WithContext(ctx).Where("processed = ?", false).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, apperr.DependencyFailure("list unprocessed recordings", err)
	}
	return recs, nil
}
