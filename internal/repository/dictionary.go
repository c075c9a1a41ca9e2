package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// DictionaryRepository serves the global seed plus tenant overlay the Online
// Corrector (C6) loads into its copy-on-write cache (spec.md §4.5).
type DictionaryRepository interface {
	ListCorrections(ctx context.Context, orgID string) ([]*domain.CorrectionDictionaryEntry, error)
	CreateCorrection(ctx context.Context, e *domain.CorrectionDictionaryEntry) error
	ListCriticalWords(ctx context.Context, orgID string) ([]*domain.CriticalWordListEntry, error)
	CreateCriticalWord(ctx context.Context, e *domain.CriticalWordListEntry) error
}

type gormDictionaryRepository struct{ db *gorm.DB }

// ListCorrections returns the global seed (org_id = '') overlaid by orgID's
// entries; callers merge with tenant entries winning on a misheard collision.
func (r *gormDictionaryRepository) ListCorrections(ctx context.Context, orgID string) ([]*domain.CorrectionDictionaryEntry, error) {
	var entries []*domain.CorrectionDictionaryEntry
	if err := r.db.WithContext(ctx).
		Where("org_id = '' OR org_id = ?", orgID).
		Order("org_id ASC").Find(&entries).Error; err != nil {
		return nil, apperr.DependencyFailure("list correction entries", err)
	}
	return entries, nil
}

func (r *gormDictionaryRepository) CreateCorrection(ctx context.Context, e *domain.CorrectionDictionaryEntry) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return apperr.DependencyFailure("create correction entry", err)
	}
	return nil
}

func (r *gormDictionaryRepository) ListCriticalWords(ctx context.Context, orgID string) ([]*domain.CriticalWordListEntry, error) {
	var entries []*domain.CriticalWordListEntry
	if err := r.db.WithContext(ctx).
		Where("org_id = '' OR org_id = ?", orgID).
		Order("org_id ASC").Find(&entries).Error; err != nil {
		return nil, apperr.DependencyFailure("list critical words", err)
	}
	return entries, nil
}

func (r *gormDictionaryRepository) CreateCriticalWord(ctx context.Context, e *domain.CriticalWordListEntry) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return apperr.DependencyFailure("create critical word", err)
	}
	return nil
}
