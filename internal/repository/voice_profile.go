package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
)

// VoiceProfileRepository stores the single speaker embedding created per Call
// (spec.md §4.3). Read-only after creation: no Update method.
type VoiceProfileRepository interface {
	Create(ctx context.Context, vp *domain.VoiceProfile) error
	GetByCallID(ctx context.Context, orgID, callID string) (*domain.VoiceProfile, error)
}

type gormVoiceProfileRepository struct{ db *gorm.DB }

func (r *gormVoiceProfileRepository) Create(ctx context.Context, vp *domain.VoiceProfile) error {
	if err := r.db.WithContext(ctx).Create(vp).Error; err != nil {
		return apperr.DependencyFailure("create voice profile", err)
	}
	return nil
}

func (r *gormVoiceProfileRepository) GetByCallID(ctx context.Context, orgID, callID string) (*domain.VoiceProfile, error) {
	var vp domain.VoiceProfile
	if err := r.db.WithContext(ctx).First(&vp, "call_id = ? AND org_id = ?", callID, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("voice profile not found")
		}
		return nil, apperr.DependencyFailure("get voice profile", err)
	}
	return &vp, nil
}
