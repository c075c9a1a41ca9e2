// Package voiceprofile implements the Voice-Profile Store (C4): the
// once-per-Call speaker embedding handed back by the Preprocessor Gateway's
// (C3) extraction stage once the rolling clean-speech duration qualifies
// (spec.md §3: "Created at most once per Call from the first 3s of
// qualifying user speech; read-only thereafter").
package voiceprofile

import (
	"context"

	"github.com/google/uuid"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/core/session"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/pkg/logger"

	"go.uber.org/zap"
)

// Store persists a Session's VoiceProfile exactly once and keeps the
// Session's in-memory copy in sync with the repository row.
type Store struct {
	repos repository.RepositoryManager
}

// New builds a Store over the shared repository manager.
func New(repos repository.RepositoryManager) *Store {
	return &Store{repos: repos}
}

// Create persists a newly-extracted embedding for sess and attaches it to the
// Session, unless the Session already has one (the store never overwrites:
// "created at most once per Call"). Registers the Session's OnClose hook that
// drops the in-memory reference, the first time it's called for a Session.
func (st *Store) Create(ctx context.Context, sess *session.Session, embedding []float32) (*domain.VoiceProfile, error) {
	if existing := sess.GetVoiceProfile(); existing != nil {
		return existing, nil
	}
	if len(embedding) != domain.VoiceProfileDimension {
		return nil, apperr.Validation("voice profile embedding has the wrong dimension")
	}

	vp := &domain.VoiceProfile{
		ID:        uuid.NewString(),
		CallID:    sess.CallID,
		OrgID:     sess.OrgID,
		Embedding: embedding,
	}
	if err := st.repos.VoiceProfiles().Create(ctx, vp); err != nil {
		return nil, err
	}

	sess.SetVoiceProfile(vp)
	sess.OnClose(sess.ClearVoiceProfile)

	logger.Base().Info("voice profile created",
		zap.String("call_id", sess.CallID), zap.String("voice_profile_id", vp.ID))
	return vp, nil
}

// Lookup returns a VoiceProfileLookup closure bound to sess, the shape the
// Preprocessor Gateway's Process takes to decide whether extraction has an
// embedding to target (spec.md §4.3 step 2).
func Lookup(sess *session.Session) func() ([]float32, bool) {
	return func() ([]float32, bool) {
		vp := sess.GetVoiceProfile()
		if vp == nil {
			return nil, false
		}
		return vp.Embedding, true
	}
}
