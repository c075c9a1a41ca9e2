package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/astra-cc/orchestrator/internal/domain"
)

func TestSessionOnCloseRunsInOrder(t *testing.T) {
	s := newSession(context.Background(), "call-1", "org-1", "agent-1", "+1")

	var order []int
	s.OnClose(func() { order = append(order, 1) })
	s.OnClose(func() { order = append(order, 2) })
	s.close()

	assert.Equal(t, []int{1, 2}, order)
	assert.Error(t, s.Context().Err())
}

func TestSessionSentimentWindowTrims(t *testing.T) {
	s := newSession(context.Background(), "call-1", "org-1", "agent-1", "+1")
	base := time.Now()

	s.AppendSentiment(SentimentSample{Label: domain.SentimentNeutral, Score: 0, Timestamp: base}, 30*time.Second)
	s.AppendSentiment(SentimentSample{Label: domain.SentimentFrustrated, Score: -0.5, Timestamp: base.Add(45 * time.Second)}, 30*time.Second)

	assert.Len(t, s.SentimentHistory, 1)
	assert.Equal(t, domain.SentimentFrustrated, s.SentimentHistory[0].Label)
}

func TestSessionVoiceProfileSetOnce(t *testing.T) {
	s := newSession(context.Background(), "call-1", "org-1", "agent-1", "+1")
	first := &domain.VoiceProfile{ID: "vp-1"}
	second := &domain.VoiceProfile{ID: "vp-2"}

	s.SetVoiceProfile(first)
	s.SetVoiceProfile(second)

	assert.Equal(t, "vp-1", s.GetVoiceProfile().ID)
}

func TestSessionInterruptionAndPlayback(t *testing.T) {
	s := newSession(context.Background(), "call-1", "org-1", "agent-1", "+1")
	assert.False(t, s.IsSpeaking())

	s.SetPlayback(PlaybackState{IsSpeaking: true, StartedAt: time.Now()})
	assert.True(t, s.IsSpeaking())

	assert.Equal(t, 1, s.RecordInterruption())
	assert.Equal(t, 2, s.RecordInterruption())
}

func TestSessionDraining(t *testing.T) {
	s := newSession(context.Background(), "call-1", "org-1", "agent-1", "+1")
	assert.False(t, s.IsDraining())
	s.SetDraining()
	assert.True(t, s.IsDraining())
}
