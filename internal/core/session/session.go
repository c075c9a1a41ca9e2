// Package session implements the Session Registry (C1): it maps call ids to
// in-memory Session objects, enforces tenant isolation and concurrency
// limits, grounded on the teacher's internal/core/session.Manager.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/astra-cc/orchestrator/internal/domain"
)

// PlaybackState mirrors the Playback Controller's (C11) notion of whether
// synthesized audio is currently being streamed to the caller.
type PlaybackState struct {
	IsSpeaking bool
	StartedAt  time.Time
}

// SentimentSample is one windowed observation the Sentiment/Context Fuser
// (C7) appends to a Session's rolling history.
type SentimentSample struct {
	Label     domain.SentimentLabel
	Score     float64
	Timestamp time.Time
}

// TranscriptWord is one word of the Session's rolling transcript, carried
// with its STT confidence (spec.md §3 Session fields).
type TranscriptWord struct {
	Word       string
	Confidence float64
	TurnID     string
}

// Session is the transient, in-memory state of one active Call. Exactly one
// exists per active Call (spec.md §3 invariant 2); it is destroyed when the
// call ends, leaving only the persistent entities.
type Session struct {
	mu sync.RWMutex

	CallID   string
	OrgID    string
	AgentID  string
	CallerID string

	ctx    context.Context
	cancel context.CancelFunc

	StartedAt time.Time

	VoiceProfile *domain.VoiceProfile

	Transcript          []TranscriptWord
	SentimentHistory    []SentimentSample
	Playback            PlaybackState
	InterruptionCount   int
	ClarificationsAsked int
	Latencies           []domain.StageLatencies

	draining bool

	onClose []func()
}

func newSession(ctx context.Context, callID, orgID, agentID, callerID string) *Session {
	sessCtx, cancel := context.WithCancel(ctx)
	return &Session{
		CallID:    callID,
		OrgID:     orgID,
		AgentID:   agentID,
		CallerID:  callerID,
		ctx:       sessCtx,
		cancel:    cancel,
		StartedAt: time.Now(),
	}
}

// Context is cancelled the moment the Session closes, letting every in-flight
// HTTP request (STT/TTS/preprocessor calls) unwind promptly.
func (s *Session) Context() context.Context { return s.ctx }

// OnClose registers a cleanup hook run (in registration order) when the
// Session closes, guaranteeing release of per-call resources on every exit
// path (spec.md §4.1: "guaranteed release of ingress buffers, cancellation
// of in-flight HTTP requests, deletion of the in-memory VoiceProfile").
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// SetDraining marks the Session as draining: the bridge has closed but a
// partial segment may still be flushed (spec.md §4.2).
func (s *Session) SetDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
}

func (s *Session) IsDraining() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draining
}

// AppendTranscript appends words to the rolling transcript.
func (s *Session) AppendTranscript(words ...TranscriptWord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transcript = append(s.Transcript, words...)
}

// AppendSentiment appends a sample to the windowed sentiment history,
// trimming anything older than window.
func (s *Session) AppendSentiment(sample SentimentSample, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SentimentHistory = append(s.SentimentHistory, sample)
	cutoff := sample.Timestamp.Add(-window)
	i := 0
	for ; i < len(s.SentimentHistory); i++ {
		if s.SentimentHistory[i].Timestamp.After(cutoff) {
			break
		}
	}
	s.SentimentHistory = s.SentimentHistory[i:]
}

// SetPlayback updates the Playback Controller's speaking state.
func (s *Session) SetPlayback(state PlaybackState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Playback = state
}

// IsSpeaking reports whether assistant audio is currently being played out,
// the signal Audio Ingress (C2) uses to decide whether inbound energy is an
// Interruption.
func (s *Session) IsSpeaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Playback.IsSpeaking
}

// RecordInterruption increments the Session's interruption counter.
func (s *Session) RecordInterruption() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InterruptionCount++
	return s.InterruptionCount
}

// ClarificationCount returns how many ClarificationRequests have been asked
// so far this Call, the bound the Online Corrector (C6) checks against
// max_clarifications_per_call.
func (s *Session) ClarificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ClarificationsAsked
}

// RecordClarification increments the Session's clarification counter.
func (s *Session) RecordClarification() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClarificationsAsked++
	return s.ClarificationsAsked
}

// SetVoiceProfile records the Session's once-per-call speaker embedding.
func (s *Session) SetVoiceProfile(vp *domain.VoiceProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.VoiceProfile == nil {
		s.VoiceProfile = vp
	}
}

// GetVoiceProfile returns the Session's speaker embedding, or nil if none has
// qualified yet.
func (s *Session) GetVoiceProfile() *domain.VoiceProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.VoiceProfile
}

// ClearVoiceProfile drops the Session's reference to its VoiceProfile. The
// Voice-Profile Store (C4) registers this as an OnClose hook so the
// embedding is unreachable the moment the Session ends (spec.md §8).
func (s *Session) ClearVoiceProfile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.VoiceProfile = nil
}

// AppendLatency records one Turn's per-stage latency log entry.
func (s *Session) AppendLatency(l domain.StageLatencies) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Latencies = append(s.Latencies, l)
}

// close runs every registered cleanup hook and cancels the Session context.
// Hooks run synchronously in registration order so later hooks (e.g.
// deleting the VoiceProfile) can assume earlier ones (releasing the ingress
// buffer) already ran.
func (s *Session) close() {
	s.mu.Lock()
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	s.cancel()
}
