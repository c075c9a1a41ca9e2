// Package pipeline composes the per-Call data flow spec.md §2 names:
// Ingress(C2) -> Preprocessor(C3) -> STT(C5) -> Corrector(C6) ->
// Sentiment(C7) -> Turn Controller(C8) -> Dialogue(C9) -> TTS(C10) ->
// Playback(C11), with C11 feeding back into C2 for interruption detection
// and C4/C12/C14/C16 written at the lifecycle points spec.md §4.1/§4.13/
// §4.15 name. Grounded on the teacher's internal/core's own composition
// pattern of small single-purpose adapters wired together by one
// conversation-scoped orchestrator (internal/core/conversation.go in the
// teacher repo).
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/corrector"
	"github.com/astra-cc/orchestrator/internal/core/dialogue"
	"github.com/astra-cc/orchestrator/internal/core/event"
	"github.com/astra-cc/orchestrator/internal/core/ingress"
	"github.com/astra-cc/orchestrator/internal/core/playback"
	"github.com/astra-cc/orchestrator/internal/core/preprocess"
	"github.com/astra-cc/orchestrator/internal/core/sentiment"
	"github.com/astra-cc/orchestrator/internal/core/session"
	"github.com/astra-cc/orchestrator/internal/core/stt"
	"github.com/astra-cc/orchestrator/internal/core/turn"
	"github.com/astra-cc/orchestrator/internal/core/tts"
	"github.com/astra-cc/orchestrator/internal/core/voiceprofile"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/metrics"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/internal/storage"
	"github.com/astra-cc/orchestrator/internal/webhook"
	"github.com/astra-cc/orchestrator/pkg/logger"
)

// AudioWriter frames and writes outbound PCM16 audio back to the telephony
// bridge — the shape *ingress.Bridge exposes, narrowed to an interface so
// a Call can be driven end to end in tests without a real websocket.
type AudioWriter interface {
	WritePCM16(pcm16 []byte, sampleRateHz int, frameDuration time.Duration) error
}

// Pipeline is the process-wide composition root: one instance is built at
// startup and shared by every Call's orchestrator.
type Pipeline struct {
	cfg   config.Config
	repos repository.RepositoryManager
	bus   event.EventBus

	registry     *session.Registry
	preprocessor *preprocess.Gateway
	sttAdapter   *stt.Adapter
	dictCache    *corrector.Cache
	corrector    *corrector.Corrector
	voiceProfile *voiceprofile.Store
	tools        *dialogue.Registry
	engine       *dialogue.Engine
	ttsStreamer  *tts.Streamer
	recordings   *storage.Store
	webhooks     *webhook.Dispatcher
	recorder     *metrics.Recorder
}

// New builds the Pipeline's shared, process-wide collaborators from cfg.
func New(
	cfg config.Config,
	repos repository.RepositoryManager,
	bus event.EventBus,
	mirror *session.Mirror,
	obj storage.ObjectPutter,
	webhooks *webhook.Dispatcher,
	recorder *metrics.Recorder,
) *Pipeline {
	tools := dialogue.NewRegistry()
	registerBuiltinTools(tools, repos)

	return &Pipeline{
		cfg:          cfg,
		repos:        repos,
		bus:          bus,
		registry:     session.NewRegistry(repos, bus, mirror),
		preprocessor: preprocess.New(cfg.Preprocess),
		sttAdapter:   stt.New(cfg.Concurrency, cfg.STT.BaseURL, bus),
		dictCache:    corrector.NewCache(),
		corrector:    corrector.New(cfg.Corrector),
		voiceProfile: voiceprofile.New(repos),
		tools:        tools,
		engine:       dialogue.New(cfg.Dialogue, cfg.Dialogue.BaseURL, tools, bus),
		ttsStreamer:  tts.New(cfg.Concurrency, cfg.TTS, cfg.TTS.BaseURL, bus),
		recordings:   storage.New(cfg.Storage, obj, repos.Recordings()),
		webhooks:     webhooks,
		recorder:     recorder,
	}
}

// Registry exposes the Session Registry so the telephony bridge handler can
// look a Call back up for Close/HandleRemoteCleanup outside this package.
func (p *Pipeline) Registry() *session.Registry { return p.registry }

// Call is the live per-Call orchestrator: it owns every C2-C11 collaborator
// scoped to one active Session and drives spec.md §2's data flow end to
// end, from the first inbound RTP frame to the Call's closing Recording.
type Call struct {
	p       *Pipeline
	sess    *session.Session
	ring    *ingress.Ring
	turn    *turn.Controller
	play    *playback.Controller
	dict    *corrector.SessionDictionary
	lex     sentiment.Lexicon
	agent   *domain.Agent
	profile *domain.ContextProfile
	out     AudioWriter

	mu             sync.Mutex
	history        []dialogue.Message
	userTurns      []sentiment.UserTurn
	turnStartedAt  time.Time
	cleanSpeechMs  int
	fullTranscript strings.Builder
}

// StartCall opens a Session (C1), assigns the Agent's ContextProfile and
// dictionary, and wires an Ingress Ring (C2) whose segment/interrupt
// callbacks drive the rest of the Call's data flow. out receives every
// chunk of synthesized audio (C10/C11's egress).
func (p *Pipeline) StartCall(ctx context.Context, orgID, agentID, callerID string, out AudioWriter) (*Call, error) {
	sess, err := p.registry.Open(ctx, orgID, agentID, callerID)
	if err != nil {
		return nil, err
	}

	agent, err := p.repos.Agents().GetByID(ctx, orgID, agentID)
	if err != nil {
		_ = p.registry.Close(ctx, orgID, sess.CallID, "setup_failed")
		return nil, err
	}

	var profile *domain.ContextProfile
	if agent.ContextProfileID != nil && *agent.ContextProfileID != "" {
		profile, _ = p.repos.ContextProfiles().GetByID(ctx, orgID, *agent.ContextProfileID)
	}

	dict, err := corrector.BuildSessionDictionary(ctx, p.dictCache, p.repos, orgID)
	if err != nil {
		logger.Base().Warn("failed to build session dictionary, continuing without overrides",
			zap.String("call_id", sess.CallID), zap.Error(err))
		dict = &corrector.SessionDictionary{}
	}

	lex := sentiment.DefaultLexicon()

	c := &Call{
		p:       p,
		sess:    sess,
		turn:    turn.New(sess.CallID, p.cfg.Turn, p.bus),
		play:    playback.New(sess.CallID, p.bus),
		dict:    dict,
		lex:     lex,
		agent:   agent,
		profile: profile,
		out:     out,
	}
	c.ring = ingress.New(sess.CallID, p.cfg.VAD, sess.IsSpeaking, c.handleSegment, c.handleInterrupt).
		WithThresholds(
			time.Duration(p.cfg.Turn.MinSilenceMs)*time.Millisecond,
			time.Duration(p.cfg.Turn.MaxSegmentDurationMs)*time.Millisecond,
			time.Duration(p.cfg.Turn.MinSpeechMs)*time.Millisecond,
		)

	sess.OnClose(c.ring.Close)
	sess.OnClose(func() { p.sttAdapter.Close(sess.CallID) })
	sess.OnClose(func() { p.ttsStreamer.Close(sess.CallID) })

	p.recorder.CallOpened(ctx)
	if err := p.webhooks.Publish(ctx, orgID, sess.CallID, domain.WebhookEventCallStarted, map[string]interface{}{
		"call_id": sess.CallID, "agent_id": agentID, "caller_id": callerID,
	}); err != nil {
		logger.Base().Warn("failed to publish call_started webhook", zap.String("call_id", sess.CallID), zap.Error(err))
	}

	return c, nil
}

// WriteFrame decodes one inbound RTP packet through the Call's Ring.
func (c *Call) WriteFrame(pkt *rtp.Packet) error {
	return c.ring.WriteFrame(pkt)
}

// Flush forces an early segment boundary, e.g. on a bridge-side silence hint.
func (c *Call) Flush() { c.ring.Flush() }

// Drain marks the Session draining without ending it. Nothing in this
// package reads the flag; the final partial segment is flushed by the
// Ring's Close, which runs as a Session close hook.
func (c *Call) Drain() { c.sess.SetDraining() }

// Close ends the Call: persists the Recording, closes the Session (C1),
// writes the closing CallEvent (C16), and notifies subscribers (C14).
//
// A Recording that cannot be persisted is retried in-process for up to
// cfg.Storage.WriteRetryWindow before Close gives up (spec.md §8's
// documented resolution: "refuse to end the Call and retry ... surfaced as
// apperr.DependencyFailure ... degrading the Session rather than losing the
// artifact silently"). The Session and Call are left active on that path so
// a bridge-side retry of Close (or an operator) gets another chance at the
// write instead of silently losing the audio/transcript.
func (c *Call) Close(ctx context.Context, outcome string) error {
	if err := c.turn.OnBridgeClosed(); err != nil {
		logger.Base().Debug("turn controller close transition", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}

	artifact := storage.Artifact{
		ConversationID: c.sess.CallID,
		OrgID:          c.sess.OrgID,
		Direction:      domain.DirectionMixed,
		Transcript:     []byte(c.snapshotTranscript()),
		Metadata: domain.Metadata{
			Transcription: domain.TranscriptionBlock{Text: c.snapshotTranscript()},
		},
		AudioFormat:     "pcm16",
		SampleRate:      c.p.cfg.VAD.SampleRateHz,
		DurationSeconds: time.Since(c.sess.StartedAt).Seconds(),
	}
	if err := c.persistRecordingWithRetry(ctx, artifact); err != nil {
		logger.Base().Error("failed to persist recording after retrying, refusing to end call",
			zap.String("call_id", c.sess.CallID), zap.Error(err))
		return apperr.DependencyFailure("persist recording", err)
	}

	if err := c.p.registry.Close(ctx, c.sess.OrgID, c.sess.CallID, outcome); err != nil {
		return err
	}

	if err := c.p.recorder.CallClosed(ctx, c.sess.OrgID, c.sess.CallID); err != nil {
		logger.Base().Warn("failed to write call_summary event", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}
	if err := c.p.webhooks.Publish(ctx, c.sess.OrgID, c.sess.CallID, domain.WebhookEventCallEnded, map[string]interface{}{
		"call_id": c.sess.CallID, "outcome": outcome,
	}); err != nil {
		logger.Base().Warn("failed to publish call_ended webhook", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}
	c.p.webhooks.Forget(c.sess.CallID)
	return nil
}

// persistRecordingWithRetry attempts recordings.Persist and, on failure,
// keeps retrying on a fixed interval until it succeeds or
// cfg.Storage.WriteRetryWindow elapses.
func (c *Call) persistRecordingWithRetry(ctx context.Context, artifact storage.Artifact) error {
	const retryInterval = 2 * time.Second
	deadline := time.Now().Add(c.p.cfg.Storage.WriteRetryWindow)

	_, err := c.p.recordings.Persist(ctx, artifact)
	for err != nil && time.Now().Before(deadline) {
		logger.Base().Warn("failed to persist recording, retrying before ending call",
			zap.String("call_id", c.sess.CallID), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
		_, err = c.p.recordings.Persist(ctx, artifact)
	}
	return err
}

func (c *Call) snapshotTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullTranscript.String()
}

// handleInterrupt is the Ring's onInterrupt callback (spec.md §4.2 step
// 3a): it fires whenever inbound energy crosses the VAD threshold while the
// Playback Controller reports is_speaking. It is invoked inline from
// WriteFrame under the Ring's own lock, so it must stay non-blocking.
func (c *Call) handleInterrupt() {
	go func() {
		c.play.Cancel()
		c.sess.SetPlayback(session.PlaybackState{})
		c.p.ttsStreamer.Cancel(c.sess.CallID)
		if err := c.turn.OnInterruption(); err != nil {
			logger.Base().Debug("interruption transition rejected", zap.String("call_id", c.sess.CallID), zap.Error(err))
			return
		}
		if err := c.p.webhooks.Publish(c.sess.Context(), c.sess.OrgID, c.sess.CallID, domain.WebhookEventInterruption, map[string]interface{}{
			"played_until_ms": c.play.PlayedUntil().Milliseconds(),
		}); err != nil {
			logger.Base().Warn("failed to publish interruption webhook", zap.String("call_id", c.sess.CallID), zap.Error(err))
		}
		if err := c.turn.OnInterruptionHandled(); err != nil {
			logger.Base().Debug("interruption-handled transition rejected", zap.String("call_id", c.sess.CallID), zap.Error(err))
		}
		c.sess.RecordInterruption()
	}()
}

// handleSegment is the Ring's onSegment callback, invoked inline under the
// Ring's lock (spec.md §4.2: "invoked inline from Write, so callers must
// make them non-blocking"); the heavy per-segment work runs on its own
// goroutine.
func (c *Call) handleSegment(seg ingress.Segment) {
	go c.processSegment(seg)
}

func (c *Call) processSegment(seg ingress.Segment) {
	ctx := c.sess.Context()
	if ctx.Err() != nil {
		return
	}

	segMs := int(c.ring.DurationOf(len(seg.PCM16)).Milliseconds())

	c.mu.Lock()
	if seg.Reason != ingress.ReasonSilence && seg.Reason != ingress.ReasonFlush {
		c.cleanSpeechMs = 0
	} else {
		c.cleanSpeechMs += segMs
	}
	cleanSpeechMs := c.cleanSpeechMs
	c.turnStartedAt = seg.StartedAt
	c.mu.Unlock()

	pre := c.p.preprocessor.Process(ctx, c.sess.CallID, seg.PCM16, cleanSpeechMs, voiceprofile.Lookup(c.sess))
	if len(pre.EmbeddingCreated) > 0 {
		if _, err := c.p.voiceProfile.Create(ctx, c.sess, pre.EmbeddingCreated); err != nil {
			logger.Base().Warn("failed to persist voice profile", zap.String("call_id", c.sess.CallID), zap.Error(err))
		}
	}

	turnID := uuid.New().String()
	if err := c.turn.OnSpeechFrame(turnID); err != nil {
		logger.Base().Debug("speech-frame transition rejected", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}

	sttStart := time.Now()
	c.p.sttAdapter.Submit(ctx, stt.Request{
		CallID:              c.sess.CallID,
		Audio:               pre.Audio,
		SegmentDurationMs:   segMs,
		EnableCorrection:    true,
		EnableClarification: true,
	}, func(res *stt.Result, err error) {
		sttLatency := time.Since(sttStart)
		if err != nil {
			logger.Base().Warn("stt transcription failed", zap.String("call_id", c.sess.CallID), zap.Error(err))
			return
		}
		c.onTranscribed(ctx, res, pre.Prosody, sttLatency)
	})
}

func (c *Call) onTranscribed(ctx context.Context, res *stt.Result, prosody *preprocess.ProsodyResult, sttLatency time.Duration) {
	clarificationsAsked := c.sess.ClarificationCount()
	corrected := c.p.corrector.Correct(c.dict, res.Words, clarificationsAsked)

	var sb strings.Builder
	transcriptWords := make([]session.TranscriptWord, 0, len(corrected.Words))
	for i, w := range corrected.Words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.Word)
		transcriptWords = append(transcriptWords, session.TranscriptWord{Word: w.Word, Confidence: w.Confidence})
	}
	text := domain.NormalizeWhitespace(sb.String())
	c.sess.AppendTranscript(transcriptWords...)

	fused := sentiment.Score(c.lex, text, prosody)
	c.sess.AppendSentiment(session.SentimentSample{Label: fused.Label, Score: fused.Score, Timestamp: time.Now()}, 2*time.Minute)

	isQuestion := prosody != nil && prosody.IsQuestion
	c.turn.OnEndOfTurn()

	userTurn := &domain.Turn{
		ID:             uuid.New().String(),
		CallID:         c.sess.CallID,
		OrgID:          c.sess.OrgID,
		Role:           domain.TurnRoleUser,
		Text:           text,
		StartedAt:      c.turnStartedAt,
		EndedAt:        time.Now(),
		STTConfidence:  res.Confidence,
		SentimentLabel: fused.Label,
		SentimentScore: fused.Score,
		Latencies:      domain.StageLatencies{STTMs: ptr(sttLatency.Milliseconds()), TotalMs: sttLatency.Milliseconds()},
	}
	for _, w := range corrected.Words {
		userTurn.Words = append(userTurn.Words, domain.WordConfidence{Word: w.Word, Confidence: w.Confidence, Start: w.Start, End: w.End})
	}
	for _, cr := range corrected.Corrections {
		userTurn.CorrectionsMade = append(userTurn.CorrectionsMade, domain.Correction{Original: cr.Original, Corrected: cr.Corrected})
	}
	if err := c.p.recorder.Turn(ctx, userTurn); err != nil {
		logger.Base().Warn("failed to record user turn", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}

	c.recordFullTranscript("user", text)

	if fused.Label == domain.SentimentFrustrated || fused.Label == domain.SentimentAngry {
		if err := c.p.webhooks.Publish(ctx, c.sess.OrgID, c.sess.CallID, domain.WebhookEventSentimentAlert, map[string]interface{}{
			"turn_id": userTurn.ID, "label": fused.Label, "score": fused.Score,
		}); err != nil {
			logger.Base().Warn("failed to publish sentiment_alert webhook", zap.String("call_id", c.sess.CallID), zap.Error(err))
		}
	}

	c.mu.Lock()
	c.userTurns = append(c.userTurns, sentiment.UserTurn{Text: text, IsQuestion: isQuestion})
	c.mu.Unlock()

	if corrected.NeedsClarification {
		prompt := corrected.Prompt
		if prompt == "" {
			prompt = "Could you repeat that?"
		}
		if err := c.turn.OnClarification(prompt); err != nil {
			logger.Base().Debug("clarification transition rejected", zap.String("call_id", c.sess.CallID), zap.Error(err))
		}
		c.sess.RecordClarification()
		c.speak(ctx, prompt, func() {
			if err := c.turn.ResolveClarification(); err != nil {
				logger.Base().Debug("resolve-clarification transition rejected", zap.String("call_id", c.sess.CallID), zap.Error(err))
			}
		})
		return
	}

	assistantTurnID := uuid.New().String()
	if err := c.turn.OnAssistantTurnStart(assistantTurnID); err != nil {
		logger.Base().Debug("assistant-turn-start transition rejected", zap.String("call_id", c.sess.CallID), zap.Error(err))
		return
	}
	c.runAssistantTurn(ctx, assistantTurnID, text, isQuestion)
}

// runAssistantTurn calls the Dialogue Engine (C9), streaming each chunk to
// the TTS Streamer (C10) as it arrives and finalizing the assistant Turn
// once the stream completes.
func (c *Call) runAssistantTurn(ctx context.Context, turnID, utterance string, isQuestion bool) {
	start := time.Now()

	c.mu.Lock()
	history := append([]dialogue.Message(nil), c.history...)
	turns := append([]sentiment.UserTurn(nil), c.userTurns...)
	c.mu.Unlock()

	flags := sentiment.DetectContext(c.lex, turns)
	req := dialogue.Request{
		CallID:        c.sess.CallID,
		SystemPrompt:  c.systemPrompt(),
		ContextFlags: map[string]bool{
			"repeated_question":  flags.RepeatedQuestion,
			"user_frustrated":    flags.UserFrustrated,
			"escalation_request": flags.EscalationRequest,
			"confused":           flags.Confused,
		},
		History:       dialogue.BoundedHistory(history, c.p.cfg.Dialogue.MaxContextTurns),
		UserUtterance: utterance,
		Tools:         c.p.tools.Catalog(),
	}

	var assistantText strings.Builder
	var ttsMu sync.Mutex

	// onChunk stops accumulating text and submitting to TTS the instant the
	// Turn Controller records an interruption (spec.md §4.7: "if the LLM
	// produces a tool call and an interruption arrives during tool
	// execution, the tool call is allowed to complete but its textual
	// response is discarded"). Without this gate, chunks streamed after the
	// interruption would pick up tts.Streamer.Cancel's *new* generation and
	// play normally, since Streamer.IsStale only catches chunks submitted
	// before the cancel.
	onChunk := func(chunk string) {
		if c.turn.State() == turn.StateInterrupted {
			return
		}
		ttsMu.Lock()
		assistantText.WriteString(chunk)
		assistantText.WriteByte(' ')
		ttsMu.Unlock()
		c.speak(ctx, chunk, nil)
	}
	onToolCall := func(call dialogue.ToolCall, result string, err error) {
		if err != nil {
			logger.Base().Warn("tool call failed", zap.String("call_id", c.sess.CallID), zap.String("tool", call.Name), zap.Error(err))
			return
		}
		switch call.Name {
		case dialogue.ToolTransferToAgent:
			_ = c.p.webhooks.Publish(ctx, c.sess.OrgID, c.sess.CallID, domain.WebhookEventTransferRequested, map[string]interface{}{"arguments": call.Arguments})
		case dialogue.ToolScheduleCallback:
			_ = c.p.webhooks.Publish(ctx, c.sess.OrgID, c.sess.CallID, domain.WebhookEventCallbackScheduled, map[string]interface{}{"arguments": call.Arguments})
		}
	}

	err := c.p.engine.Stream(ctx, req, onChunk, onToolCall)
	llmLatency := time.Since(start)

	if err != nil {
		logger.Base().Warn("dialogue stream failed", zap.String("call_id", c.sess.CallID), zap.Error(err))
		_ = c.p.webhooks.Publish(ctx, c.sess.OrgID, c.sess.CallID, domain.WebhookEventError, map[string]interface{}{"stage": "dialogue", "error": err.Error()})
	}

	assistantFinal := strings.TrimSpace(assistantText.String())
	c.recordFullTranscript("assistant", assistantFinal)

	c.mu.Lock()
	c.history = append(c.history, dialogue.Message{Role: "user", Text: utterance}, dialogue.Message{Role: "assistant", Text: assistantFinal})
	c.mu.Unlock()

	at := &domain.Turn{
		ID:        turnID,
		CallID:    c.sess.CallID,
		OrgID:     c.sess.OrgID,
		Role:      domain.TurnRoleAssistant,
		Text:      assistantFinal,
		StartedAt: start,
		EndedAt:   time.Now(),
		Latencies: domain.StageLatencies{LLMMs: ptr(llmLatency.Milliseconds()), TotalMs: llmLatency.Milliseconds()},
	}
	if err := c.p.recorder.Turn(ctx, at); err != nil {
		logger.Base().Warn("failed to record assistant turn", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}
	if err := c.p.webhooks.Publish(ctx, c.sess.OrgID, c.sess.CallID, domain.WebhookEventTurnCompleted, map[string]interface{}{
		"turn_id": turnID, "role": "assistant",
	}); err != nil {
		logger.Base().Warn("failed to publish turn_completed webhook", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}

	if err := c.turn.OnAssistantTurnEnd(); err != nil {
		logger.Base().Debug("assistant-turn-end transition rejected", zap.String("call_id", c.sess.CallID), zap.Error(err))
	}
}

// speak submits one chunk of text to the TTS Streamer (C10), wires the
// resulting audio into the Playback Controller (C11) and the bridge's
// egress, and invokes done (if non-nil) once that chunk has played.
func (c *Call) speak(ctx context.Context, text string, done func()) {
	if strings.TrimSpace(text) == "" {
		if done != nil {
			done()
		}
		return
	}
	seq := c.p.ttsStreamer.Submit(ctx, c.sess.CallID, text, func(res *tts.AudioResult, err error) {
		if err != nil {
			logger.Base().Warn("tts synthesis failed", zap.String("call_id", c.sess.CallID), zap.Error(err))
			return
		}
		if c.play.IsStale(res.SequenceNum) {
			return
		}
		elapsed := c.ring.DurationOf(len(res.Audio))
		if c.out != nil {
			if err := c.out.WritePCM16(res.Audio, c.p.cfg.VAD.SampleRateHz, time.Duration(c.p.cfg.VAD.FrameDurationMs)*time.Millisecond); err != nil {
				logger.Base().Warn("failed to write outbound audio", zap.String("call_id", c.sess.CallID), zap.Error(err))
			}
		}
		c.play.Played(res.SequenceNum, elapsed)
		c.sess.SetPlayback(session.PlaybackState{IsSpeaking: c.play.IsSpeaking(), StartedAt: time.Now()})
		if done != nil {
			done()
		}
	})
	c.play.Enqueue(seq)
	c.sess.SetPlayback(session.PlaybackState{IsSpeaking: true, StartedAt: time.Now()})
}

func (c *Call) recordFullTranscript(role, text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(&c.fullTranscript, "%s: %s\n", role, text)
}

func (c *Call) systemPrompt() string {
	if c.profile == nil || c.profile.SystemPromptTmpl == "" {
		return "You are a helpful voice assistant for a call center."
	}
	return c.profile.SystemPromptTmpl
}

func ptr(v int64) *int64 { return &v }
