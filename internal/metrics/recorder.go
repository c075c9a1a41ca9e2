package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

// Recorder is the Metrics & Event Log's (C16) write path: every CallEvent and
// Turn row the pipeline produces passes through it, and every write is
// mirrored as an OpenTelemetry instrument (spec.md §4.15).
type Recorder struct {
	events repository.CallEventRepository
	turns  repository.TurnRepository
	calls  repository.CallRepository
	in     *Instruments
}

// NewRecorder builds a Recorder over the relational repositories and a set of
// OpenTelemetry instruments (pass metrics.Default() in production, a
// metrics.New(mp) built against a test MeterProvider in tests).
func NewRecorder(events repository.CallEventRepository, turns repository.TurnRepository, calls repository.CallRepository, in *Instruments) *Recorder {
	return &Recorder{events: events, turns: turns, calls: calls, in: in}
}

// StageEvent writes one CallEvent row for a completed (or skipped/failed)
// pipeline stage and mirrors its latency/level as OTel instruments. level is
// one of "info", "degraded", "error" (spec.md §4.3's "stage is skipped... an
// event is logged").
func (r *Recorder) StageEvent(ctx context.Context, orgID, callID, stage string, latency time.Duration, modelID string, level string, params domain.JSONB) error {
	ev := &domain.CallEvent{
		ID:         uuid.NewString(),
		CallID:     callID,
		OrgID:      orgID,
		Stage:      stage,
		LatencyMs:  latency.Milliseconds(),
		ModelID:    modelID,
		Parameters: params,
		Level:      level,
	}
	if level == "" {
		ev.Level = "info"
	}
	if err := r.events.Create(ctx, ev); err != nil {
		return err
	}
	r.in.recordStage(ctx, stage, ev.Level, latency.Seconds())
	return nil
}

// Turn writes a completed Turn row (stt/llm/tts/denoise/total latencies,
// sentiment, corrections count, interruption flag — spec.md §4.15's exact
// per-Turn field list) and mirrors it as OTel histograms/counters.
func (r *Recorder) Turn(ctx context.Context, turn *domain.Turn) error {
	if err := r.turns.Create(ctx, turn); err != nil {
		return err
	}

	attrs := metric.WithAttributes(attr("role", string(turn.Role)))
	r.in.TurnsTotal.Add(ctx, 1, attrs)
	r.in.SentimentScore.Record(ctx, turn.SentimentScore, attrs)
	r.in.CorrectionsTotal.Add(ctx, int64(len(turn.CorrectionsMade)))
	if turn.WasInterrupted {
		r.in.InterruptionsTotal.Add(ctx, 1)
	}

	record := func(stage string, ms *int64) {
		if ms == nil {
			return
		}
		r.in.TurnLatency.Record(ctx, float64(*ms)/1000, metric.WithAttributes(attr("stage", stage)))
	}
	record("stt", turn.Latencies.STTMs)
	record("llm", turn.Latencies.LLMMs)
	record("tts", turn.Latencies.TTSMs)
	record("denoise", turn.Latencies.DenoiseMs)
	r.in.TurnLatency.Record(ctx, float64(turn.Latencies.TotalMs)/1000, metric.WithAttributes(attr("stage", "total")))

	return nil
}

// CallOpened increments the active-calls gauge (spec.md §4.15 ambient
// observability; a Call's aggregates are computed from its Turn rows by
// CallClosed, not tracked incrementally here).
func (r *Recorder) CallOpened(ctx context.Context) {
	r.in.ActiveCalls.Add(ctx, 1)
}

// CallClosed decrements the active-calls gauge and writes the Call's
// closing summary CallEvent (spec.md §4.15: "For each Call on close writes
// aggregates and a summary event").
func (r *Recorder) CallClosed(ctx context.Context, orgID, callID string) error {
	r.in.ActiveCalls.Add(ctx, -1)

	turns, err := r.turns.ListByCall(ctx, orgID, callID)
	if err != nil {
		return err
	}

	var totalMs, sentimentSum int64
	var sentimentN int
	interrupted := 0
	for _, t := range turns {
		totalMs += t.Latencies.TotalMs
		if t.Role == domain.TurnRoleAssistant || t.Role == domain.TurnRoleUser {
			sentimentSum += int64(t.SentimentScore * 1000)
			sentimentN++
		}
		if t.WasInterrupted {
			interrupted++
		}
	}

	params := domain.JSONB{
		"turn_count":         len(turns),
		"interruption_count": interrupted,
		"total_latency_ms":   totalMs,
	}
	if sentimentN > 0 {
		params["avg_sentiment_score"] = float64(sentimentSum) / 1000 / float64(sentimentN)
	}

	return r.StageEvent(ctx, orgID, callID, "call_summary", time.Duration(totalMs)*time.Millisecond, "", "info", params)
}
