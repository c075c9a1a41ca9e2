package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/astra-cc/orchestrator"

// latencyBuckets are histogram bucket boundaries in seconds, tuned for a
// pipeline whose end-to-end target round-trip is 2.5s (spec.md §1).
var latencyBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.4, 0.5, 1, 2.5, 5, 10}

// Instruments holds every OpenTelemetry metric instrument the orchestrator
// publishes. Safe for concurrent use.
type Instruments struct {
	StageDuration  metric.Float64Histogram // attrs: stage, level
	TurnLatency    metric.Float64Histogram // attrs: stage (stt|llm|tts|denoise|total)
	SentimentScore metric.Float64Histogram

	TurnsTotal         metric.Int64Counter // attrs: role
	InterruptionsTotal metric.Int64Counter
	CorrectionsTotal   metric.Int64Counter
	CallEventsTotal    metric.Int64Counter // attrs: stage, level
	WebhooksDropped    metric.Int64Counter

	ActiveCalls metric.Int64UpDownCounter
}

// New creates a fully initialised Instruments set against mp.
func New(mp metric.MeterProvider) (*Instruments, error) {
	m := mp.Meter(meterName)
	var err error
	in := &Instruments{}

	if in.StageDuration, err = m.Float64Histogram("orchestrator.stage.duration",
		metric.WithDescription("Latency of one preprocessing/external-call stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if in.TurnLatency, err = m.Float64Histogram("orchestrator.turn.latency",
		metric.WithDescription("Per-Turn per-stage latency (stt/llm/tts/denoise/total)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if in.SentimentScore, err = m.Float64Histogram("orchestrator.turn.sentiment_score",
		metric.WithDescription("Fused sentiment score recorded per Turn."),
	); err != nil {
		return nil, err
	}
	if in.TurnsTotal, err = m.Int64Counter("orchestrator.turns.total",
		metric.WithDescription("Total Turns recorded, by role."),
	); err != nil {
		return nil, err
	}
	if in.InterruptionsTotal, err = m.Int64Counter("orchestrator.interruptions.total",
		metric.WithDescription("Total Turns that were interrupted (barge-in)."),
	); err != nil {
		return nil, err
	}
	if in.CorrectionsTotal, err = m.Int64Counter("orchestrator.corrections.total",
		metric.WithDescription("Total online-corrector substitutions applied."),
	); err != nil {
		return nil, err
	}
	if in.CallEventsTotal, err = m.Int64Counter("orchestrator.call_events.total",
		metric.WithDescription("Total CallEvent rows written, by stage and level."),
	); err != nil {
		return nil, err
	}
	if in.WebhooksDropped, err = m.Int64Counter("orchestrator.webhooks.dropped",
		metric.WithDescription("Webhook deliveries dropped because a subscription's pending queue was at capacity."),
	); err != nil {
		return nil, err
	}
	if in.ActiveCalls, err = m.Int64UpDownCounter("orchestrator.active_calls",
		metric.WithDescription("Number of Calls currently open."),
	); err != nil {
		return nil, err
	}

	return in, nil
}

var (
	defaultInstruments     *Instruments
	defaultInstrumentsOnce sync.Once
)

// Default returns the package-level Instruments instance, built against
// otel.GetMeterProvider() on first call. Panics on instrument-creation
// failure, which should not happen against a correctly initialised provider.
func Default() *Instruments {
	defaultInstrumentsOnce.Do(func() {
		var err error
		defaultInstruments, err = New(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: failed to create default instruments: " + err.Error())
		}
	})
	return defaultInstruments
}

func attr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func (in *Instruments) recordStage(ctx context.Context, stage, level string, seconds float64) {
	in.StageDuration.Record(ctx, seconds, metric.WithAttributes(attr("stage", stage), attr("level", level)))
	in.CallEventsTotal.Add(ctx, 1, metric.WithAttributes(attr("stage", stage), attr("level", level)))
}
