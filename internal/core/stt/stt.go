// Package stt implements the STT Adapter (C5): one HTTP client around the
// transcription service's POST /transcribe/enhanced contract (spec.md §6),
// shaped on agentplexus-omnivoice's provider-agnostic stt package
// (TranscriptionConfig/Word/Segment/TranscriptionResult), adapted to the
// exact wire JSON instead of a multi-provider abstraction.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/event"
	"github.com/astra-cc/orchestrator/pkg/logger"

	"go.uber.org/zap"
)

// Word is one recognized word with timing and confidence (spec.md §4.4
// output contract).
type Word struct {
	Word       string
	Confidence float64
	Start      time.Duration
	End        time.Duration
}

// Segment is one transcribed span of the submitted audio.
type Segment struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Correction is one dictionary substitution the STT service's own
// server-side correction pass applied (spec.md §6 canonical response
// "corrections_made"), distinct from the Online Corrector's (C6) in-process
// pass over the same segment.
type Correction struct {
	Original  string
	Corrected string
}

// Result is the STT Adapter's output (spec.md §4.4: "{text, language,
// confidence, segments[], words[]}"), extended with the remaining fields of
// the canonical wire response (spec.md §6) so downstream components are not
// starved of server-side correction/clarification/intent signal.
type Result struct {
	Text          string
	CorrectedText string
	Language      string
	Confidence    float64
	Segments      []Segment
	Words         []Word

	CorrectionsMade      []Correction
	NeedsClarification   bool
	ClarificationType    string
	ClarificationPrompt  string
	IntentDetected       string
	NormalizedEntities   map[string]interface{}
}

// Request is one segment submitted for transcription.
type Request struct {
	CallID              string
	Audio               []byte // WAV bytes
	SegmentDurationMs   int
	EnableCorrection    bool
	EnableClarification bool
	// ModelParams are opaque to the core; the adapter forwards them as
	// additional multipart form fields (spec.md §4.4: "Model parameters are
	// opaque to the core; the adapter forwards them from session
	// configuration").
	ModelParams map[string]string
}

// ResultFunc receives the outcome of one queued transcription request.
type ResultFunc func(*Result, error)

// Adapter is the STT Adapter (C5). It enforces one in-flight request per
// Session with a bounded per-Session queue (spec.md §4.4), on top of a
// process-wide in-flight cap shared across all Sessions.
type Adapter struct {
	client  *http.Client
	baseURL string
	bus     event.EventBus

	sem           *semaphore.Weighted
	queueDepthCap int

	mu     sync.Mutex
	queues map[string]*callQueue
}

type callQueue struct {
	ch   chan queuedRequest
	done chan struct{}
}

type queuedRequest struct {
	ctx context.Context
	req Request
	fn  ResultFunc
}

// New builds an Adapter from the process-wide concurrency caps and the
// transcription service's base URL.
func New(cfg config.ConcurrencyConfig, baseURL string, bus event.EventBus) *Adapter {
	return &Adapter{
		client:        &http.Client{},
		baseURL:       baseURL,
		bus:           bus,
		sem:           semaphore.NewWeighted(int64(cfg.STTInFlightCap)),
		queueDepthCap: cfg.STTQueueDepthCap,
		queues:        make(map[string]*callQueue),
	}
}

func (a *Adapter) queueFor(callID string) *callQueue {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.queues[callID]
	if !ok {
		q = &callQueue{
			ch:   make(chan queuedRequest, a.queueDepthCap),
			done: make(chan struct{}),
		}
		a.queues[callID] = q
		go a.run(callID, q)
	}
	return q
}

// Submit enqueues req for callID. If the call's queue is already at capacity
// (one in flight plus queueDepthCap waiting), the segment is dropped and a
// stt.segment_dropped event is published rather than blocking the caller
// (spec.md §4.4: "excess is dropped and surfaced as a Dropped event").
func (a *Adapter) Submit(ctx context.Context, req Request, fn ResultFunc) {
	q := a.queueFor(req.CallID)
	select {
	case q.ch <- queuedRequest{ctx: ctx, req: req, fn: fn}:
		a.publish(req.CallID, event.STTSegmentQueued, nil)
	default:
		logger.Base().Warn("stt segment dropped, queue full", zap.String("call_id", req.CallID))
		a.publish(req.CallID, event.STTSegmentDropped, nil)
	}
}

// Close tears down the per-call queue once the Session ends (spec.md §4.1:
// "guaranteed release of ... in-flight HTTP requests"). Register this as a
// Session.OnClose hook.
func (a *Adapter) Close(callID string) {
	a.mu.Lock()
	q, ok := a.queues[callID]
	if ok {
		delete(a.queues, callID)
	}
	a.mu.Unlock()
	if ok {
		close(q.done)
	}
}

// run is the single worker per call, guaranteeing at most one in-flight
// request for that Session.
func (a *Adapter) run(callID string, q *callQueue) {
	for {
		select {
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			res, err := a.transcribe(item.ctx, item.req)
			item.fn(res, err)
		case <-q.done:
			return
		}
	}
}

// transcribe performs one POST /transcribe/enhanced call under the
// process-wide semaphore and a per-request timeout proportional to the
// segment's duration (spec.md §4.4: "3s wall-clock for an 8s segment,
// proportional otherwise").
func (a *Adapter) transcribe(ctx context.Context, req Request) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeoutFor(req.SegmentDurationMs))
	defer cancel()

	if err := a.sem.Acquire(cctx, 1); err != nil {
		return nil, fmt.Errorf("stt: acquire in-flight slot: %w", err)
	}
	defer a.sem.Release(1)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	part, err := mw.CreateFormFile("audio", "segment.wav")
	if err != nil {
		return nil, fmt.Errorf("stt: build multipart body: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("stt: write audio part: %w", err)
	}

	_ = mw.WriteField("conversation_id", req.CallID)
	_ = mw.WriteField("enable_correction", strconv.FormatBool(req.EnableCorrection))
	_ = mw.WriteField("enable_clarification", strconv.FormatBool(req.EnableClarification))
	for k, v := range req.ModelParams {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("stt: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(cctx, http.MethodPost, a.baseURL+"/transcribe/enhanced", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stt: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stt: unexpected status %d", resp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("stt: decode response: %w", err)
	}
	return wire.toResult(), nil
}

func (a *Adapter) publish(callID string, t event.EventType, data interface{}) {
	if a.bus == nil {
		return
	}
	_ = a.bus.Publish(t, callID, data)
}

// timeoutFor scales the 3s/8s-segment baseline proportionally (spec.md
// §4.4). A non-positive duration falls back to the 8s baseline.
func timeoutFor(segmentDurationMs int) time.Duration {
	if segmentDurationMs <= 0 {
		segmentDurationMs = 8000
	}
	return time.Duration(segmentDurationMs) * 3 * time.Second / 8000
}

type wireSegment struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

type wireWordConfidence struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
}

type wireCorrection struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

type wireResponse struct {
	Text                string                 `json:"text"`
	CorrectedText       string                 `json:"corrected_text"`
	Language            string                 `json:"language"`
	Confidence          float64                `json:"confidence"`
	Segments            []wireSegment          `json:"segments"`
	WordConfidences     []wireWordConfidence   `json:"word_confidences"`
	CorrectionsMade     []wireCorrection       `json:"corrections_made"`
	NeedsClarification  bool                   `json:"needs_clarification"`
	ClarificationType   string                 `json:"clarification_type,omitempty"`
	ClarificationPrompt string                 `json:"clarification_prompt,omitempty"`
	IntentDetected      string                 `json:"intent_detected"`
	NormalizedEntities  map[string]interface{} `json:"normalized_entities"`
}

func (w *wireResponse) toResult() *Result {
	segments := make([]Segment, 0, len(w.Segments))
	for _, s := range w.Segments {
		segments = append(segments, Segment{
			Text:       s.Text,
			Start:      time.Duration(s.StartMs) * time.Millisecond,
			End:        time.Duration(s.EndMs) * time.Millisecond,
			Confidence: s.Confidence,
		})
	}

	words := make([]Word, 0, len(w.WordConfidences))
	for _, wc := range w.WordConfidences {
		words = append(words, Word{
			Word:       wc.Word,
			Confidence: wc.Confidence,
			Start:      time.Duration(wc.StartMs) * time.Millisecond,
			End:        time.Duration(wc.EndMs) * time.Millisecond,
		})
	}

	corrections := make([]Correction, 0, len(w.CorrectionsMade))
	for _, c := range w.CorrectionsMade {
		corrections = append(corrections, Correction{Original: c.Original, Corrected: c.Corrected})
	}

	return &Result{
		Text:                w.Text,
		CorrectedText:       w.CorrectedText,
		Language:            w.Language,
		Confidence:          w.Confidence,
		Segments:            segments,
		Words:               words,
		CorrectionsMade:     corrections,
		NeedsClarification:  w.NeedsClarification,
		ClarificationType:   w.ClarificationType,
		ClarificationPrompt: w.ClarificationPrompt,
		IntentDetected:      w.IntentDetected,
		NormalizedEntities:  w.NormalizedEntities,
	}
}
