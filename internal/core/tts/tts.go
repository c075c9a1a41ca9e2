// Package tts implements the TTS Streamer (C10): one HTTP client around the
// speech-synthesis service, serialized per Session (spec.md §4.9: "at most
// one synthesis at a time"), shaped on the STT Adapter's (C5) per-call
// queue-plus-worker pattern with a process-wide golang.org/x/sync/semaphore
// cap in place of its queueDepthCap (TTS has no need to buffer sentence
// chunks beyond the one in flight).
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/event"
)

// AudioResult is one synthesized chunk, tagged with the sequence number it
// was submitted under so the Playback Controller (C11) can discard
// out-of-order arrivals after a cancellation (spec.md §4.9).
type AudioResult struct {
	SequenceNum int
	Audio       []byte
	FirstByte   time.Duration
}

// ResultFunc receives the outcome of one submitted chunk. err is nil and
// result is nil when the chunk was dropped by a cancellation before or
// during synthesis.
type ResultFunc func(*AudioResult, error)

// Streamer is the TTS Streamer (C10).
type Streamer struct {
	client  *http.Client
	baseURL string
	cfg     config.TTSConfig
	bus     event.EventBus

	sem *semaphore.Weighted

	mu     sync.Mutex
	queues map[string]*callQueue
}

type callQueue struct {
	ch   chan queuedChunk
	done chan struct{}

	mu         sync.Mutex
	generation int
	nextSeq    int
	cancelFn   context.CancelFunc
}

type queuedChunk struct {
	ctx        context.Context
	text       string
	seq        int
	generation int
	fn         ResultFunc
}

// New builds a Streamer from the process-wide in-flight cap and the speech
// synthesis service's base URL.
func New(cfg config.ConcurrencyConfig, ttsCfg config.TTSConfig, baseURL string, bus event.EventBus) *Streamer {
	return &Streamer{
		client:  &http.Client{},
		baseURL: baseURL,
		cfg:     ttsCfg,
		bus:     bus,
		sem:     semaphore.NewWeighted(int64(cfg.TTSInFlightCap)),
		queues:  make(map[string]*callQueue),
	}
}

func (s *Streamer) queueFor(callID string) *callQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[callID]
	if !ok {
		q = &callQueue{ch: make(chan queuedChunk, 1), done: make(chan struct{})}
		s.queues[callID] = q
		go s.run(callID, q)
	}
	return q
}

// Submit enqueues one sentence chunk for synthesis and returns its assigned
// sequence number. Chunks for a call are synthesized strictly in submission
// order, one at a time (spec.md §4.9).
func (s *Streamer) Submit(ctx context.Context, callID, text string, fn ResultFunc) int {
	q := s.queueFor(callID)

	q.mu.Lock()
	seq := q.nextSeq
	q.nextSeq++
	gen := q.generation
	q.mu.Unlock()

	q.ch <- queuedChunk{ctx: ctx, text: text, seq: seq, generation: gen, fn: fn}
	return seq
}

// Cancel abandons the in-flight request for callID, if any, and drains every
// chunk still queued behind it (spec.md §4.9: "On cancellation, abandons the
// in-flight request and drains the playback queue"). Chunks already
// delivered to fn are unaffected; queued chunks resolve via fn(nil, nil).
func (s *Streamer) Cancel(callID string) {
	s.mu.Lock()
	q, ok := s.queues[callID]
	s.mu.Unlock()
	if !ok {
		return
	}

	q.mu.Lock()
	q.generation++
	if q.cancelFn != nil {
		q.cancelFn()
	}
	q.mu.Unlock()

	for {
		select {
		case item := <-q.ch:
			if item.fn != nil {
				item.fn(nil, nil)
			}
		default:
			return
		}
	}
}

// Close tears down the per-call queue once the Session ends.
func (s *Streamer) Close(callID string) {
	s.mu.Lock()
	q, ok := s.queues[callID]
	if ok {
		delete(s.queues, callID)
	}
	s.mu.Unlock()
	if ok {
		close(q.done)
	}
}

func (s *Streamer) run(callID string, q *callQueue) {
	for {
		select {
		case item, ok := <-q.ch:
			if !ok {
				return
			}
			q.mu.Lock()
			stale := item.generation != q.generation
			q.mu.Unlock()
			if stale {
				if item.fn != nil {
					item.fn(nil, nil)
				}
				continue
			}

			res, err := s.synthesize(callID, q, item)
			if item.fn != nil {
				item.fn(res, err)
			}
		case <-q.done:
			return
		}
	}
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// synthesize performs one POST /synthesize call under the process-wide
// semaphore, tracking the wall-clock time until the response headers arrive
// as a proxy for the first-audio-byte latency (spec.md §4.9: "first audio
// byte within 400ms"). The result is measured and published regardless of
// whether it met the soft target; this is a target to monitor, not a hard
// deadline to enforce by aborting the request.
func (s *Streamer) synthesize(callID string, q *callQueue, item queuedChunk) (*AudioResult, error) {
	cctx, cancel := context.WithCancel(item.ctx)
	q.mu.Lock()
	q.cancelFn = cancel
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.cancelFn = nil
		q.mu.Unlock()
		cancel()
	}()

	if err := s.sem.Acquire(cctx, 1); err != nil {
		return nil, fmt.Errorf("tts: acquire in-flight slot: %w", err)
	}
	defer s.sem.Release(1)

	body, err := json.Marshal(synthesizeRequest{Text: item.text})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(cctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		if cctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	defer resp.Body.Close()
	firstByte := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts: unexpected status %d", resp.StatusCode)
	}

	audio := &bytes.Buffer{}
	if _, err := audio.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}

	s.publish(callID, event.TTSFirstByte, map[string]interface{}{
		"sequence_num":  item.seq,
		"first_byte_ms": firstByte.Milliseconds(),
		"met_target":    firstByte <= time.Duration(s.cfg.FirstByteTargetMs)*time.Millisecond,
	})

	return &AudioResult{SequenceNum: item.seq, Audio: audio.Bytes(), FirstByte: firstByte}, nil
}

func (s *Streamer) publish(callID string, t event.EventType, data interface{}) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(t, callID, data)
}
