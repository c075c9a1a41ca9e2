// Package playback implements the Playback Controller (C11): the single
// source of truth for whether the assistant is speaking on a Call, grounded
// on the same atomic-snapshot discipline as the Online Corrector's (C6)
// Cache and the Turn Controller's (C8) mutex-guarded single chokepoint for
// state mutation.
package playback

import (
	"sync"
	"time"

	"github.com/astra-cc/orchestrator/internal/core/event"
)

// Controller tracks "assistant is speaking" for one Call (spec.md §4.10).
type Controller struct {
	mu sync.Mutex

	callID      string
	bus         event.EventBus
	isSpeaking  bool
	playedUntil time.Duration
	pending     []int // sequence numbers queued for playback, in arrival order
}

// New builds a Controller for callID.
func New(callID string, bus event.EventBus) *Controller {
	return &Controller{callID: callID, bus: bus}
}

// IsSpeaking reports whether the assistant is currently speaking.
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isSpeaking
}

// PlayedUntil returns the latest played_until timestamp attributed to this
// Call (spec.md §4.10: "used to attribute interruptions").
func (c *Controller) PlayedUntil() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playedUntil
}

// Enqueue records one chunk, identified by sequence number, as pending
// playback and marks the assistant as speaking.
func (c *Controller) Enqueue(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isSpeaking = true
	c.pending = append(c.pending, seq)
}

// Played advances played_until as one chunk finishes playing at the bridge
// (spec.md §4.10: "on each audio chunk delivered to the bridge, updates a
// monotonically increasing played_until timestamp"). Stale sequence numbers
// (already discarded by a prior Cancel) are ignored.
func (c *Controller) Played(seq int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, s := range c.pending {
		if s == seq {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)

	if elapsed > c.playedUntil {
		c.playedUntil = elapsed
	}
	if len(c.pending) == 0 {
		c.isSpeaking = false
	}
}

// IsStale reports whether seq belongs to a playback generation that has
// since been cancelled, letting the TTS Streamer's callback (C10) and the
// bridge's playback loop discard out-of-order chunk arrivals after a
// cancellation (spec.md §4.9: "discard out-of-order ones after
// cancellation").
func (c *Controller) IsStale(seq int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.pending {
		if s == seq {
			return false
		}
	}
	return true
}

// Cancel is the atomic barge-in chokepoint (spec.md §4.10: "exposes an
// atomic cancel()"). It sets is_speaking=false, discards every pending
// chunk, and emits playback.interrupted carrying the final played_until.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.isSpeaking = false
	c.pending = nil
	playedUntil := c.playedUntil
	c.mu.Unlock()

	c.publish(event.PlaybackInterrupted, &event.PlaybackInterruptedData{
		PlayedUntilMs: playedUntil.Milliseconds(),
	})
}

func (c *Controller) publish(t event.EventType, data interface{}) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(t, c.callID, data)
}
