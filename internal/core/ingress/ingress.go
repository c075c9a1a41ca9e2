// Package ingress implements Audio Ingress (C2): it decodes the bridge's
// framed PCM16 stream into fixed-duration RTP packets, maintains a per-call
// ring buffer, and emits speech Segments on silence or an explicit flush,
// grounded on the teacher's internal/storage/audio.go RTP/duration handling.
package ingress

import (
	"math"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/astra-cc/orchestrator/internal/config"
)

// ErrIngressClosed is returned by WriteFrame once the bridge has closed and
// the ring buffer has already been drained (spec.md §4.2).
type ErrIngressClosed struct{}

func (ErrIngressClosed) Error() string { return "ingress: closed" }

// Segment is a contiguous span of PCM16 audio handed to the Preprocessor
// Gateway (C3).
type Segment struct {
	CallID    string
	PCM16     []byte
	StartedAt time.Time
	EndedAt   time.Time
	Reason    SegmentReason
}

// SegmentReason records which of the two spec.md §4.2 triggers produced a
// Segment.
type SegmentReason string

const (
	ReasonSilence  SegmentReason = "silence"
	ReasonFlush    SegmentReason = "flush"
	ReasonMaxSpan  SegmentReason = "max_duration"
	ReasonDraining SegmentReason = "draining"
)

const bytesPerSample = 2 // PCM16 mono

// Ring is the per-Session audio buffer plus the silence/duration based
// segmenter. The buffer holds the audio of the segment currently being cut
// and grows until that segment is emitted; it is not bounded by the prosody
// analysis window, and vad.prosody_window_ms is not read here.
type Ring struct {
	mu sync.Mutex

	callID       string
	sampleRateHz int
	minSilence   time.Duration
	maxSegment   time.Duration
	minSpeech    time.Duration
	vadThreshold float64

	buf        []byte
	segStart   time.Time
	silentFor  time.Duration
	frameDur   time.Duration
	draining   bool
	isSpeaking func() bool // Playback Controller's current state

	onSegment func(Segment)
	onInterrupt func()
}

// New constructs a Ring for one Session. isSpeaking reports the Playback
// Controller's is_speaking flag; onSegment/onInterrupt are invoked inline
// from WriteFrame (and onSegment also from Flush and Close), so callers must
// make them non-blocking or hand off to a
// channel themselves.
func New(callID string, cfg config.VADConfig, isSpeaking func() bool, onSegment func(Segment), onInterrupt func()) *Ring {
	return &Ring{
		callID:       callID,
		sampleRateHz: cfg.SampleRateHz,
		minSilence:   500 * time.Millisecond,
		maxSegment:   8 * time.Second,
		vadThreshold: cfg.VADThreshold,
		frameDur:     time.Duration(cfg.FrameDurationMs) * time.Millisecond,
		isSpeaking:   isSpeaking,
		onSegment:    onSegment,
		onInterrupt:  onInterrupt,
	}
}

// WithThresholds overrides the silence/max-duration/min-speech thresholds
// from turn config (spec.md §4.2: "default 500 ms"/"default 8 s"; spec.md
// §4.4's "segments shorter than min_speech_ms (default 250ms) are not sent
// to STT", all configurable).
func (r *Ring) WithThresholds(minSilence, maxSegment, minSpeech time.Duration) *Ring {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minSilence = minSilence
	r.maxSegment = maxSegment
	r.minSpeech = minSpeech
	return r
}

// WriteFrame decodes one RTP packet's PCM16 payload (20 ms framing, spec.md
// §4.2 step 1) and runs the energy/silence/duration state machine.
func (r *Ring) WriteFrame(pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		return ErrIngressClosed{}
	}

	payload := pkt.Payload
	energy := rmsEnergy(payload)

	if r.isSpeaking != nil && r.isSpeaking() && energy >= r.vadThreshold {
		if r.onInterrupt != nil {
			r.onInterrupt()
		}
	}

	if len(r.buf) == 0 {
		r.segStart = time.Now()
	}
	r.buf = append(r.buf, payload...)

	if energy < r.vadThreshold {
		r.silentFor += r.frameDur
	} else {
		r.silentFor = 0
	}

	elapsed := time.Since(r.segStart)

	switch {
	case r.silentFor >= r.minSilence && len(r.buf) > 0:
		r.emitLocked(ReasonSilence)
	case elapsed >= r.maxSegment:
		r.emitLocked(ReasonMaxSpan)
	}

	return nil
}

// Flush is the Turn Controller's explicit flush trigger (spec.md §4.2 step
// 3b), used e.g. when a barge-in forces an early segment boundary.
func (r *Ring) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) > 0 {
		r.emitLocked(ReasonFlush)
	}
}

// Close marks the Ring draining and flushes any partial segment (spec.md
// §4.2: "the Session enters the draining substate and any partial segment is
// flushed").
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return
	}
	r.draining = true
	if len(r.buf) > 0 {
		r.emitLocked(ReasonDraining)
	}
}

// emitLocked cuts the buffered audio into a Segment and hands it to
// onSegment, unless it is shorter than minSpeech, in which case it is a
// non-speech blip (a cough, a VAD false-trigger) and is dropped rather than
// sent on to the STT Adapter (spec.md §4.4).
func (r *Ring) emitLocked(reason SegmentReason) {
	seg := Segment{
		CallID:    r.callID,
		PCM16:     r.buf,
		StartedAt: r.segStart,
		EndedAt:   time.Now(),
		Reason:    reason,
	}
	r.buf = nil
	r.silentFor = 0
	if r.minSpeech > 0 && r.DurationOf(len(seg.PCM16)) < r.minSpeech {
		return
	}
	if r.onSegment != nil {
		r.onSegment(seg)
	}
}

// DurationOf returns the playback duration of n PCM16 bytes at the Ring's
// sample rate, the same per-packet timestamp-delta math the teacher's
// storage layer uses for RTP duration accounting.
func (r *Ring) DurationOf(n int) time.Duration {
	samples := n / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(r.sampleRateHz)
}

// rmsEnergy computes a crude root-mean-square energy estimate over a PCM16
// buffer, normalized to roughly [0,1], used as the VAD/interruption signal.
func rmsEnergy(pcm16 []byte) float64 {
	if len(pcm16) < 2 {
		return 0
	}
	var sumSq float64
	n := len(pcm16) / 2
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm16[2*i]) | uint16(pcm16[2*i+1])<<8)
		f := float64(sample) / 32768.0
		sumSq += f * f
	}
	mean := sumSq / float64(n)
	return math.Sqrt(mean)
}
