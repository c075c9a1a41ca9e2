// Package preprocess implements the Preprocessor Gateway (C3): denoise,
// target-speaker extraction and prosody analysis over one Segment, each a
// plain HTTP client with a per-stage timeout, grounded on the teacher's
// internal/adapters/http.WatiClient shape (one small HTTP client struct per
// external dependency).
package preprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/pkg/logger"

	"go.uber.org/zap"
)

// EmotionalTone is the prosody service's coarse emotional read (spec.md §4.3).
type EmotionalTone string

const (
	ToneNeutral   EmotionalTone = "neutral"
	ToneNervous   EmotionalTone = "nervous"
	ToneExcited   EmotionalTone = "excited"
	ToneCalm      EmotionalTone = "calm"
	ToneConcerned EmotionalTone = "concerned"
)

// ProsodyResult is the per-segment prosody analysis output (spec.md §4.3
// step 3).
type ProsodyResult struct {
	PitchRise      float64       `json:"pitch_rise"`
	PauseDuration  float64       `json:"pause_duration"`
	SpeechRate     float64       `json:"speech_rate"`
	EmotionalTone  EmotionalTone `json:"emotional_tone"`
	IsQuestion     bool          `json:"is_question"`
	HasSpeech      bool          `json:"has_speech"`
}

// Result is what the Preprocessor Gateway hands to the STT Adapter (C5):
// the best audio obtainable after whichever stages succeeded, plus whatever
// prosody was computed. Stages is the set that actually ran, for
// observability — a skipped stage does not fail the pipeline (spec.md §4.3:
// "On timeout or error the stage is skipped, not retried").
type Result struct {
	Audio            []byte
	Prosody          *ProsodyResult
	EmbeddingCreated []float32
	Stages           []Stage
	Skipped          []Stage
}

// Stage names one of the three ordered preprocessing steps.
type Stage string

const (
	StageDenoise   Stage = "denoise"
	StageExtract   Stage = "extraction"
	StageProsody   Stage = "prosody"
)

// Gateway runs the enabled subset of denoise/extraction/prosody over a
// segment in order (spec.md §4.3).
type Gateway struct {
	client *http.Client

	denoiseURL   string
	extractURL   string
	prosodyURL   string

	denoiseTimeout time.Duration
	extractTimeout time.Duration
	prosodyTimeout time.Duration

	denoiseEnabled bool
	extractEnabled bool
	prosodyEnabled bool

	voiceProfileQualifyMs int
}

// New builds a Gateway from PreprocessConfig. An empty URL for a stage
// disables it regardless of its *_enabled flag.
func New(cfg config.PreprocessConfig) *Gateway {
	return &Gateway{
		client:         &http.Client{},
		denoiseURL:     cfg.DenoiseURL,
		extractURL:     cfg.ExtractionURL,
		prosodyURL:     cfg.ProsodyURL,
		denoiseTimeout: time.Duration(cfg.DenoiseTimeoutMs) * time.Millisecond,
		extractTimeout: time.Duration(cfg.ExtractionTimeoutMs) * time.Millisecond,
		prosodyTimeout: time.Duration(cfg.ProsodyTimeoutMs) * time.Millisecond,
		denoiseEnabled: cfg.DenoiseEnabled && cfg.DenoiseURL != "",
		extractEnabled: cfg.ExtractionEnabled && cfg.ExtractionURL != "",
		prosodyEnabled: cfg.ProsodyEnabled && cfg.ProsodyURL != "",

		voiceProfileQualifyMs: cfg.VoiceProfileQualifyMs,
	}
}

// VoiceProfileLookup resolves the Session's current embedding, if one has
// already been created for this Call (C4).
type VoiceProfileLookup func() ([]float32, bool)

// Process runs the enabled stages over audio in order, skipping (not
// retrying) any stage that times out or errors (spec.md §4.3).
func (g *Gateway) Process(ctx context.Context, callID string, audio []byte, cleanSpeechMs int, lookupProfile VoiceProfileLookup) *Result {
	res := &Result{Audio: audio}

	if g.denoiseEnabled {
		if out, ok := g.runDenoise(ctx, audio); ok {
			res.Audio = out
			res.Stages = append(res.Stages, StageDenoise)
		} else {
			res.Skipped = append(res.Skipped, StageDenoise)
		}
	}

	if g.extractEnabled {
		var profile []float32
		var hasProfile bool
		if lookupProfile != nil {
			profile, hasProfile = lookupProfile()
		}
		if hasProfile {
			if out, ok := g.runExtraction(ctx, res.Audio, profile); ok {
				res.Audio = out
				res.Stages = append(res.Stages, StageExtract)
			} else {
				res.Skipped = append(res.Skipped, StageExtract)
			}
		} else if cleanSpeechMs >= g.voiceProfileQualifyMs {
			if emb, ok := g.runEmbeddingCreate(ctx, res.Audio); ok {
				res.EmbeddingCreated = emb
				res.Stages = append(res.Stages, StageExtract)
			} else {
				res.Skipped = append(res.Skipped, StageExtract)
			}
		}
	}

	if g.prosodyEnabled {
		if out, ok := g.runProsody(ctx, res.Audio); ok {
			res.Prosody = out
			res.Stages = append(res.Stages, StageProsody)
		} else {
			res.Skipped = append(res.Skipped, StageProsody)
		}
	}

	logger.Base().Debug("preprocess stages complete",
		zap.String("call_id", callID), zap.Any("ran", res.Stages), zap.Any("skipped", res.Skipped))

	return res
}

func (g *Gateway) runDenoise(ctx context.Context, audio []byte) ([]byte, bool) {
	cctx, cancel := context.WithTimeout(ctx, g.denoiseTimeout)
	defer cancel()

	out, err := g.postBytes(cctx, g.denoiseURL, audio)
	if err != nil {
		logger.Base().Warn("denoise stage skipped", zap.Error(err))
		return nil, false
	}
	return out, true
}

func (g *Gateway) runExtraction(ctx context.Context, audio []byte, embedding []float32) ([]byte, bool) {
	cctx, cancel := context.WithTimeout(ctx, g.extractTimeout)
	defer cancel()

	body, err := json.Marshal(extractionRequest{Audio: audio, Embedding: embedding})
	if err != nil {
		return nil, false
	}
	var resp extractionResponse
	if err := g.postJSON(cctx, g.extractURL, body, &resp); err != nil {
		logger.Base().Warn("extraction stage skipped", zap.Error(err))
		return nil, false
	}
	return resp.Audio, true
}

func (g *Gateway) runEmbeddingCreate(ctx context.Context, audio []byte) ([]float32, bool) {
	cctx, cancel := context.WithTimeout(ctx, g.extractTimeout)
	defer cancel()

	body, err := json.Marshal(extractionRequest{Audio: audio, CreateEmbedding: true})
	if err != nil {
		return nil, false
	}
	var resp extractionResponse
	if err := g.postJSON(cctx, g.extractURL, body, &resp); err != nil {
		logger.Base().Warn("embedding creation skipped", zap.Error(err))
		return nil, false
	}
	return resp.Embedding, true
}

func (g *Gateway) runProsody(ctx context.Context, audio []byte) (*ProsodyResult, bool) {
	cctx, cancel := context.WithTimeout(ctx, g.prosodyTimeout)
	defer cancel()

	var resp ProsodyResult
	if err := g.postJSON(cctx, g.prosodyURL, audio, &resp); err != nil {
		logger.Base().Warn("prosody stage skipped", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

type extractionRequest struct {
	Audio           []byte    `json:"audio"`
	Embedding       []float32 `json:"embedding,omitempty"`
	CreateEmbedding bool      `json:"create_embedding,omitempty"`
}

type extractionResponse struct {
	Audio     []byte    `json:"audio"`
	Embedding []float32 `json:"embedding,omitempty"`
}

func (g *Gateway) postBytes(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preprocess: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (g *Gateway) postJSON(ctx context.Context, url string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("preprocess: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
