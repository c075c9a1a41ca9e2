// Package config defines the enumerated configuration struct for the
// orchestrator: thresholds, timeouts and caps are named fields, never
// free-form string keys read at runtime (spec.md §9 design note).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TurnConfig holds the Turn Controller's (C8) timing thresholds.
type TurnConfig struct {
	EndOfTurnPauseMs         int `mapstructure:"end_of_turn_pause_ms" validate:"min=1"`
	EndOfTurnPauseQuestionMs int `mapstructure:"end_of_turn_pause_question_ms" validate:"min=1"`
	MinSilenceMs             int `mapstructure:"min_silence_ms" validate:"min=1"`
	MaxSegmentDurationMs     int `mapstructure:"max_segment_duration_ms" validate:"min=1"`
	ThinkingPauseMinMs       int `mapstructure:"thinking_pause_min_ms" validate:"min=1"`
	ThinkingPauseMaxMs       int `mapstructure:"thinking_pause_max_ms" validate:"min=1"`
	MinSpeechMs              int `mapstructure:"min_speech_ms" validate:"min=1"`
}

// CorrectorConfig holds the Online Corrector's (C6) budgets.
type CorrectorConfig struct {
	BudgetMs                         int     `mapstructure:"budget_ms" validate:"min=1"`
	ClarificationConfidenceThreshold float64 `mapstructure:"clarification_confidence_threshold" validate:"min=0,max=1"`
	MaxClarificationsPerCall         int     `mapstructure:"max_clarifications_per_call" validate:"min=0"`
	OfflineWERThreshold              float64 `mapstructure:"offline_wer_threshold" validate:"min=0"`
	OfflineCosineDistanceMax         float64 `mapstructure:"offline_cosine_distance_max" validate:"min=0"`
}

// PreprocessConfig holds the Preprocessor Gateway's (C3) per-stage endpoints,
// enable flags and timeouts. A stage only runs when both its *Enabled flag is
// true and its URL is non-empty (spec.md §4.3: "the subset enabled by
// configuration").
type PreprocessConfig struct {
	DenoiseURL    string `mapstructure:"denoise_url"`
	ExtractionURL string `mapstructure:"extraction_url"`
	ProsodyURL    string `mapstructure:"prosody_url"`

	DenoiseEnabled    bool `mapstructure:"denoise_enabled"`
	ExtractionEnabled bool `mapstructure:"extraction_enabled"`
	ProsodyEnabled    bool `mapstructure:"prosody_enabled"`

	DenoiseTimeoutMs      int `mapstructure:"denoise_timeout_ms" validate:"min=1"`
	ExtractionTimeoutMs   int `mapstructure:"extraction_timeout_ms" validate:"min=1"`
	ProsodyTimeoutMs      int `mapstructure:"prosody_timeout_ms" validate:"min=1"`
	VoiceProfileQualifyMs int `mapstructure:"voice_profile_qualify_ms" validate:"min=1"`
}

// ConcurrencyConfig holds process-wide capacity caps (spec.md §5).
type ConcurrencyConfig struct {
	STTInFlightCap        int           `mapstructure:"stt_in_flight_cap" validate:"min=1"`
	TTSInFlightCap        int           `mapstructure:"tts_in_flight_cap" validate:"min=1"`
	WebhookWorkersPerProc int           `mapstructure:"webhook_workers_per_process" validate:"min=1"`
	STTQueueDepthCap      int           `mapstructure:"stt_queue_depth_cap" validate:"min=0"`
	AcquireWaitTimeout    time.Duration `mapstructure:"acquire_wait_timeout"`
	CancellationGrace     time.Duration `mapstructure:"cancellation_grace"`
}

// WebhookConfig holds Webhook Dispatcher (C14) policy.
type WebhookConfig struct {
	QueueCap             int           `mapstructure:"queue_cap" validate:"min=1"`
	MaxAttempts          int           `mapstructure:"max_attempts" validate:"min=1"`
	SentimentAlertWindow time.Duration `mapstructure:"sentiment_alert_window"`
}

// StorageConfig holds Recording & Metadata Store (C12) backend settings.
type StorageConfig struct {
	Backend          string        `mapstructure:"backend" validate:"oneof=local object dual"`
	LocalPath        string        `mapstructure:"local_path"`
	ObjectBucket     string        `mapstructure:"object_bucket"`
	WriteRetryWindow time.Duration `mapstructure:"write_retry_window"`
}

// AuthConfig holds Tenancy & Auth (C15) settings.
type AuthConfig struct {
	AdminSecret       string        `mapstructure:"admin_secret"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	HandshakeSecret   string        `mapstructure:"handshake_secret"`
	HandshakeTokenTTL time.Duration `mapstructure:"handshake_token_ttl"`
}

// VADConfig holds Audio Ingress (C2) framing/energy settings.
type VADConfig struct {
	SampleRateHz    int     `mapstructure:"sample_rate_hz" validate:"min=1"`
	FrameDurationMs int     `mapstructure:"frame_duration_ms" validate:"min=1"`
	ProsodyWindowMs int     `mapstructure:"prosody_window_ms" validate:"min=1"`
	VADThreshold    float64 `mapstructure:"vad_threshold" validate:"min=0"`
}

// STTConfig holds STT Adapter (C5) transport settings.
type STTConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// DialogueConfig holds Dialogue Engine Adapter (C9) settings.
type DialogueConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	MaxContextTurns int    `mapstructure:"max_context_turns" validate:"min=1"`
	MinChunkWords   int    `mapstructure:"min_chunk_words" validate:"min=1"`
}

// TTSConfig holds TTS Streamer (C10) latency targets.
type TTSConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	FirstByteTargetMs int    `mapstructure:"first_byte_target_ms" validate:"min=1"`
	RecoveryWindowMs  int    `mapstructure:"recovery_window_ms" validate:"min=1"`
}

// SessionConfig holds Session Registry (C1) fabric settings.
type SessionConfig struct {
	RedisKeyTTL time.Duration `mapstructure:"redis_key_ttl"`
}

// BatchConfig holds the Batch Job Enqueuer worker's (C13) polling policy.
type BatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size" validate:"min=1"`
}

// Config is the single strongly-typed configuration object threaded through
// every component at startup (no process-wide singletons, spec.md §9).
type Config struct {
	Port          string        `mapstructure:"port" validate:"required"`
	LogEnv        string        `mapstructure:"log_env"`
	DatabaseDSN   string        `mapstructure:"database_dsn" validate:"required"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`

	Turn        TurnConfig        `mapstructure:"turn"`
	Corrector   CorrectorConfig   `mapstructure:"corrector"`
	Preprocess  PreprocessConfig  `mapstructure:"preprocess"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	VAD         VADConfig         `mapstructure:"vad"`
	STT         STTConfig         `mapstructure:"stt"`
	Dialogue    DialogueConfig    `mapstructure:"dialogue"`
	TTS         TTSConfig         `mapstructure:"tts"`
	Session     SessionConfig     `mapstructure:"session"`
	Batch       BatchConfig       `mapstructure:"batch"`
}

// Default returns the configuration defaults named throughout spec.md.
func Default() Config {
	return Config{
		Port:          "8080",
		LogEnv:        "development",
		DatabaseDSN:   "host=localhost port=5432 user=postgres dbname=astra_cc sslmode=disable",
		RedisAddr:     "localhost:6379",
		RedisDB:       0,
		ShutdownGrace: 30 * time.Second,
		Turn: TurnConfig{
			EndOfTurnPauseMs:         1500,
			EndOfTurnPauseQuestionMs: 600,
			MinSilenceMs:             500,
			MaxSegmentDurationMs:     8000,
			ThinkingPauseMinMs:       800,
			ThinkingPauseMaxMs:       2500,
			MinSpeechMs:              250,
		},
		Corrector: CorrectorConfig{
			BudgetMs:                         20,
			ClarificationConfidenceThreshold: 0.6,
			MaxClarificationsPerCall:         3,
			OfflineWERThreshold:              0.2,
			OfflineCosineDistanceMax:         0.7,
		},
		Preprocess: PreprocessConfig{
			DenoiseEnabled:        false,
			ExtractionEnabled:     false,
			ProsodyEnabled:        false,
			DenoiseTimeoutMs:      400,
			ExtractionTimeoutMs:   250,
			ProsodyTimeoutMs:      150,
			VoiceProfileQualifyMs: 3000,
		},
		Concurrency: ConcurrencyConfig{
			STTInFlightCap:        32,
			TTSInFlightCap:        32,
			WebhookWorkersPerProc: 16,
			STTQueueDepthCap:      2,
			AcquireWaitTimeout:    500 * time.Millisecond,
			CancellationGrace:     200 * time.Millisecond,
		},
		Webhook: WebhookConfig{
			QueueCap:             1000,
			MaxAttempts:          5,
			SentimentAlertWindow: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:          "local",
			LocalPath:        "./data/recordings",
			WriteRetryWindow: 30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:          90 * 24 * time.Hour,
			HandshakeTokenTTL: 60 * time.Second,
		},
		VAD: VADConfig{
			SampleRateHz:    16000,
			FrameDurationMs: 20,
			ProsodyWindowMs: 1500,
			VADThreshold:    0.02,
		},
		STT: STTConfig{
			BaseURL: "",
		},
		Dialogue: DialogueConfig{
			BaseURL:         "",
			MaxContextTurns: 10,
			MinChunkWords:   3,
		},
		TTS: TTSConfig{
			BaseURL:           "",
			FirstByteTargetMs: 400,
			RecoveryWindowMs:  1000,
		},
		Session: SessionConfig{
			RedisKeyTTL: 1 * time.Hour,
		},
		Batch: BatchConfig{
			PollInterval: 1 * time.Minute,
			BatchSize:    25,
		},
	}
}

// Load reads configuration from environment variables (prefix ASTRA_CC) over
// the documented defaults, the way the teacher's LoadConfigFromEnv layers env
// vars over DefaultConfig, but using viper's structured Unmarshal instead of
// one getEnvOrDefault call per field.
func Load() (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("ASTRA_CC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAll(v, cfg)

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

// bindAll seeds viper's defaults from the documented Config defaults so
// AutomaticEnv overrides apply on top of them rather than on zero values.
func bindAll(v *viper.Viper, cfg Config) {
	v.SetDefault("port", cfg.Port)
	v.SetDefault("log_env", cfg.LogEnv)
	v.SetDefault("database_dsn", cfg.DatabaseDSN)
	v.SetDefault("redis_addr", cfg.RedisAddr)
	v.SetDefault("redis_password", cfg.RedisPassword)
	v.SetDefault("redis_db", cfg.RedisDB)
	v.SetDefault("shutdown_grace", cfg.ShutdownGrace)

	v.SetDefault("turn.end_of_turn_pause_ms", cfg.Turn.EndOfTurnPauseMs)
	v.SetDefault("turn.end_of_turn_pause_question_ms", cfg.Turn.EndOfTurnPauseQuestionMs)
	v.SetDefault("turn.min_silence_ms", cfg.Turn.MinSilenceMs)
	v.SetDefault("turn.max_segment_duration_ms", cfg.Turn.MaxSegmentDurationMs)
	v.SetDefault("turn.thinking_pause_min_ms", cfg.Turn.ThinkingPauseMinMs)
	v.SetDefault("turn.thinking_pause_max_ms", cfg.Turn.ThinkingPauseMaxMs)
	v.SetDefault("turn.min_speech_ms", cfg.Turn.MinSpeechMs)

	v.SetDefault("corrector.budget_ms", cfg.Corrector.BudgetMs)
	v.SetDefault("corrector.clarification_confidence_threshold", cfg.Corrector.ClarificationConfidenceThreshold)
	v.SetDefault("corrector.max_clarifications_per_call", cfg.Corrector.MaxClarificationsPerCall)
	v.SetDefault("corrector.offline_wer_threshold", cfg.Corrector.OfflineWERThreshold)
	v.SetDefault("corrector.offline_cosine_distance_max", cfg.Corrector.OfflineCosineDistanceMax)

	v.SetDefault("preprocess.denoise_url", cfg.Preprocess.DenoiseURL)
	v.SetDefault("preprocess.extraction_url", cfg.Preprocess.ExtractionURL)
	v.SetDefault("preprocess.prosody_url", cfg.Preprocess.ProsodyURL)
	v.SetDefault("preprocess.denoise_enabled", cfg.Preprocess.DenoiseEnabled)
	v.SetDefault("preprocess.extraction_enabled", cfg.Preprocess.ExtractionEnabled)
	v.SetDefault("preprocess.prosody_enabled", cfg.Preprocess.ProsodyEnabled)
	v.SetDefault("preprocess.denoise_timeout_ms", cfg.Preprocess.DenoiseTimeoutMs)
	v.SetDefault("preprocess.extraction_timeout_ms", cfg.Preprocess.ExtractionTimeoutMs)
	v.SetDefault("preprocess.prosody_timeout_ms", cfg.Preprocess.ProsodyTimeoutMs)
	v.SetDefault("preprocess.voice_profile_qualify_ms", cfg.Preprocess.VoiceProfileQualifyMs)

	v.SetDefault("concurrency.stt_in_flight_cap", cfg.Concurrency.STTInFlightCap)
	v.SetDefault("concurrency.tts_in_flight_cap", cfg.Concurrency.TTSInFlightCap)
	v.SetDefault("concurrency.webhook_workers_per_process", cfg.Concurrency.WebhookWorkersPerProc)
	v.SetDefault("concurrency.stt_queue_depth_cap", cfg.Concurrency.STTQueueDepthCap)
	v.SetDefault("concurrency.acquire_wait_timeout", cfg.Concurrency.AcquireWaitTimeout)
	v.SetDefault("concurrency.cancellation_grace", cfg.Concurrency.CancellationGrace)

	v.SetDefault("webhook.queue_cap", cfg.Webhook.QueueCap)
	v.SetDefault("webhook.max_attempts", cfg.Webhook.MaxAttempts)
	v.SetDefault("webhook.sentiment_alert_window", cfg.Webhook.SentimentAlertWindow)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)
	v.SetDefault("storage.object_bucket", cfg.Storage.ObjectBucket)
	v.SetDefault("storage.write_retry_window", cfg.Storage.WriteRetryWindow)

	v.SetDefault("auth.admin_secret", cfg.Auth.AdminSecret)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("auth.handshake_secret", cfg.Auth.HandshakeSecret)
	v.SetDefault("auth.handshake_token_ttl", cfg.Auth.HandshakeTokenTTL)

	v.SetDefault("vad.sample_rate_hz", cfg.VAD.SampleRateHz)
	v.SetDefault("vad.frame_duration_ms", cfg.VAD.FrameDurationMs)
	v.SetDefault("vad.prosody_window_ms", cfg.VAD.ProsodyWindowMs)
	v.SetDefault("vad.vad_threshold", cfg.VAD.VADThreshold)

	v.SetDefault("stt.base_url", cfg.STT.BaseURL)

	v.SetDefault("dialogue.base_url", cfg.Dialogue.BaseURL)
	v.SetDefault("dialogue.max_context_turns", cfg.Dialogue.MaxContextTurns)
	v.SetDefault("dialogue.min_chunk_words", cfg.Dialogue.MinChunkWords)

	v.SetDefault("tts.base_url", cfg.TTS.BaseURL)
	v.SetDefault("tts.first_byte_target_ms", cfg.TTS.FirstByteTargetMs)
	v.SetDefault("tts.recovery_window_ms", cfg.TTS.RecoveryWindowMs)

	v.SetDefault("session.redis_key_ttl", cfg.Session.RedisKeyTTL)

	v.SetDefault("batch.poll_interval", cfg.Batch.PollInterval)
	v.SetDefault("batch.batch_size", cfg.Batch.BatchSize)
}
