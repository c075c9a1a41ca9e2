package domain

// Direction is the audio direction of a Recording.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	// DirectionMixed marks a Recording that interleaves both directions of
	// one call rather than isolating a single leg.
	DirectionMixed Direction = "mixed"
)

// ProcessingMode records whether a Recording's Metadata reflects the online
// (in-call) correction pipeline or the offline batch-worker enrichment.
type ProcessingMode string

const (
	ProcessingModeOnline  ProcessingMode = "online"
	ProcessingModeOffline ProcessingMode = "offline"
)

// AudioDescriptor describes the stored audio blob.
type AudioDescriptor struct {
	Format         string  `json:"format"`
	SampleRate     int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	FileSizeBytes  int64   `json:"file_size_bytes"`
	ChecksumSHA256 string  `json:"checksum_sha256"`
}

// TranscriptionBlock is the transcription section of the canonical Metadata.
type TranscriptionBlock struct {
	Text              string       `json:"text"`
	CorrectedText     string       `json:"corrected_text"`
	Language          string       `json:"language"`
	Confidence        float64      `json:"confidence"`
	CorrectionsMade   []Correction `json:"corrections_made,omitempty"`
	CorrectionMethod  string       `json:"correction_method"` // online|offline
}

// SentimentBlock is the sentiment section of the canonical Metadata.
type SentimentBlock struct {
	Label         SentimentLabel `json:"label"`
	Score         float64        `json:"score"`
	Confidence    float64        `json:"confidence"`
	EmotionalTone string         `json:"emotional_tone"`
}

// IntentBlock holds offline-worker intent classification (§4.12 point 3).
type IntentBlock struct {
	PrimaryIntent    string   `json:"primary_intent"`
	SecondaryIntents []string `json:"secondary_intents,omitempty"`
	Confidence       float64  `json:"confidence"`
}

// EntitiesBlock holds offline-worker entity extraction (§4.12 point 3).
type EntitiesBlock struct {
	AccountNumbers []string `json:"account_numbers,omitempty"`
	Amounts        []string `json:"amounts,omitempty"`
	Emails         []string `json:"emails,omitempty"`
	Phones         []string `json:"phones,omitempty"`
	Dates          []string `json:"dates,omitempty"`
}

// TopicsBlock holds offline-worker topic/keyword extraction (§4.12 point 3).
type TopicsBlock struct {
	Topics          []string `json:"topics,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	CoherenceScore  float64  `json:"coherence_score"`
}

// TurnSummary is the slim per-turn row embedded in the canonical Metadata.
type TurnSummary struct {
	Role          TurnRole `json:"role"`
	Text          string   `json:"text"`
	StartedAt     string   `json:"started_at"`
	EndedAt       string   `json:"ended_at"`
	STTConfidence float64  `json:"stt_confidence"`
	WasInterrupted bool    `json:"was_interrupted"`
}

// ProcessingMetrics is the Metadata's averaged per-stage latency block.
type ProcessingMetrics struct {
	STTMsAvg     float64 `json:"stt_ms_avg"`
	LLMMsAvg     float64 `json:"llm_ms_avg"`
	TTSMsAvg     float64 `json:"tts_ms_avg"`
	DenoiseMsAvg float64 `json:"denoise_ms_avg"`
	TotalMsAvg   float64 `json:"total_ms_avg"`
}

// Metadata is the canonical document described in spec.md §6, serialized
// alongside the audio blob and stored at
// recordings/{conv_id}/{rec_id}_metadata.json.
type Metadata struct {
	RecordingID    string              `json:"recording_id"`
	ConversationID string              `json:"conversation_id"`
	OrgID          string              `json:"org_id"`
	Timestamp      string              `json:"timestamp"`
	Direction      Direction           `json:"direction"`
	Audio          AudioDescriptor     `json:"audio"`
	Transcription  TranscriptionBlock  `json:"transcription"`
	Sentiment      SentimentBlock      `json:"sentiment"`
	Intent         *IntentBlock        `json:"intent,omitempty"`
	Entities       *EntitiesBlock      `json:"entities,omitempty"`
	Topics         *TopicsBlock        `json:"topics,omitempty"`
	Turns          []TurnSummary       `json:"turns"`
	ProcessingMetrics ProcessingMetrics `json:"processing_metrics"`
	Processed     bool                `json:"processed"`
	ProcessingMode ProcessingMode     `json:"processing_mode"`
}

// Recording is an audio artifact plus its canonical Metadata. Every Recording
// has exactly one Metadata; writing Metadata and audio is atomic-per-artifact.
type Recording struct {
	ID             string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:varchar(36);not null;index"`
	OrgID          string         `json:"org_id" gorm:"type:varchar(36);not null;index"`
	Direction      Direction      `json:"direction" gorm:"type:varchar(16)"`
	AudioPath      string         `json:"audio_path" gorm:"type:text"`
	MetadataPath   string         `json:"metadata_path" gorm:"type:text"`
	ChecksumSHA256 string         `json:"checksum_sha256" gorm:"type:varchar(64)"`
	Processed      bool           `json:"processed" gorm:"default:false"`
	ProcessingMode ProcessingMode `json:"processing_mode" gorm:"type:varchar(16);default:'online'"`
	Metadata       Metadata       `json:"metadata" gorm:"serializer:json"`
}

func (Recording) TableName() string { return "recordings" }
