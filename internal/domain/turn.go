package domain

import "time"

// TurnRole identifies the speaker of a Turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// SentimentLabel is the fused sentiment classification of a Turn (C7).
type SentimentLabel string

const (
	SentimentPositive   SentimentLabel = "positive"
	SentimentNeutral    SentimentLabel = "neutral"
	SentimentFrustrated SentimentLabel = "frustrated"
	SentimentAngry      SentimentLabel = "angry"
	SentimentConfused   SentimentLabel = "confused"
)

// WordConfidence is a single transcribed word with its STT confidence and timing.
type WordConfidence struct {
	Word       string        `json:"word"`
	Confidence float64       `json:"confidence"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
}

// Correction records one online-corrector substitution applied to a Turn.
type Correction struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// StageLatencies holds the per-stage processing times for one Turn.
type StageLatencies struct {
	STTMs     *int64 `json:"stt_ms,omitempty"`
	LLMMs     *int64 `json:"llm_ms,omitempty"`
	TTSMs     *int64 `json:"tts_ms,omitempty"`
	DenoiseMs *int64 `json:"denoise_ms,omitempty"`
	TotalMs   int64  `json:"total_ms"`
}

// Turn is one speaker round, append-only within a Call.
type Turn struct {
	ID               string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	CallID           string          `json:"call_id" gorm:"type:varchar(36);not null;index"`
	OrgID            string          `json:"org_id" gorm:"type:varchar(36);not null;index"`
	Role             TurnRole        `json:"role" gorm:"type:varchar(16);not null"`
	Text             string          `json:"text" gorm:"type:text"`
	Words            []WordConfidence `json:"words,omitempty" gorm:"serializer:json"`
	StartedAt        time.Time       `json:"started_at" gorm:"not null"`
	EndedAt          time.Time       `json:"ended_at"`
	STTConfidence    float64         `json:"stt_confidence"`
	CorrectionsMade  []Correction    `json:"corrections_made,omitempty" gorm:"serializer:json"`
	SentimentLabel   SentimentLabel  `json:"sentiment_label,omitempty" gorm:"type:varchar(32)"`
	SentimentScore   float64         `json:"sentiment_score"`
	Latencies        StageLatencies  `json:"latencies" gorm:"serializer:json"`
	WasInterrupted   bool            `json:"was_interrupted" gorm:"default:false"`
}

func (Turn) TableName() string { return "turns" }

// NormalizeWhitespace collapses runs of whitespace to single spaces and trims
// the ends — used to compare a Turn's word concatenation against its Text
// (spec.md §3 invariant 4 / §8 first testable property).
func NormalizeWhitespace(s string) string {
	var b []byte
	prevSpace := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		isSpace := c == ' ' || c == '\t' || c == '\n' || c == '\r'
		if isSpace {
			if !prevSpace {
				b = append(b, ' ')
			}
			prevSpace = true
			continue
		}
		b = append(b, c)
		prevSpace = false
	}
	for len(b) > 0 && b[len(b)-1] == ' ' {
		b = b[:len(b)-1]
	}
	return string(b)
}
