package domain

import "time"

// Call (Conversation) is the unit of a phone call.
type Call struct {
	ID        string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID     string     `json:"org_id" gorm:"type:varchar(36);not null;index"`
	AgentID   string     `json:"agent_id" gorm:"type:varchar(36);not null;index"`
	CallerID  string     `json:"caller_id" gorm:"type:varchar(255);not null"`
	StartedAt time.Time  `json:"started_at" gorm:"not null"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    CallStatus `json:"status" gorm:"type:varchar(32);not null;default:'active'"`
	Metadata  JSONB      `json:"metadata" gorm:"type:jsonb"`
}

func (Call) TableName() string { return "calls" }

// CallSummary is returned by GET /api/v1/calls/metrics/summary.
type CallSummary struct {
	TotalCalls          int64   `json:"total_calls"`
	AvgTotalLatencyMs    float64 `json:"avg_total_latency_ms"`
	AvgSTTLatencyMs      float64 `json:"avg_stt_latency_ms"`
	AvgLLMLatencyMs      float64 `json:"avg_llm_latency_ms"`
	AvgTTSLatencyMs      float64 `json:"avg_tts_latency_ms"`
	InterruptionRate     float64 `json:"interruption_rate"`
	AvgSentimentScore    float64 `json:"avg_sentiment_score"`
}
