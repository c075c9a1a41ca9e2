package domain

import "time"

// CallEvent is an append-only structured log row keyed by Conversation.
type CallEvent struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CallID      string    `json:"call_id" gorm:"type:varchar(36);not null;index"`
	OrgID       string    `json:"org_id" gorm:"type:varchar(36);not null;index"`
	Stage       string    `json:"stage" gorm:"type:varchar(64);not null"`
	InputDigest string    `json:"input_digest,omitempty" gorm:"type:varchar(64)"`
	OutputDigest string   `json:"output_digest,omitempty" gorm:"type:varchar(64)"`
	LatencyMs   int64     `json:"latency_ms"`
	ModelID     string    `json:"model_id,omitempty" gorm:"type:varchar(128)"`
	Parameters  JSONB     `json:"parameters,omitempty" gorm:"type:jsonb"`
	Level       string    `json:"level" gorm:"type:varchar(16);default:'info'"` // info|degraded|error
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (CallEvent) TableName() string { return "call_events" }
