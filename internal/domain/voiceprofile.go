package domain

import "time"

// VoiceProfileDimension is the fixed embedding width produced by the
// target-speaker extraction service (spec.md §4.3).
const VoiceProfileDimension = 256

// VoiceProfile is a fixed-dimension speaker embedding, created at most once
// per Call from the first 3s of qualifying user speech. Read-only thereafter.
type VoiceProfile struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CallID    string    `json:"call_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	OrgID     string    `json:"org_id" gorm:"type:varchar(36);not null;index"`
	Embedding []float32 `json:"embedding" gorm:"serializer:json"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (VoiceProfile) TableName() string { return "voice_profiles" }
