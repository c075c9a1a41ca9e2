package domain

import "time"

// Agent is a virtual conversational agent owned by exactly one Organization.
type Agent struct {
	ID                string      `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID             string      `json:"org_id" gorm:"type:varchar(36);not null;index"`
	Name              string      `json:"name" gorm:"type:varchar(255);not null"`
	Status            AgentStatus `json:"status" gorm:"type:varchar(32);not null;default:'idle'"`
	VoiceProfileID    *string     `json:"voice_profile_id,omitempty" gorm:"type:varchar(36)"`
	ContextProfileID  *string     `json:"context_profile_id,omitempty" gorm:"type:varchar(36)"`
	RuntimeConfig     JSONB       `json:"runtime_config" gorm:"type:jsonb"`
	CreatedAt         time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Agent) TableName() string { return "agents" }

// CreateAgentRequest is the request to create a new Agent under an Organization.
type CreateAgentRequest struct {
	OrgID            string `json:"org_id" validate:"required"`
	Name             string `json:"name" validate:"required"`
	ContextProfileID string `json:"context_profile_id,omitempty"`
	RuntimeConfig    JSONB  `json:"runtime_config,omitempty"`
}

// UpdateAgentRequest patches mutable Agent fields.
type UpdateAgentRequest struct {
	Name             *string `json:"name,omitempty"`
	ContextProfileID *string `json:"context_profile_id,omitempty"`
	RuntimeConfig    *JSONB  `json:"runtime_config,omitempty"`
}

// ContextProfile holds the system prompt, tone and tool allowlist assigned to
// an Agent (spec.md §3 "assigned context profile"; modeled on the teacher's
// AgentConfigData/PromptConfigData, internal/domain/agent.go in the teacher repo).
type ContextProfile struct {
	ID                 string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID              string    `json:"org_id" gorm:"type:varchar(36);not null;index"`
	Name               string    `json:"name" gorm:"type:varchar(255);not null"`
	SystemPromptTmpl   string    `json:"system_prompt_template" gorm:"type:text"`
	Tone               string    `json:"tone" gorm:"type:varchar(64)"`
	Language           string    `json:"language" gorm:"type:varchar(16);default:'es'"`
	MaxContextTurns    int       `json:"max_context_turns" gorm:"default:10"`
	ToolAllowlist      JSONB     `json:"tool_allowlist" gorm:"type:jsonb"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ContextProfile) TableName() string { return "context_profiles" }
