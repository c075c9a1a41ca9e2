package domain

import "time"

// Organization is the tenant root. Every Agent, Call, Turn, Recording and
// ApiToken is reachable only via its Organization id.
type Organization struct {
	ID                string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name              string    `json:"name" gorm:"type:varchar(255);not null"`
	Plan              Plan      `json:"plan" gorm:"type:varchar(32);not null;default:'basic'"`
	MaxAgents         int       `json:"max_agents" gorm:"not null;default:1"`
	MaxConcurrentCalls int      `json:"max_concurrent_calls" gorm:"not null;default:1"`
	Active            bool      `json:"active" gorm:"not null;default:true"`
	Settings          JSONB     `json:"settings" gorm:"type:jsonb"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Organization) TableName() string { return "organizations" }

// CreateOrganizationRequest is the admin request to create an Organization.
type CreateOrganizationRequest struct {
	Name               string `json:"name" validate:"required"`
	Plan               Plan   `json:"plan" validate:"required,oneof=basic professional enterprise"`
	MaxAgents          int    `json:"max_agents" validate:"required,min=1"`
	MaxConcurrentCalls int    `json:"max_concurrent_calls" validate:"required,min=1"`
}

// UpdateOrganizationRequest patches plan/limits/active flag. Name is immutable
// per spec.md §3 ("immutable except plan/limits/flags").
type UpdateOrganizationRequest struct {
	Plan               *Plan `json:"plan,omitempty" validate:"omitempty,oneof=basic professional enterprise"`
	MaxAgents          *int  `json:"max_agents,omitempty" validate:"omitempty,min=1"`
	MaxConcurrentCalls *int  `json:"max_concurrent_calls,omitempty" validate:"omitempty,min=1"`
	Active             *bool `json:"active,omitempty"`
}

// PlanLimits returns the default limits for a plan tier, used when an admin
// does not explicitly override max_agents/max_concurrent_calls at creation.
func PlanLimits(p Plan) (maxAgents, maxConcurrentCalls int) {
	switch p {
	case PlanEnterprise:
		return 500, 1000
	case PlanProfessional:
		return 50, 100
	default:
		return 5, 10
	}
}
