package domain

import "time"

// ApiToken is a bearer credential of shape cc_<prefix8>_<secret>. Only
// TokenHash is ever persisted; the raw secret is surfaced once, at creation.
type ApiToken struct {
	ID           string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrgID        string     `json:"org_id" gorm:"type:varchar(36);not null;index"`
	TokenPrefix  string     `json:"token_prefix" gorm:"type:varchar(8);not null;uniqueIndex"`
	TokenHash    string     `json:"-" gorm:"type:varchar(64);not null"`
	Scopes       ScopeSet   `json:"scopes" gorm:"type:jsonb"`
	ExpiresAt    time.Time  `json:"expires_at" gorm:"not null"`
	Active       bool       `json:"active" gorm:"not null;default:true"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

func (ApiToken) TableName() string { return "api_tokens" }

// DefaultTokenTTL is the expiry window applied at creation/rotation (spec.md §4.14).
const DefaultTokenTTL = 90 * 24 * time.Hour

// CreateTokenRequest is the admin request to mint a new ApiToken for an org.
type CreateTokenRequest struct {
	OrgID  string   `json:"org_id" validate:"required"`
	Scopes []Scope  `json:"scopes" validate:"required,min=1"`
}

// IssuedToken is returned exactly once, at creation/rotation time, carrying
// the raw secret alongside the persisted record.
type IssuedToken struct {
	Token    *ApiToken `json:"token"`
	RawValue string    `json:"raw_value"`
}
