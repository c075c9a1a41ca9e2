// Package auth implements Tenancy & Auth (C15): bearer ApiToken issuance
// and validation, admin-secret gating, and scope checks (spec.md §4.14).
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

const tokenPrefixLen = 8

// TokenService issues, rotates, and validates bearer ApiTokens of shape
// cc_<prefix8>_<secret> (spec.md §4.14). Only the SHA-256 hash of the full
// raw token is ever persisted; the raw value is returned exactly once, at
// issuance or rotation.
type TokenService struct {
	tokens repository.ApiTokenRepository
}

// NewTokenService builds a TokenService over the ApiToken repository.
func NewTokenService(tokens repository.ApiTokenRepository) *TokenService {
	return &TokenService{tokens: tokens}
}

// Issue mints a new bearer token for an Organization with the requested
// scopes, valid for domain.DefaultTokenTTL.
func (s *TokenService) Issue(ctx context.Context, req domain.CreateTokenRequest) (*domain.IssuedToken, error) {
	prefix, secret, err := generateTokenParts()
	if err != nil {
		return nil, apperr.DependencyFailure("generate token", err)
	}
	raw := fmt.Sprintf("cc_%s_%s", prefix, secret)

	tok := &domain.ApiToken{
		ID:          uuid.NewString(),
		OrgID:       req.OrgID,
		TokenPrefix: prefix,
		TokenHash:   hashToken(raw),
		Scopes:      domain.ScopeSet(req.Scopes),
		ExpiresAt:   time.Now().Add(domain.DefaultTokenTTL),
		Active:      true,
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return nil, err
	}
	return &domain.IssuedToken{Token: tok, RawValue: raw}, nil
}

// Rotate revokes an existing token and issues a replacement carrying the
// same Organization and scopes (spec.md §4.14: "POST
// /api/admin/tokens/{id}/rotate").
func (s *TokenService) Rotate(ctx context.Context, orgID, id string) (*domain.IssuedToken, error) {
	existing, err := s.find(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, orgID, id); err != nil {
		return nil, err
	}
	return s.Issue(ctx, domain.CreateTokenRequest{OrgID: orgID, Scopes: existing.Scopes})
}

func (s *TokenService) find(ctx context.Context, orgID, id string) (*domain.ApiToken, error) {
	toks, err := s.tokens.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, t := range toks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, apperr.NotFound("api token not found")
}

// Authenticate validates a raw bearer token's shape, hashes it, and
// resolves it to its ApiToken row, rejecting expired or revoked tokens
// (spec.md §4.14). LastUsedAt is touched best-effort; a failure there never
// fails the request.
func (s *TokenService) Authenticate(ctx context.Context, raw string) (*domain.ApiToken, error) {
	prefix, ok := tokenPrefixOf(raw)
	if !ok {
		return nil, apperr.Unauthorized("malformed bearer token")
	}

	tok, err := s.tokens.GetByHash(ctx, hashToken(raw))
	if err != nil {
		return nil, err
	}
	if tok.TokenPrefix != prefix {
		return nil, apperr.Unauthorized("token prefix mismatch")
	}
	if time.Now().After(tok.ExpiresAt) {
		return nil, apperr.Unauthorized("token expired")
	}

	_ = s.tokens.TouchLastUsed(ctx, tok.ID)
	return tok, nil
}

// RequireScope returns apperr.Forbidden if tok does not carry want.
func RequireScope(tok *domain.ApiToken, want domain.Scope) error {
	if !tok.Scopes.Has(want) {
		return apperr.Forbidden(fmt.Sprintf("missing required scope %q", want))
	}
	return nil
}

// tokenPrefixOf extracts the 8-character prefix from a raw bearer token of
// shape cc_<prefix8>_<secret>.
func tokenPrefixOf(raw string) (string, bool) {
	parts := strings.SplitN(raw, "_", 3)
	if len(parts) != 3 || parts[0] != "cc" || len(parts[1]) != tokenPrefixLen {
		return "", false
	}
	return parts[1], true
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateTokenParts() (prefix, secret string, err error) {
	prefixBytes := make([]byte, tokenPrefixLen/2)
	if _, err = rand.Read(prefixBytes); err != nil {
		return "", "", err
	}
	secretBytes := make([]byte, 24)
	if _, err = rand.Read(secretBytes); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(prefixBytes), hex.EncodeToString(secretBytes), nil
}

// CheckAdminSecret compares provided against the configured admin secret in
// constant time, failing closed when no secret is configured (spec.md
// §4.14: admin endpoints gated by a shared secret, header X-API-Key).
func CheckAdminSecret(configured, provided string) bool {
	if configured == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(provided)) == 1
}
