package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-cc/orchestrator/internal/domain"
)

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.ApiToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.ApiToken)}
}

func (r *fakeTokenRepo) Create(ctx context.Context, tok *domain.ApiToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tok.ID] = tok
	return nil
}

func (r *fakeTokenRepo) GetByHash(ctx context.Context, hash string) (*domain.ApiToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash && t.Active {
			return t, nil
		}
	}
	return nil, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

func (r *fakeTokenRepo) ListByOrg(ctx context.Context, orgID string) ([]*domain.ApiToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ApiToken
	for _, t := range r.tokens {
		if t.OrgID == orgID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTokenRepo) Revoke(ctx context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.OrgID != orgID {
		return assertErr{}
	}
	t.Active = false
	return nil
}

func (r *fakeTokenRepo) TouchLastUsed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		now := time.Now()
		t.LastUsedAt = &now
	}
	return nil
}

func TestIssueThenAuthenticateRoundTrips(t *testing.T) {
	repo := newFakeTokenRepo()
	svc := NewTokenService(repo)

	issued, err := svc.Issue(context.Background(), domain.CreateTokenRequest{
		OrgID:  "org-1",
		Scopes: []domain.Scope{domain.ScopeCallsRead},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.RawValue)

	tok, err := svc.Authenticate(context.Background(), issued.RawValue)
	require.NoError(t, err)
	assert.Equal(t, "org-1", tok.OrgID)
}

func TestAuthenticateRejectsMalformedToken(t *testing.T) {
	svc := NewTokenService(newFakeTokenRepo())
	_, err := svc.Authenticate(context.Background(), "not-a-valid-token")
	assert.Error(t, err)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	repo := newFakeTokenRepo()
	svc := NewTokenService(repo)
	issued, err := svc.Issue(context.Background(), domain.CreateTokenRequest{OrgID: "org-1", Scopes: []domain.Scope{domain.ScopeCallsRead}})
	require.NoError(t, err)
	issued.Token.ExpiresAt = time.Now().Add(-time.Minute)

	_, err = svc.Authenticate(context.Background(), issued.RawValue)
	assert.Error(t, err)
}

func TestRotateRevokesOldAndIssuesNewWithSameScopes(t *testing.T) {
	repo := newFakeTokenRepo()
	svc := NewTokenService(repo)
	issued, err := svc.Issue(context.Background(), domain.CreateTokenRequest{OrgID: "org-1", Scopes: []domain.Scope{domain.ScopeAgentWrite}})
	require.NoError(t, err)

	rotated, err := svc.Rotate(context.Background(), "org-1", issued.Token.ID)
	require.NoError(t, err)
	assert.NotEqual(t, issued.RawValue, rotated.RawValue)
	assert.True(t, rotated.Token.Scopes.Has(domain.ScopeAgentWrite))
	assert.False(t, repo.tokens[issued.Token.ID].Active)

	_, err = svc.Authenticate(context.Background(), issued.RawValue)
	assert.Error(t, err)
}

func TestRequireScopeRejectsMissingScope(t *testing.T) {
	tok := &domain.ApiToken{Scopes: domain.ScopeSet{domain.ScopeCallsRead}}
	assert.NoError(t, RequireScope(tok, domain.ScopeCallsRead))
	assert.Error(t, RequireScope(tok, domain.ScopeCallsWrite))
}

func TestCheckAdminSecret(t *testing.T) {
	assert.True(t, CheckAdminSecret("topsecret", "topsecret"))
	assert.False(t, CheckAdminSecret("topsecret", "wrong"))
	assert.False(t, CheckAdminSecret("", "anything"))
}

func TestHandshakeTokenRoundTrip(t *testing.T) {
	signed, err := IssueHandshakeToken("hs-secret", "call-1", time.Minute)
	require.NoError(t, err)

	callID, err := ValidateHandshakeToken("hs-secret", signed)
	require.NoError(t, err)
	assert.Equal(t, "call-1", callID)
}

func TestHandshakeTokenRejectsWrongSecret(t *testing.T) {
	signed, err := IssueHandshakeToken("hs-secret", "call-1", time.Minute)
	require.NoError(t, err)

	_, err = ValidateHandshakeToken("other-secret", signed)
	assert.Error(t, err)
}

func TestHandshakeTokenRejectsExpired(t *testing.T) {
	signed, err := IssueHandshakeToken("hs-secret", "call-1", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateHandshakeToken("hs-secret", signed)
	assert.Error(t, err)
}
