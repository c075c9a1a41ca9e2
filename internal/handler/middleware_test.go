package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/astra-cc/orchestrator/internal/auth"
	"github.com/astra-cc/orchestrator/internal/domain"
)

func TestAdminAuthMiddlewareRejectsMissingKey(t *testing.T) {
	mw := AdminAuthMiddleware("supersecret")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/orgs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuthMiddlewareAllowsCorrectKey(t *testing.T) {
	mw := AdminAuthMiddleware("supersecret")
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/orgs", nil)
	req.Header.Set("X-API-Key", "supersecret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !called {
		t.Fatalf("status = %d, called = %v", w.Code, called)
	}
}

func TestBearerAuthMiddlewareAttachesToken(t *testing.T) {
	repo := newFakeApiTokenRepo()
	tokens := auth.NewTokenService(repo)
	issued, err := tokens.Issue(context.Background(), domain.CreateTokenRequest{OrgID: "org-1", Scopes: []domain.Scope{domain.ScopeAgentRead}})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var gotOrg string
	mw := BearerAuthMiddleware(tokens)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = tokenFromContext(r.Context()).OrgID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.RawValue)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotOrg != "org-1" {
		t.Errorf("org = %q, want org-1", gotOrg)
	}
}

func TestBearerAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	tokens := auth.NewTokenService(newFakeApiTokenRepo())
	mw := BearerAuthMiddleware(tokens)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRequireScopeRejectsMissingScope(t *testing.T) {
	repo := newFakeApiTokenRepo()
	tokens := auth.NewTokenService(repo)
	issued, err := tokens.Issue(context.Background(), domain.CreateTokenRequest{OrgID: "org-1", Scopes: []domain.Scope{domain.ScopeCallsRead}})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	handler := BearerAuthMiddleware(tokens)(http.HandlerFunc(RequireScope(domain.ScopeAgentWrite, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer "+issued.RawValue)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
