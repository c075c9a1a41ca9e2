package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/astra-cc/orchestrator/internal/auth"
	"github.com/astra-cc/orchestrator/internal/domain"
)

func newAdminTestRouter(orgs *fakeOrgRepo, tokens *auth.TokenService) *mux.Router {
	router := mux.NewRouter()
	NewAdminHandler(orgs, tokens).SetupAdminRoutes(router)
	return router
}

func TestAdminHandlerCreateOrgFillsPlanDefaults(t *testing.T) {
	orgs := newFakeOrgRepo()
	router := newAdminTestRouter(orgs, auth.NewTokenService(newFakeApiTokenRepo()))

	body := `{"name":"Acme","plan":"professional"}`
	req := httptest.NewRequest(http.MethodPost, "/orgs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"max_agents":50`) {
		t.Errorf("default plan limits not filled in: %s", w.Body.String())
	}
}

func TestAdminHandlerCreateOrgRejectsMissingName(t *testing.T) {
	router := newAdminTestRouter(newFakeOrgRepo(), auth.NewTokenService(newFakeApiTokenRepo()))

	body := `{"plan":"basic"}`
	req := httptest.NewRequest(http.MethodPost, "/orgs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestAdminHandlerCreateTokenRejectsUnknownOrg(t *testing.T) {
	router := newAdminTestRouter(newFakeOrgRepo(), auth.NewTokenService(newFakeApiTokenRepo()))

	body := `{"org_id":"org-missing","scopes":["agent:read"]}`
	req := httptest.NewRequest(http.MethodPost, "/tokens", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusNotFound, w.Body.String())
	}
}

func TestAdminHandlerCreateTokenSucceeds(t *testing.T) {
	orgs := newFakeOrgRepo(&domain.Organization{ID: "org-1", Name: "Acme", Plan: domain.PlanBasic})
	router := newAdminTestRouter(orgs, auth.NewTokenService(newFakeApiTokenRepo()))

	body := `{"org_id":"org-1","scopes":["agent:read","calls:write"]}`
	req := httptest.NewRequest(http.MethodPost, "/tokens", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "cc_") {
		t.Errorf("response missing raw token value: %s", w.Body.String())
	}
}

func TestAdminHandlerRotateTokenSucceeds(t *testing.T) {
	tokenRepo := newFakeApiTokenRepo()
	tokens := auth.NewTokenService(tokenRepo)
	issued, err := tokens.Issue(httptest.NewRequest(http.MethodPost, "/", nil).Context(), domain.CreateTokenRequest{
		OrgID:  "org-1",
		Scopes: []domain.Scope{domain.ScopeAgentRead},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	router := newAdminTestRouter(newFakeOrgRepo(&domain.Organization{ID: "org-1"}), tokens)

	body := `{"org_id":"org-1"}`
	req := httptest.NewRequest(http.MethodPost, "/tokens/"+issued.Token.ID+"/rotate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
