package handler

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/auth"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

var validate = validator.New()

// AdminHandler serves the admin-secret-gated endpoints that provision
// Organizations and their ApiTokens (spec.md §6: POST /api/admin/orgs,
// POST /api/admin/tokens, POST /api/admin/tokens/{id}/rotate).
type AdminHandler struct {
	orgs   repository.OrganizationRepository
	tokens *auth.TokenService
}

// NewAdminHandler builds an AdminHandler over the Organization repository
// and the TokenService issuing/rotating ApiTokens.
func NewAdminHandler(orgs repository.OrganizationRepository, tokens *auth.TokenService) *AdminHandler {
	return &AdminHandler{orgs: orgs, tokens: tokens}
}

// SetupAdminRoutes registers the admin routes onto router, which the caller
// has already gated with AdminAuthMiddleware.
func (h *AdminHandler) SetupAdminRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrg).Methods(http.MethodPost)
	router.HandleFunc("/tokens", h.CreateToken).Methods(http.MethodPost)
	router.HandleFunc("/tokens/{id}/rotate", h.RotateToken).Methods(http.MethodPost)
}

func (h *AdminHandler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.MaxAgents == 0 && req.MaxConcurrentCalls == 0 {
		req.MaxAgents, req.MaxConcurrentCalls = domain.PlanLimits(req.Plan)
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.Validation(err.Error()))
		return
	}

	org := &domain.Organization{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Plan:               req.Plan,
		MaxAgents:          req.MaxAgents,
		MaxConcurrentCalls: req.MaxConcurrentCalls,
		Active:             true,
	}
	if err := h.orgs.Create(r.Context(), org); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (h *AdminHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.Validation(err.Error()))
		return
	}
	if _, err := h.orgs.GetByID(r.Context(), req.OrgID); err != nil {
		writeError(w, err)
		return
	}

	issued, err := h.tokens.Issue(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

func (h *AdminHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		OrgID string `json:"org_id" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.Validation(err.Error()))
		return
	}

	issued, err := h.tokens.Rotate(r.Context(), req.OrgID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}
