package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/astra-cc/orchestrator/internal/repository"
)

// MeHandler serves GET /api/v1/me, identifying the calling Organization for
// whichever ApiToken authenticated the request.
type MeHandler struct {
	orgs repository.OrganizationRepository
}

func NewMeHandler(orgs repository.OrganizationRepository) *MeHandler {
	return &MeHandler{orgs: orgs}
}

func (h *MeHandler) SetupMeRoutes(router *mux.Router) {
	router.HandleFunc("/me", h.Me).Methods(http.MethodGet)
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	tok := tokenFromContext(r.Context())
	org, err := h.orgs.GetByID(r.Context(), tok.OrgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"organization": org,
		"token_id":     tok.ID,
		"scopes":       tok.Scopes,
	})
}
