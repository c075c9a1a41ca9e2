package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

// CallHandler serves GET /api/v1/calls[...] and GET
// /api/v1/calls/metrics/summary (spec.md §6).
type CallHandler struct {
	calls repository.CallRepository
}

func NewCallHandler(calls repository.CallRepository) *CallHandler {
	return &CallHandler{calls: calls}
}

// SetupCallRoutes registers /calls routes. The summary route is registered
// first since gorilla/mux matches in registration order and "metrics" would
// otherwise be swallowed by the {id} route.
func (h *CallHandler) SetupCallRoutes(router *mux.Router) {
	router.HandleFunc("/calls/metrics/summary", RequireScope(domain.ScopeCallsRead, h.Summary)).Methods(http.MethodGet)
	router.HandleFunc("/calls", RequireScope(domain.ScopeCallsRead, h.List)).Methods(http.MethodGet)
	router.HandleFunc("/calls/{id}", RequireScope(domain.ScopeCallsRead, h.Get)).Methods(http.MethodGet)
}

func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	limit, offset := pagination(r)
	calls, err := h.calls.ListByOrg(r.Context(), orgID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	id := mux.Vars(r)["id"]
	call, err := h.calls.GetByID(r.Context(), orgID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// Summary serves GET /calls/metrics/summary?days=N, the days query
// parameter named in spec.md §6; the underlying Summary query does not yet
// window by day count, so days is accepted but currently scopes the whole
// Organization's history (documented as an Open Question in DESIGN.md).
func (h *CallHandler) Summary(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	summary, err := h.calls.Summary(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
