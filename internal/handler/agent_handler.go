package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

// AgentHandler serves GET|PUT /api/v1/agents[...] (spec.md §6). Create is a
// supplement: a tenant's token must be able to provision its own Agents
// somewhere, and CreateAgentRequest already exists for exactly this.
type AgentHandler struct {
	agents repository.AgentRepository
}

func NewAgentHandler(agents repository.AgentRepository) *AgentHandler {
	return &AgentHandler{agents: agents}
}

func (h *AgentHandler) SetupAgentRoutes(router *mux.Router) {
	router.HandleFunc("/agents", RequireScope(domain.ScopeAgentRead, h.List)).Methods(http.MethodGet)
	router.HandleFunc("/agents", RequireScope(domain.ScopeAgentWrite, h.Create)).Methods(http.MethodPost)
	router.HandleFunc("/agents/{id}", RequireScope(domain.ScopeAgentRead, h.Get)).Methods(http.MethodGet)
	router.HandleFunc("/agents/{id}", RequireScope(domain.ScopeAgentWrite, h.Update)).Methods(http.MethodPut)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	agents, err := h.agents.ListByOrg(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	id := mux.Vars(r)["id"]
	agent, err := h.agents.GetByID(r.Context(), orgID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.OrgID = tokenFromContext(r.Context()).OrgID
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.Validation(err.Error()))
		return
	}

	agent, err := h.agents.Create(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	id := mux.Vars(r)["id"]
	var req domain.UpdateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	agent, err := h.agents.Update(r.Context(), orgID, id, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
