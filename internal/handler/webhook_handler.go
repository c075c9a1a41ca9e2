package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/internal/webhook"
)

// WebhookHandler serves POST/GET /webhooks, DELETE /webhooks/{id}, PATCH
// /webhooks/{id}/toggle and POST /webhooks/test/{id} (spec.md §6). Scopes
// are not named for webhook management in spec.md's closed scope set, so
// subscription management is gated on calls:read/calls:write, the
// resource a webhook's events are about (documented in DESIGN.md).
type WebhookHandler struct {
	webhooks   repository.WebhookRepository
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(webhooks repository.WebhookRepository, dispatcher *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, dispatcher: dispatcher}
}

// SetupWebhookRoutes registers routes relative to router, which the caller
// has already mounted at the /webhooks prefix.
func (h *WebhookHandler) SetupWebhookRoutes(router *mux.Router) {
	router.HandleFunc("", RequireScope(domain.ScopeCallsWrite, h.Create)).Methods(http.MethodPost)
	router.HandleFunc("", RequireScope(domain.ScopeCallsRead, h.List)).Methods(http.MethodGet)
	router.HandleFunc("/{id}", RequireScope(domain.ScopeCallsWrite, h.Delete)).Methods(http.MethodDelete)
	router.HandleFunc("/{id}/toggle", RequireScope(domain.ScopeCallsWrite, h.Toggle)).Methods(http.MethodPatch)
	router.HandleFunc("/test/{id}", RequireScope(domain.ScopeCallsWrite, h.Test)).Methods(http.MethodPost)
}

type createWebhookRequest struct {
	URL         string                    `json:"url" validate:"required,url"`
	Events      []domain.WebhookEventType `json:"events" validate:"required,min=1"`
	Description string                    `json:"description,omitempty"`
	Secret      string                    `json:"secret" validate:"required,min=8"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.Validation(err.Error()))
		return
	}

	wh := &domain.Webhook{
		ID:          uuid.NewString(),
		OrgID:       tokenFromContext(r.Context()).OrgID,
		URL:         req.URL,
		Events:      req.Events,
		Secret:      req.Secret,
		Description: req.Description,
		Active:      true,
	}
	if err := h.webhooks.Create(r.Context(), wh); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	var all []*domain.Webhook
	for _, event := range []domain.WebhookEventType{
		domain.WebhookEventCallStarted, domain.WebhookEventCallEnded,
		domain.WebhookEventTurnCompleted, domain.WebhookEventInterruption,
		domain.WebhookEventTransferRequested, domain.WebhookEventCallbackScheduled,
		domain.WebhookEventSentimentAlert, domain.WebhookEventError,
	} {
		subs, err := h.webhooks.ListSubscribedTo(r.Context(), orgID, event)
		if err != nil {
			writeError(w, err)
			return
		}
		all = append(all, dedupeWebhooks(all, subs)...)
	}
	writeJSON(w, http.StatusOK, all)
}

// dedupeWebhooks appends the subset of next not already present (by ID) in
// existing, since a webhook subscribed to several events would otherwise be
// listed once per event it is fanned out to ListSubscribedTo() by.
func dedupeWebhooks(existing, next []*domain.Webhook) []*domain.Webhook {
	seen := make(map[string]bool, len(existing))
	for _, wh := range existing {
		seen[wh.ID] = true
	}
	var fresh []*domain.Webhook
	for _, wh := range next {
		if !seen[wh.ID] {
			fresh = append(fresh, wh)
			seen[wh.ID] = true
		}
	}
	return fresh
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	id := mux.Vars(r)["id"]
	if err := h.webhooks.Delete(r.Context(), orgID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *WebhookHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	id := mux.Vars(r)["id"]
	wh, err := h.webhooks.Update(r.Context(), orgID, id, func(wh *domain.Webhook) error {
		wh.Active = !wh.Active
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	id := mux.Vars(r)["id"]
	wh, err := h.webhooks.GetByID(r.Context(), orgID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.dispatcher.Test(r.Context(), wh); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "test delivery attempted"})
}
