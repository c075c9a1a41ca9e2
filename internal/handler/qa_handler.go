package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/internal/repository"
)

// QAHandler serves GET /api/v1/qa/criteria and GET|POST
// /api/v1/qa/evaluations (spec.md §6), backed by the QACriterion/QAEvaluation
// pair added to fill spec.md's Data Model gap (see DESIGN.md).
type QAHandler struct {
	qa repository.QARepository
}

func NewQAHandler(qa repository.QARepository) *QAHandler {
	return &QAHandler{qa: qa}
}

func (h *QAHandler) SetupQARoutes(router *mux.Router) {
	router.HandleFunc("/qa/criteria", RequireScope(domain.ScopeQARead, h.ListCriteria)).Methods(http.MethodGet)
	router.HandleFunc("/qa/evaluations", RequireScope(domain.ScopeQARead, h.ListEvaluations)).Methods(http.MethodGet)
	router.HandleFunc("/qa/evaluations", RequireScope(domain.ScopeQAWrite, h.CreateEvaluation)).Methods(http.MethodPost)
}

func (h *QAHandler) ListCriteria(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	criteria, err := h.qa.ListCriteria(r.Context(), orgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, criteria)
}

func (h *QAHandler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	orgID := tokenFromContext(r.Context()).OrgID
	callID := r.URL.Query().Get("call_id")
	evals, err := h.qa.ListEvaluations(r.Context(), orgID, callID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evals)
}

func (h *QAHandler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateQAEvaluationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, apperr.Validation(err.Error()))
		return
	}

	eval := &domain.QAEvaluation{
		ID:          uuid.NewString(),
		OrgID:       tokenFromContext(r.Context()).OrgID,
		CallID:      req.CallID,
		EvaluatorID: req.EvaluatorID,
		Scores:      req.Scores,
		Notes:       req.Notes,
	}
	eval.OverallScore = averageScore(req.Scores)

	if err := h.qa.CreateEvaluation(r.Context(), eval); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eval)
}

// averageScore computes the unweighted mean of a scores map, used as
// OverallScore when criteria weights are not supplied in the request.
func averageScore(scores domain.JSONB) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, v := range scores {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
