package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Base().Error("handler: encode response", zap.Error(err))
	}
}

// writeError maps err to the closed taxonomy's HTTP status (spec.md §7) and
// writes a JSON body carrying only the Message, never the wrapped Cause.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	msg := "internal error"
	if errors.As(err, &appErr) {
		msg = appErr.Message
	} else {
		logger.Base().Error("handler: unclassified error", zap.Error(err))
	}
	writeJSON(w, apperr.HTTPStatus(apperr.KindOf(err)), map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}
