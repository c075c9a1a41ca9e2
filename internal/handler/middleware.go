package handler

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/apperr"
	"github.com/astra-cc/orchestrator/internal/auth"
	"github.com/astra-cc/orchestrator/internal/domain"
	"github.com/astra-cc/orchestrator/pkg/logger"
)

// LoggingMiddleware logs HTTP requests for API endpoints.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Base().Info("api request",
			zap.String("method", r.Method),
			zap.String("path", r.RequestURI),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// GlobalLoggingMiddleware logs every HTTP request, API or not.
func GlobalLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Base().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.RequestURI),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// ValidationMiddleware rejects POST/PUT/PATCH bodies with a Content-Type
// other than application/json.
func ValidationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying ResponseWriter so the bridge websocket
// upgrade (which hijacks the connection) still works behind LoggingMiddleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("handler: underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

// CORSMiddleware adds CORS headers to every request.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Webhook-Signature")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminAuthMiddleware gates /api/admin routes behind the shared admin
// secret, sent as X-API-Key (spec.md §4.14/§6), checked in constant time by
// auth.CheckAdminSecret.
func AdminAuthMiddleware(adminSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")
			if !auth.CheckAdminSecret(adminSecret, provided) {
				logger.Base().Warn("admin auth rejected", zap.String("remote_addr", r.RemoteAddr))
				writeError(w, apperr.Unauthorized("missing or invalid admin secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerAuthMiddleware gates /api/v1 routes behind a client bearer token
// (spec.md §4.14/§6), resolved via auth.TokenService.Authenticate and
// attached to the request context for downstream scope checks and org
// scoping.
func BearerAuthMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				writeError(w, apperr.Unauthorized("missing bearer token"))
				return
			}
			tok, err := tokens.Authenticate(r.Context(), raw)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withToken(r.Context(), tok)))
		})
	}
}

// RequireScope wraps a handler, rejecting requests whose authenticated
// token (placed in context by BearerAuthMiddleware) lacks want.
func RequireScope(want domain.Scope, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := tokenFromContext(r.Context())
		if err := auth.RequireScope(tok, want); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
