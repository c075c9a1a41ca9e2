package handler

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/auth"
	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/metrics"
	"github.com/astra-cc/orchestrator/internal/pipeline"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/internal/webhook"
	"github.com/astra-cc/orchestrator/pkg/logger"
)

// HandlerManager composes every HTTP handler and mounts them behind the
// right middleware chain, the way the teacher's HandlerManager does for its
// resource handlers (internal/handler/routes.go), generalized from one
// flat API tree to the admin/client/webhook split spec.md §6 names.
type HandlerManager struct {
	cfg        config.Config
	repos      repository.RepositoryManager
	tokens     *auth.TokenService
	dispatcher *webhook.Dispatcher
	pipe       *pipeline.Pipeline
}

// NewHandlerManager wires every per-resource handler over the already
// constructed RepositoryManager, TokenService, webhook Dispatcher and
// Pipeline. pipe may be nil in tests that never mount the bridge routes.
func NewHandlerManager(cfg config.Config, repos repository.RepositoryManager, tokens *auth.TokenService, dispatcher *webhook.Dispatcher, pipe *pipeline.Pipeline) *HandlerManager {
	return &HandlerManager{cfg: cfg, repos: repos, tokens: tokens, dispatcher: dispatcher, pipe: pipe}
}

// SetupAllRoutes registers every route group onto router with global
// middleware applied.
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	hm.SetupAdminRoutes(router)
	hm.SetupClientRoutes(router)
	hm.SetupWebhookRoutes(router)
	hm.SetupMetricsRoute(router)

	logger.Base().Info("all application routes registered")
}

// SetupAdminRoutes mounts /api/admin behind the shared admin secret.
func (hm *HandlerManager) SetupAdminRoutes(router *mux.Router) {
	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(LoggingMiddleware)
	adminRouter.Use(ValidationMiddleware)
	adminRouter.Use(AdminAuthMiddleware(hm.cfg.Auth.AdminSecret))

	admin := NewAdminHandler(hm.repos.Organizations(), hm.tokens)
	admin.SetupAdminRoutes(adminRouter)

	logger.Base().Info("admin routes registered", zap.String("prefix", "/api/admin"))
}

// SetupClientRoutes mounts /api/v1 behind a per-tenant bearer token.
func (hm *HandlerManager) SetupClientRoutes(router *mux.Router) {
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(LoggingMiddleware)
	apiRouter.Use(ValidationMiddleware)
	apiRouter.Use(BearerAuthMiddleware(hm.tokens))

	NewMeHandler(hm.repos.Organizations()).SetupMeRoutes(apiRouter)
	NewAgentHandler(hm.repos.Agents()).SetupAgentRoutes(apiRouter)
	NewCallHandler(hm.repos.Calls()).SetupCallRoutes(apiRouter)
	NewQAHandler(hm.repos.QA()).SetupQARoutes(apiRouter)
	if hm.pipe != nil {
		NewBridgeHandler(hm.pipe).SetupBridgeRoutes(apiRouter)
	}

	logger.Base().Info("client routes registered", zap.String("prefix", "/api/v1"))
}

// SetupWebhookRoutes mounts /webhooks behind the same bearer token as the
// client API, since a tenant's webhook subscriptions are its own resource.
func (hm *HandlerManager) SetupWebhookRoutes(router *mux.Router) {
	whRouter := router.PathPrefix("/webhooks").Subrouter()
	whRouter.Use(LoggingMiddleware)
	whRouter.Use(ValidationMiddleware)
	whRouter.Use(BearerAuthMiddleware(hm.tokens))

	NewWebhookHandler(hm.repos.Webhooks(), hm.dispatcher).SetupWebhookRoutes(whRouter)

	logger.Base().Info("webhook routes registered", zap.String("prefix", "/webhooks"))
}

// SetupMetricsRoute mounts the Prometheus scrape endpoint (C16).
func (hm *HandlerManager) SetupMetricsRoute(router *mux.Router) {
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
}
