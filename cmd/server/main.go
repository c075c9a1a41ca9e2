package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/astra-cc/orchestrator/internal/auth"
	"github.com/astra-cc/orchestrator/internal/config"
	"github.com/astra-cc/orchestrator/internal/core/event"
	"github.com/astra-cc/orchestrator/internal/core/session"
	"github.com/astra-cc/orchestrator/internal/handler"
	"github.com/astra-cc/orchestrator/internal/metrics"
	"github.com/astra-cc/orchestrator/internal/pipeline"
	"github.com/astra-cc/orchestrator/internal/repository"
	"github.com/astra-cc/orchestrator/internal/storage"
	"github.com/astra-cc/orchestrator/internal/webhook"
	"github.com/astra-cc/orchestrator/pkg/logger"
	"github.com/astra-cc/orchestrator/pkg/objectstore"
	"github.com/astra-cc/orchestrator/pkg/redis"
	"github.com/gorilla/mux"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("info: .env file not found or skipped: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if _, err := logger.Init(cfg.LogEnv); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	repos, err := repository.NewRepositoryManager(repository.DatabaseConfig{DSN: cfg.DatabaseDSN})
	if err != nil {
		logger.Base().Fatal("repository: connect", zap.Error(err))
	}
	defer repos.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceName: "astra-cc-orchestrator"})
	if err != nil {
		logger.Base().Fatal("metrics: init provider", zap.Error(err))
	}
	defer shutdownMetrics(context.Background())
	instruments := metrics.Default()
	recorder := metrics.NewRecorder(repos.CallEvents(), repos.Turns(), repos.Calls(), instruments)

	tokens := auth.NewTokenService(repos.ApiTokens())
	dispatcher := webhook.New(cfg.Webhook, cfg.Concurrency, repos.Webhooks(), repos.WebhookDeliveries(), instruments)
	go dispatcher.Run(ctx, cfg.Batch.BatchSize)

	var mirror *session.Mirror
	if redisSvc, err := newRedisService(cfg); err != nil {
		logger.Base().Warn("redis: connect, continuing without cross-process session mirror", zap.Error(err))
	} else {
		mirror = session.NewMirror(redisSvc, uuid.NewString())
	}

	var obj storage.ObjectPutter
	if cfg.Storage.Backend != "local" {
		objClient, err := objectstore.New(ctx, cfg.Storage.ObjectBucket)
		if err != nil {
			logger.Base().Fatal("objectstore: open client", zap.Error(err))
		}
		defer objClient.Close()
		obj = objClient
	}

	bus := event.NewEventBus()
	defer bus.Close()
	pipe := pipeline.New(cfg, repos, bus, mirror, obj, dispatcher, recorder)

	router := mux.NewRouter()
	handlerManager := handler.NewHandlerManager(cfg, repos, tokens, dispatcher, pipe)
	handlerManager.SetupAllRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Base().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Base().Fatal("server: listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Base().Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Base().Error("server: graceful shutdown", zap.Error(err))
	}
}

// newRedisService dials cfg.RedisAddr ("host:port"), splitting it the way
// pkg/redis.Config wants its fields.
func newRedisService(cfg config.Config) (*redis.Service, error) {
	host, port, err := net.SplitHostPort(cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("parse redis_addr %q: %w", cfg.RedisAddr, err)
	}
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
