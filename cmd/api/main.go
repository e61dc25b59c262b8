package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-payments/config"
	"storefront-payments/internal/adapter/gateway/chapa"
	httpHandler "storefront-payments/internal/adapter/http/handler"
	pgStorage "storefront-payments/internal/adapter/storage/postgres"
	redisStorage "storefront-payments/internal/adapter/storage/redis"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/service"
	"storefront-payments/internal/telemetry"
	"storefront-payments/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting storefront payments")

	ctx := context.Background()

	// Initialize telemetry
	tracing, err := telemetry.InitTracing(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}
	hub, err := telemetry.NewSentryHub(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Sentry")
	}
	reporter := telemetry.NewReporter(hub, logger.Component(log, "reporter"))
	metrics := telemetry.NewMetrics()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	orderRepo := pgStorage.NewOrderRepo(pool)
	productRepo := pgStorage.NewProductRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)

	// Initialize Redis stores
	checkoutCache := redisStorage.NewCheckoutCache(rdb)
	deliveryTracker := redisStorage.NewDeliveryTracker(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize payment gateway
	if cfg.Chapa.WebhookSecret == "" {
		log.Warn().Msg("chapa.webhook_secret is not set, every webhook will be rejected")
	}
	verifier := service.NewWebhookSignatureVerifier(
		cfg.Chapa.WebhookSecret, reporter, metrics, logger.Component(log, "signature"))
	gateway, err := chapa.NewClient(cfg.Chapa, nil, verifier, reporter, metrics, logger.Component(log, "chapa"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize payment gateway")
	}

	// Initialize operator auth
	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("auth.jwt_secret is not set")
	}
	tokenSvc := service.NewJWTTokenService(cfg.Auth.JWTSecret, cfg.Auth.Expiry, cfg.Auth.Issuer)

	// Initialize business services
	webhookSvc := service.NewWebhookService(
		orderRepo, gateway, deliveryTracker, reporter, metrics, logger.Component(log, "webhook"))
	checkoutSvc := service.NewCheckoutService(
		productRepo, orderRepo, gateway, checkoutCache, metrics, cfg.App, logger.Component(log, "checkout"))
	reconcileSvc := service.NewReconciliationService(
		orderRepo, gateway, metrics, logger.Component(log, "reconcile"))
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WebhookSvc:     webhookSvc,
		CheckoutSvc:    checkoutSvc,
		ReconcileSvc:   reconcileSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		AuditSvc:       auditSvc,
		SentryHub:      hub,
		Metrics:        metrics,
		Tracer:         tracing.Tracer,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}
	reporter.Flush(2 * time.Second)

	log.Info().Msg("Server exited")
}
