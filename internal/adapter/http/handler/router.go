package handler

import (
	"storefront-payments/internal/adapter/http/middleware"
	redisStore "storefront-payments/internal/adapter/storage/redis"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/telemetry"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WebhookSvc     ports.WebhookService
	CheckoutSvc    ports.CheckoutService
	ReconcileSvc   ports.ReconciliationService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	SentryHub      *sentry.Hub        // nil = log-only reporting
	Metrics        *telemetry.Metrics
	Tracer         trace.Tracer // nil = no request spans
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.SentryHub(deps.SentryHub))
	r.Use(middleware.Recovery(deps.Logger))
	if deps.Tracer != nil {
		r.Use(middleware.Tracing(deps.Tracer, deps.Metrics))
	}
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// rl returns the group's rate limiter, or a no-op without a store.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- Gateway callbacks (authenticated by signature) ---
	webhookHandler := NewWebhookHandler(deps.WebhookSvc, deps.Logger)
	r.POST("/api/webhooks/chapa", webhookHandler.Chapa)

	v1 := r.Group("/api/v1")

	// --- Public storefront routes ---
	checkoutHandler := NewCheckoutHandler(deps.CheckoutSvc)
	v1.POST("/payments/initiate", rl("payments_initiate"), checkoutHandler.Initiate)

	// --- JWT-authenticated operator routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	orderHandler := NewOrderHandler(deps.ReconcileSvc)
	orders := v1.Group("/orders", jwtAuth)
	{
		orders.GET("/:id", rl("orders"), orderHandler.GetOrder)
		orders.POST("/:id/reconcile", rl("orders_reconcile"), orderHandler.Reconcile)
	}

	return r
}
