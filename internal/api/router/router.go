package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/involy/involy/internal/api/handlers"
	"github.com/involy/involy/internal/api/middleware"
	"github.com/involy/involy/internal/config"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/pkg/metrics"
)

// Handlers groups the route handlers
type Handlers struct {
	Health      *handlers.HealthHandler
	Auth        *handlers.AuthHandler
	Entitlement *handlers.EntitlementHandler
}

// New builds the HTTP router for the verification boundary
func New(cfg *config.Config, log *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.DefaultCORS(cfg.Server.FrontendURL))
	r.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	r.Use(metrics.Middleware)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/health", h.Health.Healthz)
		r.Get("/healthz", h.Health.Healthz)
		r.Get("/readyz", h.Health.Readyz)
		r.Handle("/metrics", metrics.Handler())

		r.Post("/api/auth/verify", h.Auth.Verify)
		r.Get("/api/plans", h.Entitlement.ListPlans)
	})

	// Protected routes (require a session token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.Auth.TokenSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

		r.Get("/api/auth/me", h.Auth.Me)
		r.Get("/api/entitlements", h.Entitlement.GetEntitlements)
		r.Get("/api/entitlements/can-create", h.Entitlement.CanCreate)
	})

	return r
}
