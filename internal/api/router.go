// Package api provides the HTTP API for ClearSkies.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/clearskies/clearskies/internal/api/handler"
	"github.com/clearskies/clearskies/internal/api/middleware"
	"github.com/clearskies/clearskies/internal/api/models"
	"github.com/clearskies/clearskies/internal/auth"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version            string
	BuildTime          string
	Logger             zerolog.Logger
	RequireTLS         bool
	CORSOrigins        []string
	RateLimits         middleware.RateLimits
	Metrics            *middleware.Metrics
	AuthService        *auth.Service
	Dashboard          handler.DashboardService
	FeatureFlagService *featureflags.Service
	Registry           *resilience.Registry
	Subsystems         map[string]handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(cfg.CORSOrigins)) // Before auth so preflights succeed
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.JSONBody(middleware.DefaultMaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		problem := models.NewNotFound(middleware.GetRequestID(req.Context()), "Endpoint not found")
		problem.Instance = req.URL.Path
		problem.Write(w)
	})

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Subsystems: cfg.Subsystems,
		Registry:   cfg.Registry,
		Flags:      cfg.FeatureFlagService,
	})
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	dashboardHandler := handler.NewDashboardHandler(cfg.Dashboard, cfg.Logger)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.AuthService)

	limits := cfg.RateLimits.WithDefaults()
	authRateLimit := middleware.LimitByIP(limits.Token)
	expensiveRateLimit := middleware.LimitByCaller(limits.Dashboard)
	standardRateLimit := middleware.LimitByCaller(limits.Sections)
	adminRateLimit := middleware.LimitByIP(limits.Admin)

	// Full dashboard - fans out to every source and the language model
	r.With(authMiddleware, expensiveRateLimit).Post("/dashboard", dashboardHandler.Dashboard)

	r.Route("/api", func(r chi.Router) {
		// Public source health report
		r.Get("/health", dashboardHandler.Health)

		// Section endpoints (authenticated)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)
			r.Post("/air-quality/current", dashboardHandler.Current)
			r.Post("/forecast", dashboardHandler.Forecast)
			r.Post("/alerts", dashboardHandler.Alerts)
			r.Post("/historical", dashboardHandler.Historical)
			r.Get("/personas", dashboardHandler.Personas)
		})

		// Device tokens are issued to API key holders only
		r.With(authRateLimit, authMiddleware, middleware.RequireAPIKey).
			Post("/auth/device-token", authHandler.IssueDeviceToken)
	})

	// Ops endpoints
	r.Route("/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
	})

	// Admin endpoints (API key only)
	r.Route("/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAPIKey)
		r.Use(adminRateLimit)

		// Feature flags management
		r.Route("/feature-flags", func(r chi.Router) {
			r.Get("/", featureFlagsHandler.ListFeatureFlags)
			r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
			r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
		})

		// Device management
		r.Route("/devices/{deviceId}", func(r chi.Router) {
			r.Get("/", authHandler.GetDevice)
			r.Delete("/", authHandler.RevokeDevice)
		})
	})

	return r
}
