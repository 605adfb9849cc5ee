package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	httphandlers "ledger/internal/interfaces/http"
	"ledger/internal/shared/config"
	"ledger/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.Tracing)

	// Health check
	r.Get("/health", deps.HealthHandler.HandleHealth)

	// Protected routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		r.Use(middleware.Auth(deps.JWT))
		httphandlers.RegisterRoutes(r, deps.AccountHandler, deps.TransactionHandler, deps.BillHandler)
	})

	var handler http.Handler = r
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		logger.Info("TLS security middleware enabled (HSTS)")
	}

	return handler
}
