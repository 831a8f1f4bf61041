package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"healthetl/internal/config"
	apperrors "healthetl/internal/errors"
	"healthetl/internal/infrastructure"
	"healthetl/internal/middleware"
)

// RouterDeps collects what the admin API serves. Metrics and WebSocket are
// optional.
type RouterDeps struct {
	Server      config.ServerConfig
	SyncTimeout time.Duration
	Runs        RunServiceInterface
	Health      HealthServiceInterface
	Metrics     http.Handler
	WebSocket   http.Handler
	Tracer      trace.Tracer
	Business    *infrastructure.BusinessMetrics
	Logger      *slog.Logger
}

// NewRouter builds the admin API router
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apperrors.NewErrorHandler(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.NewOTelMiddleware(deps.Tracer, deps.Business).Handler)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	if deps.Server.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(deps.Server.RateLimit.RPS, deps.Server.RateLimit.Burst, logger).Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	if deps.WebSocket != nil {
		r.Handle("/ws", deps.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			if deps.Server.ReadTimeout > 0 {
				r.Use(middleware.Timeout(deps.Server.ReadTimeout, logger))
			}
			r.Use(chimiddleware.NoCache)

			health := NewHealthHandler(deps.Health, logger)
			r.Get("/health", health.HealthCheck)
			r.Get("/health/live", health.LivenessCheck)

			if deps.Metrics != nil {
				r.Handle("/metrics", deps.Metrics)
			}
		})

		// POST ?wait=true may outlive the read timeout; RunsHandler bounds it
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.Mount("/runs", NewRunsHandler(deps.Runs, deps.SyncTimeout, logger).Routes())
		})
	})

	return r
}
