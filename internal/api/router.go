// Package api exposes HTTP handlers for the insights service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/YoussfAh/X-sub010/internal/auth"
	"github.com/YoussfAh/X-sub010/internal/domain"
)

// RouterConfig bundles what NewRouter needs.
type RouterConfig struct {
	Service        *domain.Service
	Auth           auth.Config
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// NewRouter wires middleware and routes.
func NewRouter(cfg RouterConfig) http.Handler {
	h := NewHandler(cfg.Service, cfg.Logger)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(cfg.Logger),
		middleware.Recoverer,
		cors(cfg.AllowedOrigins),
		auth.Authenticate(cfg.Auth),
	)

	r.Get("/healthz", healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/insights", func(r chi.Router) {
		r.Get("/user-data", h.userData)
		r.Post("/analyze", h.analyze)
		r.Get("/analyses", h.listAnalyses)
		r.Get("/usage", h.usage)
	})
	r.Get("/v1/users/{userID}/feature-flags", h.featureFlags)
	r.Patch("/v1/users/{userID}/feature-flags", h.updateFeatureFlags)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, string(domain.KindNotFound), "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	return r
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
