package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/Allot/internal/config"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/pipeline"
	"github.com/MikeSquared-Agency/Allot/internal/store"
)

func NewRouter(p *pipeline.Pipeline, s store.Store, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(cfg.Server.RateLimit))

	allocations := NewAllocationsHandler(p, s, cfg.Selection, cfg.Server)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/allocations", allocations.Create)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.Server.AdminToken))
			r.Get("/allocations", allocations.List)
			r.Get("/allocations/{id}", allocations.Get)
		})
	})

	return r
}

func NewMetricsRouter(rec *metrics.Recorder) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", rec.Handler())
	return r
}
