package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/middleware"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/pkg/response"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

// NewRouter assembles the API server: registry routes under /v1, plus
// /healthz and /metrics.
func NewRouter(store registry.Store, logger *slog.Logger, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(corsOrigins))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.Metrics()).Mount("/v1", NewRegistryHandler(store, logger).Routes())

	return r
}
