// internal/app/features/health/routes.go
package health

import (
	"github.com/dalemusser/coachhub/internal/app/system/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Routes returns a subrouter that serves the health endpoints.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Serve) // this will be mounted under /health
	return r
}

// MetricsRoutes serves the Prometheus exposition for g (mounted under /metrics).
func MetricsRoutes(g prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Method("GET", "/", metrics.Handler(g))
	return r
}
