// Package api exposes the operator-facing admin surface: health checks,
// Prometheus scraping, the KV-mirrored metrics text endpoint, DLQ
// inspection, and router stats. It carries none of the domain's hot path
// — detection, validation, and dispatch run entirely off the stream
// consumers in cmd/pricehawk.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"

	"github.com/clduab11/pricehawk/internal/api/handler"
	"github.com/clduab11/pricehawk/internal/api/respond"
	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/db"
	"github.com/clduab11/pricehawk/internal/obs"
	"github.com/clduab11/pricehawk/internal/router"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// Deps bundles NewRouter's collaborators.
type Deps struct {
	Pool     *db.Pool
	DLQ      *obs.DLQInspector
	Router   *router.Router
	KV       streaming.KV
	Registry *prometheus.Registry
	Cfg      *config.Config
}

// NewRouter creates and configures the Chi router with all middleware and
// admin routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5))

	c := corslib.New(corslib.Options{
		AllowedOrigins:   d.Cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	if d.Cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(d.Cfg.RateLimitRequests, d.Cfg.RateLimitWindow))
	}

	h := handler.New(d.Pool, d.DLQ, d.Router, d.Cfg)

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/router/stats", h.RouterStats)
		r.Get("/dlq/{stream}/size", h.DLQSize)
		r.Get("/dlq/{stream}/peek", h.DLQPeek)
		r.Get("/metrics.txt", metricsTextHandler(d.KV))
	})

	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	return r
}

func metricsTextHandler(kv streaming.KV) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := obs.MetricsText(r.Context(), kv)
		if err != nil {
			respond.WriteError(w, http.StatusInternalServerError, "METRICS_TEXT_FAILED", err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(text))
	}
}
