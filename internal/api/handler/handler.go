// Package handler provides the HTTP handlers for the admin/ops surface:
// health, DLQ inspection, and router stats. Notification delivery and
// anomaly validation never go through HTTP — this package exists for
// operators, not end users.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clduab11/pricehawk/internal/api/respond"
	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/db"
	"github.com/clduab11/pricehawk/internal/obs"
	"github.com/clduab11/pricehawk/internal/router"
)

// Handler holds the shared dependencies for every admin endpoint.
type Handler struct {
	pool   *db.Pool
	dlq    *obs.DLQInspector
	router *router.Router
	cfg    *config.Config
}

// New creates a Handler with shared dependencies.
func New(pool *db.Pool, dlq *obs.DLQInspector, rt *router.Router, cfg *config.Config) *Handler {
	return &Handler{pool: pool, dlq: dlq, router: rt, cfg: cfg}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "pricehawk",
		"version": "1.0.0",
		"status":  "running",
	})
}

// HealthCheck returns basic liveness status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RouterStats returns the weighted model router's per-model snapshot.
func (h *Handler) RouterStats(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.router.AllStats(h.router.ModelIDs()))
}

// DLQSize reports the entry count of a stream's dead-letter queue.
func (h *Handler) DLQSize(w http.ResponseWriter, r *http.Request) {
	stream := chi.URLParam(r, "stream")
	n, err := h.dlq.Size(r.Context(), stream)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "DLQ_SIZE_FAILED", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"stream": stream, "size": n})
}

// DLQPeek returns up to `limit` entries from the head of a dead-letter
// queue, default 10.
func (h *Handler) DLQPeek(w http.ResponseWriter, r *http.Request) {
	stream := chi.URLParam(r, "stream")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.dlq.Peek(r.Context(), stream, limit)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "DLQ_PEEK_FAILED", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, entries)
}
