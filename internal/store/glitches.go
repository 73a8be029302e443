package store

import (
	"context"
	"fmt"

	"github.com/clduab11/pricehawk/internal/db"
	"github.com/clduab11/pricehawk/internal/domain"
)

// GlitchStore persists confirmed glitches and the parent anomaly lifecycle
// for analytics. Glitches are created by the AI Validator. Neither is kept
// indefinitely: internal/housekeeping deletes glitches and notified or
// rejected anomalies once they pass their retention windows.
type GlitchStore struct {
	pool *db.Pool
}

// NewGlitchStore builds a GlitchStore over pool.
func NewGlitchStore(pool *db.Pool) *GlitchStore {
	return &GlitchStore{pool: pool}
}

// InsertAnomaly records a newly detected anomaly, idempotent on id.
func (s *GlitchStore) InsertAnomaly(ctx context.Context, a domain.PricingAnomaly) error {
	_, err := s.pool.Exec(ctx, "insert_anomaly",
		a.ID, a.Product.Title, a.Product.RetailerID, a.Product.Category, string(a.Status), a.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

// InsertGlitch records a confirmed glitch for analytics, idempotent on id.
func (s *GlitchStore) InsertGlitch(ctx context.Context, g domain.ValidatedGlitch) error {
	_, err := s.pool.Exec(ctx, "insert_glitch",
		g.ID, g.AnomalyID, g.Product.Title, g.Product.RetailerID, g.Product.Category,
		g.Product.CurrentPrice, g.Product.OriginalPrice, g.IsGlitch, g.Confidence,
		g.Reasoning, string(g.GlitchType), g.ProfitMargin, g.ValidatedAt)
	if err != nil {
		return fmt.Errorf("insert glitch: %w", err)
	}
	return nil
}

// MarkAnomalyStatus transitions an anomaly to status. Anomaly status
// advances monotonically; callers are responsible for only invoking this
// with a forward transition.
func (s *GlitchStore) MarkAnomalyStatus(ctx context.Context, anomalyID string, status domain.AnomalyStatus) error {
	_, err := s.pool.Exec(ctx, "mark_anomaly_status", anomalyID, string(status))
	if err != nil {
		return fmt.Errorf("mark anomaly status: %w", err)
	}
	return nil
}

// MarkNotified idempotently transitions an anomaly to notified — the
// side effect of at least one channel succeeding for at least one user.
func (s *GlitchStore) MarkNotified(ctx context.Context, anomalyID string) error {
	_, err := s.pool.Exec(ctx, "mark_anomaly_notified", anomalyID)
	if err != nil {
		return fmt.Errorf("mark anomaly notified: %w", err)
	}
	return nil
}
