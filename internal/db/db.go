// Package db provides a pgxpool-based connection pool with prepared
// statement registration and health checking, used by internal/store for
// the subscriber directory and glitch analytics cold storage.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clduab11/pricehawk/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers every statement the subscriber
// directory and analytics layer use. Prepared statements eliminate parse
// overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		"health_check": "SELECT 1",

		"active_subscribers_by_tier": `
			SELECT id, tier, min_profit_margin, categories, retailers,
			       min_price, max_price, enabled_channels
			FROM subscribers
			WHERE active = true AND tier = ANY($1)`,

		"insert_glitch": `
			INSERT INTO glitches (
				id, anomaly_id, title, retailer_id, category, current_price,
				original_price, is_glitch, confidence, reasoning, glitch_type,
				profit_margin, validated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (id) DO NOTHING`,

		"mark_anomaly_notified": `
			UPDATE anomalies SET status = 'notified', notified_at = NOW()
			WHERE id = $1 AND status <> 'notified'`,

		"mark_anomaly_status": `
			UPDATE anomalies SET status = $2 WHERE id = $1`,

		"insert_anomaly": `
			INSERT INTO anomalies (id, title, retailer_id, category, status, detected_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO NOTHING`,

		"purge_old_anomalies": `
			DELETE FROM anomalies
			WHERE status IN ('notified', 'rejected')
			  AND detected_at < NOW() - $1::interval`,

		"purge_old_glitches": `
			DELETE FROM glitches
			WHERE validated_at < NOW() - $1::interval`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
