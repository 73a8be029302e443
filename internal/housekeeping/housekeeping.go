// Package housekeeping runs periodic background maintenance as Go
// tickers — retention purges and router-stats logging — rather than a
// separate cron process, since the service is already long-running.
package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/clduab11/pricehawk/internal/db"
	"github.com/clduab11/pricehawk/internal/router"
)

// Config controls housekeeping task intervals. Zero duration disables a task.
type Config struct {
	PurgeInterval      time.Duration // Retention purge of terminal anomalies/glitches
	AnomalyRetention   time.Duration // Keep notified/rejected anomalies this long
	GlitchRetention    time.Duration // Keep validated glitches this long
	StatsLogInterval   time.Duration // Periodic router-stats log line
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		PurgeInterval:    1 * time.Hour,
		AnomalyRetention: 30 * 24 * time.Hour,
		GlitchRetention:  90 * 24 * time.Hour,
		StatsLogInterval: 10 * time.Minute,
	}
}

// Start launches all configured housekeeping tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, pool *db.Pool, rt *router.Router, cfg Config, logger *slog.Logger) {
	logger.Info("housekeeping tickers started",
		"purge", cfg.PurgeInterval, "stats_log", cfg.StatsLogInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.PurgeInterval > 0 {
		t := time.NewTicker(cfg.PurgeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { purge(ctx, pool, cfg, logger) })
	}

	if cfg.StatsLogInterval > 0 && rt != nil {
		t := time.NewTicker(cfg.StatsLogInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { logRouterStats(rt, logger) })
	}

	<-ctx.Done()
	logger.Info("housekeeping tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// purge removes anomalies that reached a terminal status past retention,
// and glitches past their analytics retention window.
func purge(ctx context.Context, pool *db.Pool, cfg Config, logger *slog.Logger) {
	tag, err := pool.Exec(ctx, "purge_old_anomalies", cfg.AnomalyRetention.String())
	if err != nil {
		logger.Warn("purge: failed to purge old anomalies", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("purge: removed old anomalies", "count", tag.RowsAffected())
	}

	tag, err = pool.Exec(ctx, "purge_old_glitches", cfg.GlitchRetention.String())
	if err != nil {
		logger.Warn("purge: failed to purge old glitches", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("purge: removed old glitches", "count", tag.RowsAffected())
	}
}

func logRouterStats(rt *router.Router, logger *slog.Logger) {
	for _, s := range rt.AllStats(rt.ModelIDs()) {
		logger.Info("router stats",
			"model_id", s.ModelID, "weight", s.EffectiveWeight,
			"success", s.Success, "failure", s.Failure,
			"avg_latency_ms", s.AvgLatencyMS, "circuit", s.CircuitState)
	}
}
