// Package consumer implements the Stream Consumer Framework: it drives a
// handler against a named Bus stream with at-least-once semantics, bounded
// per-entry retries, and dead-letter routing, while cooperating with the
// shutdown coordinator.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clduab11/pricehawk/internal/corerr"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// Handler processes one stream entry. Errors should be classified with
// corerr so Run knows whether to retry, DLQ, or advance past a malformed
// payload.
type Handler func(ctx context.Context, entry streaming.Entry) error

// Config bounds one consumer's batch size, poll cadence, and retry budget.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 50, PollInterval: 2 * time.Second, MaxRetries: 5}
}

// Runner drives one handler against one (stream, group) pair.
type Runner struct {
	bus    streaming.Bus
	kv     streaming.KV
	logger *slog.Logger
}

// New creates a Runner over the given Bus and KV adapters.
func New(bus streaming.Bus, kv streaming.KV, logger *slog.Logger) *Runner {
	return &Runner{bus: bus, kv: kv, logger: logger}
}

// Run consumes stream under the cursor key scoped to group, invoking
// handler for each entry in order, until shutdownCh is closed. It never
// returns an error for ordinary handler failures — those are retried or
// DLQ'd in place; it only returns on a fatal Bus/KV error.
func (r *Runner) Run(ctx context.Context, stream, group string, handler Handler, cfg Config, shutdownCh <-chan struct{}) error {
	cursorKey := streaming.CursorKey(group + "." + stream)
	failures := make(map[string]int)

	r.logger.Info("stream consumer started", "stream", stream, "group", group)

	for {
		select {
		case <-shutdownCh:
			r.logger.Info("stream consumer stopped", "stream", stream, "group", group)
			return nil
		default:
		}

		cursor, ok, err := r.kv.Get(ctx, cursorKey)
		if err != nil {
			return fmt.Errorf("load cursor for %s: %w", stream, err)
		}
		if !ok {
			cursor = "0-0"
		}

		entries, err := r.bus.XRead(ctx, stream, cursor, cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		}

		if len(entries) == 0 {
			if !sleepOrShutdown(ctx, cfg.PollInterval, shutdownCh) {
				return nil
			}
			continue
		}

		for _, entry := range entries {
			select {
			case <-shutdownCh:
				r.logger.Info("stream consumer draining before shutdown", "stream", stream, "group", group)
				return nil
			default:
			}

			if err := r.processOne(ctx, stream, cursorKey, entry, handler, failures, cfg); err != nil {
				// Break out of the inner loop without advancing past
				// entry; it is re-read next iteration.
				break
			}
		}

		if !sleepOrShutdown(ctx, cfg.PollInterval, shutdownCh) {
			return nil
		}
	}
}

// processOne invokes handler for entry and applies the retry/DLQ policy.
// It returns an error only when the entry should block the batch (i.e.
// retries remain); a nil return means the cursor may advance.
func (r *Runner) processOne(ctx context.Context, stream, cursorKey string, entry streaming.Entry, handler Handler, failures map[string]int, cfg Config) error {
	err := handler(ctx, entry)
	if err == nil {
		delete(failures, entry.ID)
		if setErr := r.kv.Set(ctx, cursorKey, entry.ID, 0); setErr != nil {
			r.logger.Error("advance cursor failed", "stream", stream, "entry_id", entry.ID, "error", setErr)
		}
		return nil
	}

	if corerr.Is(err, corerr.KindMalformed) {
		r.logger.Warn("malformed payload, advancing past entry", "stream", stream, "entry_id", entry.ID, "error", err)
		delete(failures, entry.ID)
		if setErr := r.kv.Set(ctx, cursorKey, entry.ID, 0); setErr != nil {
			r.logger.Error("advance cursor failed", "stream", stream, "entry_id", entry.ID, "error", setErr)
		}
		return nil
	}

	failures[entry.ID]++
	if failures[entry.ID] < cfg.MaxRetries {
		r.logger.Warn("handler failed, will retry", "stream", stream, "entry_id", entry.ID, "attempt", failures[entry.ID], "error", err)
		return err
	}

	r.logger.Error("handler exhausted retries, routing to DLQ", "stream", stream, "entry_id", entry.ID, "error", err)
	if dlqErr := r.sendToDLQ(ctx, stream, entry, err); dlqErr != nil {
		r.logger.Error("dlq write failed", "stream", stream, "entry_id", entry.ID, "error", dlqErr)
	}
	delete(failures, entry.ID)
	if setErr := r.kv.Set(ctx, cursorKey, entry.ID, 0); setErr != nil {
		r.logger.Error("advance cursor failed", "stream", stream, "entry_id", entry.ID, "error", setErr)
	}
	return nil
}

func (r *Runner) sendToDLQ(ctx context.Context, stream string, entry streaming.Entry, cause error) error {
	payload := make(map[string]string, len(entry.Payload)+4)
	for k, v := range entry.Payload {
		payload[k] = v
	}
	payload["stream"] = stream
	payload["entry_id"] = entry.ID
	payload["error"] = cause.Error()
	payload["ts"] = time.Now().UTC().Format(time.RFC3339)

	_, err := r.bus.XAdd(ctx, streaming.DLQStream(stream), payload)
	return err
}

// sleepOrShutdown sleeps for d cooperatively, returning false if
// shutdownCh closes or ctx is cancelled before the sleep elapses.
func sleepOrShutdown(ctx context.Context, d time.Duration, shutdownCh <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-shutdownCh:
		return false
	case <-ctx.Done():
		return false
	}
}
