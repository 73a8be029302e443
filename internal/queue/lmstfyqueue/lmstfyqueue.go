// Package lmstfyqueue implements the Delay Queue adapter contract on top
// of lmstfy: delayed job submission with dedup on a caller-supplied unique
// id, and a bounded-concurrency consume loop.
package lmstfyqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lmstfy "github.com/bitleak/lmstfy/client"
)

// defaultTTL bounds how long an undelivered job may sit in lmstfy before
// it is dropped; dispatch jobs are meaningless once their tier window has
// long passed.
const defaultTTL = 7 * 24 * 3600

// defaultTries is lmstfy's own retry budget, independent of and in
// addition to the Stream Consumer Framework's retry budget — a job body
// that panics its handler gets requeued by lmstfy itself.
const defaultTries = 3

// Handler processes one delayed job payload. A non-nil error causes
// lmstfy to requeue the job rather than ack it.
type Handler func(ctx context.Context, payload []byte) error

// Queue wraps an lmstfy client as the Delay Queue adapter.
type Queue struct {
	cli    *lmstfy.LmstfyClient
	logger *slog.Logger
	seen   sync.Map // unique_id -> struct{}, in-process dedup hint only
}

// New dials an lmstfy client for the given host/port/namespace/token.
func New(host string, port int, namespace, token string, logger *slog.Logger) (*Queue, error) {
	cli := lmstfy.NewLmstfyClient(host, port, namespace, token)
	return &Queue{cli: cli, logger: logger}, nil
}

// Add submits payload to queue name, delayed by delayMS. uniqueID dedups
// equivalent jobs within the queue's retention window — lmstfy itself has
// no native unique-id concept, so the adapter short-circuits on a
// KV-style in-process hint and relies on the caller's own KV dedup (see
// dispatch's notify.glitch.{id} key) as the real source of truth.
func (q *Queue) Add(ctx context.Context, name string, payload any, delayMS int64, uniqueID string) error {
	if uniqueID != "" {
		if _, loaded := q.seen.LoadOrStore(uniqueID, struct{}{}); loaded {
			q.logger.Debug("delay queue dedup hit", "queue", name, "unique_id", uniqueID)
			return nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	delaySec := uint32(delayMS / 1000)
	jobID, err := q.cli.Publish(name, body, defaultTTL, defaultTries, delaySec)
	if err != nil {
		if uniqueID != "" {
			q.seen.Delete(uniqueID)
		}
		return fmt.Errorf("publish %s: %w", name, err)
	}
	q.logger.Debug("delay queue job published", "queue", name, "job_id", jobID, "delay_ms", delayMS)
	return nil
}

// Consume runs a long-lived loop with the given concurrency, dispatching
// each received job to handler and acking on success. Blocks until ctx is
// cancelled.
func (q *Queue) Consume(ctx context.Context, name string, concurrency int, handler Handler) {
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.consumeLoop(ctx, name, worker, handler)
		}(i)
	}
	wg.Wait()
}

func (q *Queue) consumeLoop(ctx context.Context, name string, worker int, handler Handler) {
	const (
		pollTimeoutSec  = 10
		ttrSec          = 60
		minErrorBackoff = time.Second
		maxErrorBackoff = 30 * time.Second
	)
	backoff := minErrorBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := q.cli.Consume(name, pollTimeoutSec, ttrSec)
		if err != nil {
			q.logger.Warn("delay queue consume error", "queue", name, "worker", worker, "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxErrorBackoff)
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = minErrorBackoff
		if job == nil {
			continue
		}

		if err := handler(ctx, job.Data); err != nil {
			q.logger.Warn("delay queue job handler failed", "queue", name, "job_id", job.ID, "error", err)
			continue
		}
		if err := q.cli.Ack(name, job.ID); err != nil {
			q.logger.Warn("delay queue ack failed", "queue", name, "job_id", job.ID, "error", err)
		}
	}
}
