// Package shutdown implements the process-wide graceful shutdown
// coordinator: it traps SIGTERM/SIGINT, flips a flag every polling loop
// observes, runs registered cleanup callbacks serially under a total time
// budget, and returns an error from Run if that budget is exceeded.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Coordinator tracks shutdown state and in-flight fan-out work so that no
// background goroutine outlives the process without being waited on.
type Coordinator struct {
	logger  *slog.Logger
	budget  time.Duration
	mu      sync.Mutex
	flag    bool
	done    chan struct{}
	cleanup []func(context.Context) error
	wg      sync.WaitGroup
}

// New creates a Coordinator with the given total cleanup budget.
func New(logger *slog.Logger, budget time.Duration) *Coordinator {
	return &Coordinator{
		logger: logger,
		budget: budget,
		done:   make(chan struct{}),
	}
}

// Listen traps SIGTERM/SIGINT and begins shutdown when either arrives.
// Blocks until ctx is cancelled or a signal is received; intended to be
// run with `go`.
func (c *Coordinator) Listen(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		c.logger.Info("shutdown signal received", "signal", sig.String())
		c.Trigger()
	case <-ctx.Done():
	}
}

// Trigger flips the shutdown flag. Idempotent.
func (c *Coordinator) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flag {
		return
	}
	c.flag = true
	close(c.done)
}

// ShuttingDown reports whether shutdown has been requested. Polling loops
// check this before starting the next unit of work.
func (c *Coordinator) ShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flag
}

// Done returns a channel closed when shutdown is triggered, suitable for
// select alongside a poll-interval timer.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// RegisterCleanup adds a callback invoked, in registration order, during
// Run.
func (c *Coordinator) RegisterCleanup(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup = append(c.cleanup, fn)
}

// Track wraps a fire-and-forget goroutine so Run waits for it before
// returning, preventing orphaned background work across shutdown.
func (c *Coordinator) Track(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Run blocks until shutdown is triggered, then executes cleanup callbacks
// serially against a bounded context. Returns an error (and the caller
// should exit non-zero) if the budget is exceeded.
func (c *Coordinator) Run(ctx context.Context) error {
	<-c.done

	cleanupCtx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-cleanupCtx.Done():
		c.logger.Error("graceful shutdown timeout exceeded waiting for in-flight work")
		return cleanupCtx.Err()
	}

	c.mu.Lock()
	callbacks := append([]func(context.Context) error(nil), c.cleanup...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		if cleanupCtx.Err() != nil {
			c.logger.Error("graceful shutdown timeout exceeded during cleanup")
			return cleanupCtx.Err()
		}
		if err := fn(cleanupCtx); err != nil {
			c.logger.Error("cleanup callback failed", "error", err)
		}
	}
	return nil
}
