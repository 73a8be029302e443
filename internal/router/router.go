// Package router implements the Weighted Model Router: performance-aware
// model selection over a pool of LLM endpoints, with sliding-window
// circuit breakers, unicorn escalation to a premium pool, and automatic
// fallback when every circuit is open.
//
// Router state (performance counters, circuit breaker state) used to live
// in module-level mutable maps. Here it is encapsulated in a *Router
// instance, one lock per model cell, with snapshots written to KV after
// every outcome report. New does not read those snapshots back: a fresh
// Router starts with empty counters and closed circuits.
package router

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/clduab11/pricehawk/internal/domain"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// kvMirrorTTL is how long performance/circuit snapshots survive in KV, so
// stale entries for removed models eventually disappear.
const kvMirrorTTL = 24 * time.Hour

// consecutiveFailureThreshold is the fixed "N in a row" trip signal.
// windowFailureThreshold and circuitWindow are the configurable "N within
// the last window" trip signal (CIRCUIT_BREAKER_THRESHOLD,
// CIRCUIT_BREAKER_WINDOW_MS); the open→half-open delay reuses the same
// circuitWindow.
const consecutiveFailureThreshold = 5

const defaultWindowFailureThreshold = 3
const defaultCircuitWindow = 5 * time.Minute

// cell is one model's mutable state, independently locked so that
// concurrent outcome reports for different models never contend.
type cell struct {
	mu        sync.Mutex
	perf      domain.ModelPerformance
	circuit   domain.CircuitBreakerState
}

// Router selects models and tracks their outcomes.
type Router struct {
	logger *slog.Logger
	kv     streaming.KV

	modelsByID map[string]domain.ModelConfig
	cells      map[string]*cell

	standard      Pool
	sota          Pool
	standardTools Pool
	sotaTools     Pool

	enableSOTA bool

	windowFailureThreshold int
	circuitWindow          time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Router over the given immutable model table, loaded once at
// startup from a static table plus environment toggles. windowThreshold and
// window are CIRCUIT_BREAKER_THRESHOLD/CIRCUIT_BREAKER_WINDOW_MS; a
// zero/negative value falls back to the documented default of each.
func New(models []domain.ModelConfig, kv streaming.KV, enableSOTA bool, windowThreshold int, window time.Duration, logger *slog.Logger) *Router {
	standard, sota, standardTools, sotaTools := partitionPools(models)

	modelsByID := make(map[string]domain.ModelConfig, len(models))
	cells := make(map[string]*cell, len(models))
	for _, m := range models {
		modelsByID[m.ID] = m
		cells[m.ID] = &cell{circuit: domain.CircuitBreakerState{State: domain.CircuitClosed}}
	}

	if windowThreshold <= 0 {
		windowThreshold = defaultWindowFailureThreshold
	}
	if window <= 0 {
		window = defaultCircuitWindow
	}

	return &Router{
		logger:                 logger,
		kv:                     kv,
		modelsByID:             modelsByID,
		cells:                  cells,
		standard:               standard,
		sota:                   sota,
		standardTools:          standardTools,
		sotaTools:              sotaTools,
		enableSOTA:             enableSOTA,
		windowFailureThreshold: windowThreshold,
		circuitWindow:          window,
		rng:                    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ModelIDs returns every enabled model id, standard pool first then SOTA,
// for stats enumeration in a stable order.
func (r *Router) ModelIDs() []string {
	out := make([]string, 0, len(r.standard)+len(r.sota))
	out = append(out, r.standard...)
	out = append(out, r.sota...)
	return out
}

// IsUnicorn reports whether ctx warrants premium-pool escalation: at least
// two of discount≥80, confidence≥85, z_score≥4 must hold.
func IsUnicorn(ctx domain.UnicornContext) bool {
	signals := 0
	if ctx.Discount >= 80 {
		signals++
	}
	if ctx.Confidence >= 85 {
		signals++
	}
	if ctx.ZScore != nil && *ctx.ZScore >= 4 {
		signals++
	}
	return signals >= 2
}

// Select chooses a model for an ordinary (non-tool) request, applying
// unicorn escalation when enabled.
func (r *Router) Select(uctx domain.UnicornContext) (domain.ModelConfig, error) {
	r.ReapExpiredCircuits()
	return r.selectFrom(r.poolFor(uctx, false))
}

// SelectToolCapable chooses a model restricted to the tool-capable subset.
func (r *Router) SelectToolCapable(uctx domain.UnicornContext) (domain.ModelConfig, error) {
	r.ReapExpiredCircuits()
	return r.selectFrom(r.poolFor(uctx, true))
}

// poolFor resolves which pool a request should draw from: SOTA when
// ENABLE_SOTA_MODELS is set and the request is a unicorn, falling back to
// standard when the chosen pool is empty after enabled/circuit filtering.
func (r *Router) poolFor(uctx domain.UnicornContext, tools bool) Pool {
	standard, sota := r.standard, r.sota
	if tools {
		standard, sota = r.standardTools, r.sotaTools
	}
	if r.enableSOTA && IsUnicorn(uctx) && len(r.filterUsable(sota)) > 0 {
		return sota
	}
	return standard
}

// selectFrom implements the §4.2 selection algorithm against pool p.
func (r *Router) selectFrom(p Pool) (domain.ModelConfig, error) {
	usable := r.filterUsable(p)
	if len(usable) == 0 {
		return r.fallback(p)
	}

	weights := make([]int, len(usable))
	total := 0
	for i, id := range usable {
		w := r.effectiveWeight(id)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return r.modelsByID[usable[0]], nil
	}

	draw := r.randIntn(total)
	cumulative := 0
	for i, id := range usable {
		cumulative += weights[i]
		if draw < cumulative {
			return r.modelsByID[id], nil
		}
	}
	return r.modelsByID[usable[len(usable)-1]], nil
}

// filterUsable restricts p to models whose circuit is closed or half-open.
func (r *Router) filterUsable(p Pool) Pool {
	var out Pool
	for _, id := range p {
		c, ok := r.cells[id]
		if !ok {
			continue
		}
		c.mu.Lock()
		state := c.circuit.State
		c.mu.Unlock()
		if state != domain.CircuitOpen {
			out = append(out, id)
		}
	}
	return out
}

// fallback implements "P' empty": reset the oldest-opened circuit to
// half-open and return it, or the first enabled model if no circuits
// exist at all.
func (r *Router) fallback(p Pool) (domain.ModelConfig, error) {
	var oldestID string
	var oldestAt time.Time

	for _, id := range p {
		c, ok := r.cells[id]
		if !ok {
			continue
		}
		c.mu.Lock()
		if c.circuit.State == domain.CircuitOpen {
			if oldestID == "" || c.circuit.OpenedAt.Before(oldestAt) {
				oldestID = id
				oldestAt = c.circuit.OpenedAt
			}
		}
		c.mu.Unlock()
	}

	if oldestID != "" {
		c := r.cells[oldestID]
		c.mu.Lock()
		c.circuit.State = domain.CircuitHalfOpen
		c.mu.Unlock()
		r.mirrorCircuit(context.Background(), oldestID)
		r.logger.Warn("all circuits open, resetting oldest to half-open", "model", oldestID)
		return r.modelsByID[oldestID], nil
	}

	if len(p) > 0 {
		return r.modelsByID[p[0]], nil
	}
	return domain.ModelConfig{}, errNoModelsAvailable
}

func (r *Router) randIntn(n int) int {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Intn(n)
}

// RecordSuccess closes the model's circuit and resets its failure streak.
func (r *Router) RecordSuccess(modelID string, latency time.Duration) {
	c, ok := r.cells[modelID]
	if !ok {
		return
	}
	c.mu.Lock()
	c.perf.Success++
	c.perf.TotalLatencyMS += latency.Milliseconds()
	c.perf.LastUsed = time.Now()
	c.perf.ConsecutiveFailures = 0
	c.circuit.State = domain.CircuitClosed
	c.circuit.ErrorTimestamps = nil
	c.mu.Unlock()
	r.mirrorAll(context.Background(), modelID)
}

// RecordFailure increments the failure streak, pushes an error timestamp,
// and evaluates whether the circuit should open.
func (r *Router) RecordFailure(modelID string) {
	c, ok := r.cells[modelID]
	if !ok {
		return
	}
	c.mu.Lock()
	c.perf.Failure++
	c.perf.ConsecutiveFailures++
	now := time.Now()
	c.circuit.ErrorTimestamps = append(r.pruneOld(c.circuit.ErrorTimestamps, now), now)

	tripped := c.perf.ConsecutiveFailures >= consecutiveFailureThreshold || len(c.circuit.ErrorTimestamps) >= r.windowFailureThreshold
	if tripped && c.circuit.State != domain.CircuitOpen {
		c.circuit.State = domain.CircuitOpen
		c.circuit.OpenedAt = now
		r.logger.Warn("circuit opened", "model", modelID, "consecutive_failures", c.perf.ConsecutiveFailures)
	} else if c.circuit.State == domain.CircuitHalfOpen {
		c.circuit.State = domain.CircuitOpen
		c.circuit.OpenedAt = now
	}
	c.mu.Unlock()
	r.mirrorAll(context.Background(), modelID)
}

// RecordToolOutcome records a tool-call-specific success or failure on the
// same model's performance cell.
func (r *Router) RecordToolOutcome(modelID string, success bool) {
	c, ok := r.cells[modelID]
	if !ok {
		return
	}
	c.mu.Lock()
	if success {
		c.perf.ToolSuccess++
	} else {
		c.perf.ToolFailure++
	}
	c.mu.Unlock()
	r.mirrorAll(context.Background(), modelID)
}

// ReapExpiredCircuits transitions any open circuit older than
// circuitWindow to half-open. Call periodically (or before Select) so
// "open→half-open after 5 minutes" holds even with no new traffic.
func (r *Router) ReapExpiredCircuits() {
	now := time.Now()
	for id, c := range r.cells {
		c.mu.Lock()
		if c.circuit.State == domain.CircuitOpen && now.Sub(c.circuit.OpenedAt) >= r.circuitWindow {
			c.circuit.State = domain.CircuitHalfOpen
		}
		c.mu.Unlock()
		_ = id
	}
}

func (r *Router) pruneOld(ts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-r.circuitWindow)
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

var errNoModelsAvailable = routerError("no models available in pool")

type routerError string

func (e routerError) Error() string { return string(e) }
