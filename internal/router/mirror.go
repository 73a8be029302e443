package router

import (
	"context"
	"encoding/json"

	"github.com/clduab11/pricehawk/internal/streaming"
)

// perfSnapshot and circuitSnapshot are the JSON shapes written to KV. The
// last writer wins; the Router only writes these keys and never reads them
// back, so replicas do not pick up each other's state from them.
type perfSnapshot struct {
	Success             int64 `json:"success"`
	Failure             int64 `json:"failure"`
	ToolSuccess         int64 `json:"tool_success"`
	ToolFailure         int64 `json:"tool_failure"`
	TotalLatencyMS      int64 `json:"total_latency_ms"`
	LastUsed            int64 `json:"last_used"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
}

type circuitSnapshot struct {
	State    string `json:"state"`
	OpenedAt int64  `json:"opened_at"`
}

func (r *Router) mirrorAll(ctx context.Context, modelID string) {
	r.mirrorPerf(ctx, modelID)
	r.mirrorCircuit(ctx, modelID)
}

func (r *Router) mirrorPerf(ctx context.Context, modelID string) {
	c, ok := r.cells[modelID]
	if !ok || r.kv == nil {
		return
	}
	c.mu.Lock()
	snap := perfSnapshot{
		Success:             c.perf.Success,
		Failure:             c.perf.Failure,
		ToolSuccess:         c.perf.ToolSuccess,
		ToolFailure:         c.perf.ToolFailure,
		TotalLatencyMS:      c.perf.TotalLatencyMS,
		LastUsed:            c.perf.LastUsed.Unix(),
		ConsecutiveFailures: c.perf.ConsecutiveFailures,
	}
	c.mu.Unlock()

	body, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = r.kv.Set(ctx, streaming.ModelPerfKey(modelID), string(body), kvMirrorTTL)
}

func (r *Router) mirrorCircuit(ctx context.Context, modelID string) {
	c, ok := r.cells[modelID]
	if !ok || r.kv == nil {
		return
	}
	c.mu.Lock()
	snap := circuitSnapshot{
		State:    string(c.circuit.State),
		OpenedAt: c.circuit.OpenedAt.Unix(),
	}
	c.mu.Unlock()

	body, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = r.kv.Set(ctx, streaming.ModelCircuitKey(modelID), string(body), kvMirrorTTL)
}

// Stats is the per-model exposure the metrics/admin surface reads.
type Stats struct {
	ModelID         string  `json:"model_id"`
	EffectiveWeight int     `json:"effective_weight"`
	Success         int64   `json:"success"`
	Failure         int64   `json:"failure"`
	AvgLatencyMS    float64 `json:"avg_latency_ms"`
	CircuitState    string  `json:"circuit_state"`
	LastUsedUnix    int64   `json:"last_used_unix"`
}

// AllStats returns a stats snapshot for every model in table order.
func (r *Router) AllStats(order []string) []Stats {
	out := make([]Stats, 0, len(order))
	for _, id := range order {
		c, ok := r.cells[id]
		if !ok {
			continue
		}
		c.mu.Lock()
		p := c.perf
		state := c.circuit.State
		lastUsed := p.LastUsed.Unix()
		c.mu.Unlock()

		avg := 0.0
		if p.Success+p.Failure > 0 {
			avg = float64(p.TotalLatencyMS) / float64(p.Success+p.Failure)
		}
		out = append(out, Stats{
			ModelID:         id,
			EffectiveWeight: r.effectiveWeight(id),
			Success:         p.Success,
			Failure:         p.Failure,
			AvgLatencyMS:    avg,
			CircuitState:    string(state),
			LastUsedUnix:    lastUsed,
		})
	}
	return out
}
