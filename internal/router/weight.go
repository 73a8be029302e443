package router

import "math"

// effectiveWeight computes a model's selection weight from its base weight
// adjusted by runtime performance, per the documented formula.
func (r *Router) effectiveWeight(modelID string) int {
	m := r.modelsByID[modelID]
	c := r.cells[modelID]

	c.mu.Lock()
	p := c.perf
	c.mu.Unlock()

	total := p.Success + p.Failure
	if total == 0 {
		return m.BaseWeight
	}

	successRate := float64(p.Success) / float64(total)
	consecutivePenalty := math.Min(float64(p.ConsecutiveFailures)*10, 80)

	toolBonus := 0.0
	if toolTotal := p.ToolSuccess + p.ToolFailure; toolTotal > 0 {
		toolBonus = math.Round(float64(p.ToolSuccess) / float64(toolTotal) * 5)
	}

	effective := math.Round(float64(m.BaseWeight)*successRate) - consecutivePenalty + toolBonus
	if effective < 1 {
		effective = 1
	}
	return int(effective)
}
