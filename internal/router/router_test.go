package router

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clduab11/pricehawk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func model(id string, weight int, free bool) domain.ModelConfig {
	return domain.ModelConfig{ID: id, Name: id, BaseWeight: weight, IsFree: free, Enabled: true, TimeoutMS: 1000}
}

// TestSelectWeightProportionality samples Select heavily over a two-model
// pool with a 3:1 base weight ratio and asserts the empirical split lands
// within a generous tolerance band.
func TestSelectWeightProportionality(t *testing.T) {
	models := []domain.ModelConfig{model("a", 30, true), model("b", 10, true)}
	r := New(models, nil, false, 0, 0, testLogger())

	const n = 20000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		m, err := r.Select(domain.UnicornContext{})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[m.ID]++
	}

	gotRatio := float64(counts["a"]) / float64(n)
	wantRatio := 0.75
	if diff := gotRatio - wantRatio; diff > 0.05 || diff < -0.05 {
		t.Fatalf("model a selected %.3f of draws, want ~%.3f (counts=%v)", gotRatio, wantRatio, counts)
	}
}

// TestCircuitTripsAfterThreshold is scenario 2: 3 failures within the
// sliding window (the configured CIRCUIT_BREAKER_THRESHOLD default) open
// the circuit, and subsequent selections from a two-model pool never
// return the failed model.
func TestCircuitTripsAfterThreshold(t *testing.T) {
	models := []domain.ModelConfig{model("bad", 10, true), model("good", 10, true)}
	r := New(models, nil, false, 0, 0, testLogger())

	for i := 0; i < defaultWindowFailureThreshold; i++ {
		r.RecordFailure("bad")
	}

	c := r.cells["bad"]
	c.mu.Lock()
	state := c.circuit.State
	c.mu.Unlock()
	if state != domain.CircuitOpen {
		t.Fatalf("circuit state = %v, want open", state)
	}

	for i := 0; i < 20; i++ {
		m, err := r.Select(domain.UnicornContext{})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if m.ID == "bad" {
			t.Fatalf("selected circuit-open model on draw %d", i)
		}
	}
}

// TestCircuitHalfOpensAfterWindow verifies ReapExpiredCircuits (invoked by
// every Select) transitions an open circuit older than the half-open
// window back to half-open, making it selectable again.
func TestCircuitHalfOpensAfterWindow(t *testing.T) {
	models := []domain.ModelConfig{model("solo", 10, true)}
	r := New(models, nil, false, 0, 0, testLogger())

	for i := 0; i < defaultWindowFailureThreshold; i++ {
		r.RecordFailure("solo")
	}

	c := r.cells["solo"]
	c.mu.Lock()
	if c.circuit.State != domain.CircuitOpen {
		c.mu.Unlock()
		t.Fatalf("circuit did not open")
	}
	c.circuit.OpenedAt = time.Now().Add(-6 * time.Minute)
	c.mu.Unlock()

	m, err := r.Select(domain.UnicornContext{})
	if err != nil {
		t.Fatalf("select after window expiry: %v", err)
	}
	if m.ID != "solo" {
		t.Fatalf("selected %q, want solo", m.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.circuit.State != domain.CircuitHalfOpen && c.circuit.State != domain.CircuitClosed {
		t.Fatalf("circuit state = %v, want half_open (or closed after a successful draw)", c.circuit.State)
	}
}

// TestFallbackWhenAllCircuitsOpen is scenario 3: every standard-pool model
// trips its circuit; fallback resets the earliest-opened one to half-open
// and Select still returns a model without error.
func TestFallbackWhenAllCircuitsOpen(t *testing.T) {
	models := []domain.ModelConfig{model("first", 10, true), model("second", 10, true)}
	r := New(models, nil, false, 0, 0, testLogger())

	for i := 0; i < defaultWindowFailureThreshold; i++ {
		r.RecordFailure("first")
	}
	time.Sleep(2 * time.Millisecond)
	for i := 0; i < defaultWindowFailureThreshold; i++ {
		r.RecordFailure("second")
	}

	m, err := r.Select(domain.UnicornContext{})
	if err != nil {
		t.Fatalf("select with all circuits open: %v", err)
	}
	if m.ID != "first" {
		t.Fatalf("fallback chose %q, want the earliest-opened circuit %q", m.ID, "first")
	}

	c := r.cells["first"]
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.circuit.State != domain.CircuitHalfOpen {
		t.Fatalf("fallback circuit state = %v, want half_open", c.circuit.State)
	}
}

func TestIsUnicornRequiresTwoSignals(t *testing.T) {
	cases := []struct {
		name string
		ctx  domain.UnicornContext
		want bool
	}{
		{"no signals", domain.UnicornContext{Discount: 10, Confidence: 10}, false},
		{"one signal only", domain.UnicornContext{Discount: 90, Confidence: 10}, false},
		{"discount and confidence", domain.UnicornContext{Discount: 85, Confidence: 90}, true},
		{"discount and zscore", domain.UnicornContext{Discount: 80, ZScore: ptr(5.0)}, true},
		{"all three", domain.UnicornContext{Discount: 90, Confidence: 95, ZScore: ptr(6.0)}, true},
		{"zscore just under threshold", domain.UnicornContext{Discount: 81, ZScore: ptr(3.9)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUnicorn(tc.ctx); got != tc.want {
				t.Errorf("IsUnicorn(%+v) = %v, want %v", tc.ctx, got, tc.want)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }
