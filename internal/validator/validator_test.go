package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clduab11/pricehawk/internal/corerr"
	"github.com/clduab11/pricehawk/internal/domain"
	"github.com/clduab11/pricehawk/internal/router"
	"github.com/clduab11/pricehawk/internal/streaming"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedModelClient returns one fixed response for every call, recording
// call count so tests can assert on retry behavior.
type scriptedModelClient struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (c *scriptedModelClient) CompleteJSON(ctx context.Context, modelID, systemPrompt, userPrompt string, deadline time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.response, c.err
}

// fakeBus records every XAdd call.
type fakeBus struct {
	mu      sync.Mutex
	entries []map[string]string
}

func (b *fakeBus) XAdd(ctx context.Context, stream string, payload map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, payload)
	return "1-0", nil
}

func (b *fakeBus) XRead(ctx context.Context, stream, afterID string, count int) ([]streaming.Entry, error) {
	return nil, nil
}

func (b *fakeBus) XLen(ctx context.Context, stream string) (int64, error) { return 0, nil }

func testRouter() *router.Router {
	models := []domain.ModelConfig{
		{ID: "gpt-test", Name: "gpt-test", BaseWeight: 10, IsFree: true, Enabled: true, TimeoutMS: 1000},
	}
	return router.New(models, nil, false, 0, 0, testLogger())
}

func anomalyEntry(a domain.PricingAnomaly) streaming.Entry {
	body, _ := json.Marshal(a)
	return streaming.Entry{ID: "1-0", Payload: map[string]string{"anomaly": string(body)}}
}

// TestHandleConfirmsDecimalErrorGlitch is scenario 1: a confirmed glitch
// above the confidence threshold is published to anomaly.confirmed with a
// profit margin close to 99%.
func TestHandleConfirmsDecimalErrorGlitch(t *testing.T) {
	original := 199.99
	anomaly := domain.PricingAnomaly{
		ID: "a1",
		Product: domain.ProductSnapshot{
			Title:         "Widget Pro",
			CurrentPrice:  1.99,
			OriginalPrice: &original,
			RetailerID:    "acme",
			Category:      "electronics",
		},
		AnomalyType:       domain.AnomalyDecimalError,
		InitialConfidence: 90,
	}

	model := &scriptedModelClient{
		response: `{"is_glitch": true, "confidence": 95, "reasoning": "price off by 100x", "glitch_type": "decimal_error"}`,
	}
	bus := &fakeBus{}
	w := New(testRouter(), model, bus, nil, testLogger())

	if err := w.Handle(context.Background(), anomalyEntry(anomaly)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.entries) != 1 {
		t.Fatalf("expected exactly one anomaly.confirmed entry, got %d", len(bus.entries))
	}

	var glitch domain.ValidatedGlitch
	if err := json.Unmarshal([]byte(bus.entries[0]["glitch"]), &glitch); err != nil {
		t.Fatalf("decode published glitch: %v", err)
	}
	if glitch.ProfitMargin < 98 || glitch.ProfitMargin > 100 {
		t.Fatalf("profit margin = %v, want ~99", glitch.ProfitMargin)
	}
	if glitch.GlitchType != domain.GlitchDecimalError {
		t.Fatalf("glitch_type = %v, want decimal_error", glitch.GlitchType)
	}
}

// TestHandleRejectsLowConfidence verifies a verdict below the confirm
// threshold never reaches the bus.
func TestHandleRejectsLowConfidence(t *testing.T) {
	anomaly := domain.PricingAnomaly{
		ID:                "a2",
		Product:           domain.ProductSnapshot{CurrentPrice: 49.99},
		AnomalyType:       domain.AnomalyPercentageDrop,
		InitialConfidence: 60,
	}
	model := &scriptedModelClient{
		response: `{"is_glitch": true, "confidence": 30, "reasoning": "probably a real sale"}`,
	}
	bus := &fakeBus{}
	w := New(testRouter(), model, bus, nil, testLogger())

	if err := w.Handle(context.Background(), anomalyEntry(anomaly)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.entries) != 0 {
		t.Fatalf("expected no confirmed entries for a rejected verdict, got %d", len(bus.entries))
	}
}

// TestHandleMalformedPayloadReturnsKindMalformed ensures a missing anomaly
// field is classified so the consumer advances rather than retries.
func TestHandleMalformedPayloadReturnsKindMalformed(t *testing.T) {
	model := &scriptedModelClient{response: `{"is_glitch": false, "confidence": 10}`}
	bus := &fakeBus{}
	w := New(testRouter(), model, bus, nil, testLogger())

	entry := streaming.Entry{ID: "1-0", Payload: map[string]string{}}
	if err := w.Handle(context.Background(), entry); !corerr.Is(err, corerr.KindMalformed) {
		t.Fatalf("expected a KindMalformed error for a missing anomaly payload, got %v", err)
	}
}

// TestHandleRetriesOnModelFailure verifies that after a model error the
// handler draws again but never calls the same model twice: with a
// one-model pool the redraw returns the already-tried model, so the handler
// stops after one call and reports the failure.
func TestHandleRetriesOnModelFailure(t *testing.T) {
	anomaly := domain.PricingAnomaly{
		ID:      "a3",
		Product: domain.ProductSnapshot{CurrentPrice: 10},
	}
	model := &scriptedModelClient{err: fmt.Errorf("upstream timeout")}
	bus := &fakeBus{}
	w := New(testRouter(), model, bus, nil, testLogger())

	err := w.Handle(context.Background(), anomalyEntry(anomaly))
	if err == nil {
		t.Fatalf("expected an error when every model attempt fails")
	}

	model.mu.Lock()
	defer model.mu.Unlock()
	if model.calls != 1 {
		t.Fatalf("calls = %d, want 1 (single-model pool stops retrying the same model)", model.calls)
	}
}
