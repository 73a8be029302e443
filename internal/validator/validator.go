// Package validator implements the AI Validator Worker: for each
// PricingAnomaly, it selects a model via the Weighted Model Router, asks
// for a structured glitch verdict, and emits a ValidatedGlitch when the
// verdict confirms one.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/corerr"
	"github.com/clduab11/pricehawk/internal/domain"
	"github.com/clduab11/pricehawk/internal/router"
	"github.com/clduab11/pricehawk/internal/store"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// maxModelAttempts bounds how many distinct models one anomaly tries
// before the handler invocation itself is reported as a failure.
const maxModelAttempts = 3

// confirmThreshold is the minimum confidence at which a positive verdict
// becomes a ValidatedGlitch rather than a rejection.
const confirmThreshold = 50.0

const systemPrompt = `You are a pricing anomaly classifier. Given a product's price drop, decide whether it is a genuine retailer pricing error ("glitch") worth surfacing, or a legitimate sale/clearance. Respond with ONLY a JSON object: {"is_glitch": bool, "confidence": 0-100, "reasoning": "...", "glitch_type": "decimal_error"|"database_error"|"clearance"|"coupon_stack"|"unknown"}.`

// ModelClient is satisfied by *modelclient.Client; an interface so tests
// can substitute a fake without a real model endpoint.
type ModelClient interface {
	CompleteJSON(ctx context.Context, modelID, systemPrompt, userPrompt string, deadline time.Duration) (string, error)
}

// Worker drives the validator's per-entry handler.
type Worker struct {
	router *router.Router
	model  ModelClient
	bus    streaming.Bus
	store  *store.GlitchStore // optional; nil disables analytics persistence
	logger *slog.Logger
}

// New builds a validator Worker. store may be nil to skip analytics
// persistence (e.g. in tests).
func New(r *router.Router, model ModelClient, bus streaming.Bus, gs *store.GlitchStore, logger *slog.Logger) *Worker {
	return &Worker{router: r, model: model, bus: bus, store: gs, logger: logger}
}

// Handle implements consumer.Handler for the anomaly.detected stream.
func (w *Worker) Handle(ctx context.Context, entry streaming.Entry) error {
	anomaly, err := decodeAnomaly(entry.Payload)
	if err != nil {
		return corerr.New(corerr.KindMalformed, err)
	}
	w.persistAnomaly(ctx, anomaly)

	uctx := unicornContext(anomaly)

	var lastErr error
	tried := make(map[string]bool, maxModelAttempts)
	for attempt := 0; attempt < maxModelAttempts; attempt++ {
		model, selErr := w.router.Select(uctx)
		if selErr != nil {
			return corerr.New(corerr.KindTransient, selErr)
		}
		if tried[model.ID] {
			// Select drew a model already tried for this anomaly; stop
			// rather than call it again. Select draws at random, so this
			// can end the loop while untried models remain in the pool.
			break
		}
		tried[model.ID] = true

		verdict, latency, callErr := w.tryModel(ctx, model, anomaly)
		if callErr != nil {
			lastErr = callErr
			w.router.RecordFailure(model.ID)
			w.logger.Warn("validator model attempt failed", "model", model.ID, "anomaly_id", anomaly.ID, "error", callErr)
			continue
		}
		w.router.RecordSuccess(model.ID, latency)

		if verdict.IsGlitch != nil && *verdict.IsGlitch && verdict.Confidence >= confirmThreshold {
			glitch := buildGlitch(anomaly, verdict)
			payload, err := encodeGlitch(glitch)
			if err != nil {
				return corerr.New(corerr.KindHandlerLogical, err)
			}
			if _, err := w.bus.XAdd(ctx, config.StreamAnomalyConfirmed, payload); err != nil {
				return corerr.New(corerr.KindTransient, err)
			}
			w.persistGlitch(ctx, glitch)
			w.logger.Info("glitch confirmed", "anomaly_id", anomaly.ID, "confidence", verdict.Confidence, "model", model.ID)
			return nil
		}

		w.logger.Info("anomaly rejected", "anomaly_id", anomaly.ID, "is_glitch", verdict.IsGlitch != nil && *verdict.IsGlitch, "confidence", verdict.Confidence)
		w.markRejected(ctx, anomaly.ID)
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("exhausted %d model attempts", maxModelAttempts)
	}
	return corerr.New(corerr.KindTransient, lastErr)
}

func (w *Worker) tryModel(ctx context.Context, model domain.ModelConfig, anomaly domain.PricingAnomaly) (modelVerdict, time.Duration, error) {
	start := time.Now()
	raw, err := w.model.CompleteJSON(ctx, model.ID, systemPrompt, userPrompt(anomaly), model.Timeout())
	latency := time.Since(start)
	if err != nil {
		return modelVerdict{}, latency, err
	}
	verdict, err := parseVerdict(raw)
	if err != nil {
		return modelVerdict{}, latency, err
	}
	return verdict, latency, nil
}

func unicornContext(a domain.PricingAnomaly) domain.UnicornContext {
	discount := 0.0
	if a.DiscountPercentage != nil {
		discount = *a.DiscountPercentage
	}
	return domain.UnicornContext{
		Discount:   discount,
		Confidence: a.InitialConfidence,
		ZScore:     a.ZScore,
	}
}

func userPrompt(a domain.PricingAnomaly) string {
	original := "unknown"
	if a.Product.OriginalPrice != nil {
		original = fmt.Sprintf("%.2f", *a.Product.OriginalPrice)
	}
	return fmt.Sprintf(
		"Product: %s\nRetailer: %s\nCategory: %s\nCurrent price: %.2f\nOriginal price: %s\nStock: %s\nAnomaly type: %s",
		a.Product.Title, a.Product.RetailerID, a.Product.Category, a.Product.CurrentPrice, original, a.Product.Stock, a.AnomalyType,
	)
}

// buildGlitch computes profit_margin per §4.3 step 7 and snapshots the
// product by value.
func buildGlitch(a domain.PricingAnomaly, v modelVerdict) domain.ValidatedGlitch {
	margin := 0.0
	if a.Product.OriginalPrice != nil && *a.Product.OriginalPrice > 0 {
		margin = (*a.Product.OriginalPrice - a.Product.CurrentPrice) / *a.Product.OriginalPrice * 100
		if margin < 0 {
			margin = 0
		}
	} else if a.DiscountPercentage != nil {
		margin = *a.DiscountPercentage
	}

	isGlitch := false
	if v.IsGlitch != nil {
		isGlitch = *v.IsGlitch
	}

	return domain.ValidatedGlitch{
		ID:           uuid.NewString(),
		AnomalyID:    a.ID,
		Product:      a.Product,
		IsGlitch:     isGlitch,
		Confidence:   v.Confidence,
		Reasoning:    v.Reasoning,
		GlitchType:   domain.GlitchType(v.GlitchType),
		ProfitMargin: margin,
		ValidatedAt:  time.Now().UTC(),
	}
}

// persistAnomaly records the anomaly for analytics before validation
// begins; best-effort, since the stream entry is the durable record and
// this is a read-side convenience.
func (w *Worker) persistAnomaly(ctx context.Context, a domain.PricingAnomaly) {
	if w.store == nil {
		return
	}
	if err := w.store.InsertAnomaly(ctx, a); err != nil {
		w.logger.Warn("persist anomaly failed", "anomaly_id", a.ID, "error", err)
	}
}

func (w *Worker) persistGlitch(ctx context.Context, g domain.ValidatedGlitch) {
	if w.store == nil {
		return
	}
	if err := w.store.InsertGlitch(ctx, g); err != nil {
		w.logger.Warn("persist glitch failed", "glitch_id", g.ID, "error", err)
	}
	if err := w.store.MarkAnomalyStatus(ctx, g.AnomalyID, domain.StatusValidated); err != nil {
		w.logger.Warn("mark anomaly validated failed", "anomaly_id", g.AnomalyID, "error", err)
	}
}

func (w *Worker) markRejected(ctx context.Context, anomalyID string) {
	if w.store == nil {
		return
	}
	if err := w.store.MarkAnomalyStatus(ctx, anomalyID, domain.StatusRejected); err != nil {
		w.logger.Warn("mark anomaly rejected failed", "anomaly_id", anomalyID, "error", err)
	}
}

func decodeAnomaly(payload map[string]string) (domain.PricingAnomaly, error) {
	raw, ok := payload["anomaly"]
	if !ok {
		return domain.PricingAnomaly{}, fmt.Errorf("entry missing anomaly field")
	}
	var a domain.PricingAnomaly
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return domain.PricingAnomaly{}, fmt.Errorf("decode anomaly: %w", err)
	}
	return a, nil
}

func encodeGlitch(g domain.ValidatedGlitch) (map[string]string, error) {
	body, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode glitch: %w", err)
	}
	return map[string]string{"glitch": string(body)}, nil
}
