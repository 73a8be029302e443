package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clduab11/pricehawk/internal/corerr"
	"github.com/clduab11/pricehawk/internal/domain"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// Handle implements consumer.Handler for the anomaly.confirmed stream: it
// decodes the ValidatedGlitch the AI Validator emitted and schedules its
// fan-out.
func (d *Dispatcher) Handle(ctx context.Context, entry streaming.Entry) error {
	glitch, err := decodeGlitch(entry.Payload)
	if err != nil {
		return corerr.New(corerr.KindMalformed, err)
	}

	if err := d.Schedule(ctx, glitch); err != nil {
		return corerr.New(corerr.KindTransient, err)
	}
	return nil
}

func decodeGlitch(payload map[string]string) (domain.ValidatedGlitch, error) {
	raw, ok := payload["glitch"]
	if !ok {
		return domain.ValidatedGlitch{}, fmt.Errorf("entry missing glitch field")
	}
	var g domain.ValidatedGlitch
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return domain.ValidatedGlitch{}, fmt.Errorf("decode glitch: %w", err)
	}
	return g, nil
}
