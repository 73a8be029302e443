package dispatch

import (
	"context"
	"fmt"

	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/domain"
)

// ChatBroadcaster posts every confirmed glitch to a public chat webhook —
// the immediate, non-user-targeted side of §4.4. Retailer-feed and
// dashboard broadcast destinations are external collaborators out of
// scope here; this is the one concrete broadcast target the retrieved
// corpus gives a shape for (a webhook post).
type ChatBroadcaster struct {
	webhookURL string
}

// NewChatBroadcaster builds a ChatBroadcaster from cfg, or returns nil if
// no public webhook is configured — nil is a valid, no-op Broadcaster.
func NewChatBroadcaster(cfg *config.Config) *ChatBroadcaster {
	if cfg.ChatWebhookURL == "" {
		return nil
	}
	return &ChatBroadcaster{webhookURL: cfg.ChatWebhookURL}
}

// Broadcast posts a public announcement for glitch.
func (b *ChatBroadcaster) Broadcast(ctx context.Context, glitch domain.ValidatedGlitch) error {
	if b == nil {
		return nil
	}
	text := fmt.Sprintf("New glitch: %s at %s (%0.f%% margin)", glitch.Product.Title, glitch.Product.RetailerID, glitch.ProfitMargin)
	_, err := postJSONPublic(ctx, b.webhookURL, map[string]any{"text": text})
	return err
}
