// Package providers implements the Channel Provider capability: one
// variant per channel behind a uniform send() façade. Provider SDK
// internals (mail/SMS/chat vendor clients) are an external collaborator
// boundary — each variant here owns the minimal HTTP contract needed to
// reach its channel and reads its own credentials from config, per the
// external interfaces contract. None are a subclass of a shared base
// type; the dispatcher holds a plain map from channel name to Provider.
package providers

import (
	"context"
	"time"

	"github.com/clduab11/pricehawk/internal/domain"
)

// providerTimeout is the default deadline for an outbound channel call.
const providerTimeout = 20 * time.Second

// Provider is the uniform capability every channel implements.
type Provider interface {
	Channel() domain.Channel
	Send(ctx context.Context, glitch domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult
}

// Registry maps a channel name to its Provider, built once at startup from
// config and held by the dispatcher.
type Registry map[domain.Channel]Provider

// Get returns the provider for channel, or nil if unconfigured.
func (r Registry) Get(ch domain.Channel) Provider {
	return r[ch]
}

func result(ch domain.Channel, success bool, messageID string, err error) domain.ChannelResult {
	return domain.ChannelResult{
		Success:   success,
		Channel:   ch,
		MessageID: messageID,
		Err:       err,
		SentAt:    time.Now().UTC(),
	}
}
