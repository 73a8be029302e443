package providers

import (
	"context"
	"fmt"

	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/corerr"
	"github.com/clduab11/pricehawk/internal/domain"
)

// glitchSubject renders a short, shared message subject/body used across
// every channel's payload.
func glitchSubject(g domain.ValidatedGlitch) string {
	return fmt.Sprintf("%s at %s: %.0f%% off (%s)", g.Product.Title, g.Product.RetailerID, g.ProfitMargin, g.GlitchType)
}

// EmailProvider sends through a transactional email API.
type EmailProvider struct {
	apiKey string
	from   string
}

func NewEmail(cfg *config.Config) *EmailProvider {
	return &EmailProvider{apiKey: cfg.EmailAPIKey, from: cfg.EmailFromAddress}
}

func (p *EmailProvider) Channel() domain.Channel { return domain.ChannelEmail }

func (p *EmailProvider) Send(ctx context.Context, g domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	if p.apiKey == "" {
		return result(p.Channel(), false, "", corerr.New(corerr.KindConfig, fmt.Errorf("email api key not configured")))
	}
	id, err := postJSON(ctx, "https://api.email-provider.example/v1/send", "Authorization", "Bearer "+p.apiKey, map[string]any{
		"from": p.from, "to": target.ID, "subject": glitchSubject(g), "body": g.Reasoning,
	})
	return result(p.Channel(), err == nil, id, err)
}

// ChatProvider posts to a per-workspace chat webhook.
type ChatProvider struct {
	webhookURL string
}

func NewChat(cfg *config.Config) *ChatProvider {
	return &ChatProvider{webhookURL: cfg.ChatWebhookURL}
}

func (p *ChatProvider) Channel() domain.Channel { return domain.ChannelChat }

func (p *ChatProvider) Send(ctx context.Context, g domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	if p.webhookURL == "" {
		return result(p.Channel(), false, "", corerr.New(corerr.KindConfig, fmt.Errorf("chat webhook not configured")))
	}
	id, err := postJSON(ctx, p.webhookURL, "", "", map[string]any{"text": glitchSubject(g)})
	return result(p.Channel(), err == nil, id, err)
}

// SMSProvider sends through an SMS API keyed by account SID + auth token.
type SMSProvider struct {
	sid, token, from string
}

func NewSMS(cfg *config.Config) *SMSProvider {
	return &SMSProvider{sid: cfg.SMSAccountSID, token: cfg.SMSAuthToken, from: cfg.SMSFromNumber}
}

func (p *SMSProvider) Channel() domain.Channel { return domain.ChannelSMS }

func (p *SMSProvider) Send(ctx context.Context, g domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	if p.sid == "" || p.token == "" {
		return result(p.Channel(), false, "", corerr.New(corerr.KindConfig, fmt.Errorf("sms credentials not configured")))
	}
	id, err := postJSON(ctx, "https://api.sms-provider.example/v1/messages", "Authorization", "Basic "+p.sid+":"+p.token, map[string]any{
		"from": p.from, "to": target.ID, "body": glitchSubject(g),
	})
	return result(p.Channel(), err == nil, id, err)
}

// IMProvider sends through a bot-token-authenticated instant-messaging API.
type IMProvider struct {
	botToken string
}

func NewIM(cfg *config.Config) *IMProvider {
	return &IMProvider{botToken: cfg.IMBotToken}
}

func (p *IMProvider) Channel() domain.Channel { return domain.ChannelIM }

func (p *IMProvider) Send(ctx context.Context, g domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	if p.botToken == "" {
		return result(p.Channel(), false, "", corerr.New(corerr.KindConfig, fmt.Errorf("im bot token not configured")))
	}
	id, err := postJSON(ctx, "https://api.im-provider.example/v1/messages", "Authorization", "Bot "+p.botToken, map[string]any{
		"recipient": target.ID, "text": glitchSubject(g),
	})
	return result(p.Channel(), err == nil, id, err)
}

// RichMessageProvider sends a card-style message carrying a title and the
// product link.
type RichMessageProvider struct {
	apiKey string
}

func NewRichMessage(cfg *config.Config) *RichMessageProvider {
	return &RichMessageProvider{apiKey: cfg.RichMessageAPIKey}
}

func (p *RichMessageProvider) Channel() domain.Channel { return domain.ChannelRichMessage }

func (p *RichMessageProvider) Send(ctx context.Context, g domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	if p.apiKey == "" {
		return result(p.Channel(), false, "", corerr.New(corerr.KindConfig, fmt.Errorf("rich message api key not configured")))
	}
	id, err := postJSON(ctx, "https://api.rich-message-provider.example/v1/cards", "Authorization", "Bearer "+p.apiKey, map[string]any{
		"recipient": target.ID, "title": glitchSubject(g), "url": g.Product.URL,
	})
	return result(p.Channel(), err == nil, id, err)
}

// WebhookProvider POSTs an event to a per-subscriber URL built from the
// subscriber id. The configured signing key is sent as-is in the
// X-Pricehawk-Signature header to identify pricehawk as the sender; the
// body itself is not signed.
type WebhookProvider struct {
	signingKey string
}

func NewWebhook(cfg *config.Config) *WebhookProvider {
	return &WebhookProvider{signingKey: cfg.WebhookSigningKey}
}

func (p *WebhookProvider) Channel() domain.Channel { return domain.ChannelWebhook }

func (p *WebhookProvider) Send(ctx context.Context, g domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	if p.signingKey == "" {
		return result(p.Channel(), false, "", corerr.New(corerr.KindConfig, fmt.Errorf("webhook signing key not configured")))
	}
	id, err := postJSON(ctx, "https://hooks.subscriber.example/"+target.ID, "X-Pricehawk-Signature", p.signingKey, map[string]any{
		"glitch_id": g.ID, "title": g.Product.Title, "profit_margin": g.ProfitMargin,
	})
	return result(p.Channel(), err == nil, id, err)
}

// PriorityProvider is elite tier's highest-urgency channel: a push to a
// dedicated low-latency endpoint, keyed by its own API key.
type PriorityProvider struct {
	apiKey string
}

func NewPriority(cfg *config.Config) *PriorityProvider {
	return &PriorityProvider{apiKey: cfg.PriorityAPIKey}
}

func (p *PriorityProvider) Channel() domain.Channel { return domain.ChannelPriority }

func (p *PriorityProvider) Send(ctx context.Context, g domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	if p.apiKey == "" {
		return result(p.Channel(), false, "", corerr.New(corerr.KindConfig, fmt.Errorf("priority api key not configured")))
	}
	id, err := postJSON(ctx, "https://api.priority-provider.example/v1/push", "Authorization", "Bearer "+p.apiKey, map[string]any{
		"user_id": target.ID, "message": glitchSubject(g), "urgent": true,
	})
	return result(p.Channel(), err == nil, id, err)
}

// BuildRegistry constructs every channel provider from cfg.
func BuildRegistry(cfg *config.Config) Registry {
	return Registry{
		domain.ChannelEmail:       NewEmail(cfg),
		domain.ChannelChat:        NewChat(cfg),
		domain.ChannelSMS:         NewSMS(cfg),
		domain.ChannelIM:          NewIM(cfg),
		domain.ChannelRichMessage: NewRichMessage(cfg),
		domain.ChannelWebhook:     NewWebhook(cfg),
		domain.ChannelPriority:    NewPriority(cfg),
	}
}
