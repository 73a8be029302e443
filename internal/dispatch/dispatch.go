// Package dispatch implements the Tiered Notification Dispatcher: it turns
// one confirmed glitch into per-user channel deliveries, respecting tier
// delays, per-glitch and per-user dedup, preference filtering, and
// per-channel daily rate caps.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/dispatch/providers"
	"github.com/clduab11/pricehawk/internal/domain"
	"github.com/clduab11/pricehawk/internal/obs"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// defaultGlitchDedupTTL is used when Config.DedupTTL is unset; it equals
// the NOTIFY_DEDUP_TTL_SECONDS default (24h). A duplicate glitch arriving
// after the key expires is scheduled again.
const defaultGlitchDedupTTL = 24 * time.Hour

// userGlitchDedupTTL is the TTL on the per-user-per-glitch dedup key.
const userGlitchDedupTTL = 7 * 24 * time.Hour

// SubscriberLoader resolves the active subscriber set for a tier group —
// satisfied by *store.SubscriberStore in production, and a fake in tests.
type SubscriberLoader interface {
	ActiveByTiers(ctx context.Context, tiers []domain.SubscriberTier) ([]domain.Subscriber, error)
}

// NotifiedMarker flips an anomaly to notified — satisfied by
// *store.GlitchStore in production.
type NotifiedMarker interface {
	MarkNotified(ctx context.Context, anomalyID string) error
}

// Broadcaster fires the immediate, non-user-targeted side of a glitch
// (public feed, retailer notice) synchronously. A nil Broadcaster is a
// no-op — broadcast destinations are an external collaborator and may not
// be configured in every deployment.
type Broadcaster interface {
	Broadcast(ctx context.Context, glitch domain.ValidatedGlitch) error
}

// DelayQueue is satisfied by *lmstfyqueue.Queue; an interface so tests can
// substitute a fake without a real lmstfy connection.
type DelayQueue interface {
	Add(ctx context.Context, name string, payload any, delayMS int64, uniqueID string) error
}

// Dispatcher wires the Delay Queue, tier policy, rate limiter, and channel
// providers together.
type Dispatcher struct {
	kv          streaming.KV
	bus         streaming.Bus
	queue       DelayQueue
	policy      *TierPolicy
	limiter     *RateLimiter
	providers   providers.Registry
	subscribers SubscriberLoader
	marker      NotifiedMarker
	broadcaster Broadcaster
	metrics     *obs.Metrics
	dedupTTL    time.Duration
	logger      *slog.Logger
}

// Config bundles a Dispatcher's collaborators.
type Config struct {
	KV          streaming.KV
	Bus         streaming.Bus
	Queue       DelayQueue
	Policy      *TierPolicy
	Providers   providers.Registry
	Subscribers SubscriberLoader
	Marker      NotifiedMarker
	Broadcaster Broadcaster
	Metrics     *obs.Metrics
	DedupTTL    time.Duration
	Logger      *slog.Logger
}

// New builds a Dispatcher.
func New(cfg Config) *Dispatcher {
	dedupTTL := cfg.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = defaultGlitchDedupTTL
	}
	return &Dispatcher{
		kv:          cfg.KV,
		bus:         cfg.Bus,
		queue:       cfg.Queue,
		policy:      cfg.Policy,
		limiter:     NewRateLimiter(cfg.KV, cfg.Policy),
		providers:   cfg.Providers,
		subscribers: cfg.Subscribers,
		marker:      cfg.Marker,
		broadcaster: cfg.Broadcaster,
		metrics:     cfg.Metrics,
		dedupTTL:    dedupTTL,
		logger:      cfg.Logger,
	}
}

// Schedule implements the broadcast/schedule half of §4.4: it fires the
// synchronous broadcast, dedups on the glitch id, and enqueues one delay
// job per distinct tier-delay group.
func (d *Dispatcher) Schedule(ctx context.Context, glitch domain.ValidatedGlitch) error {
	if d.broadcaster != nil {
		if err := d.broadcaster.Broadcast(ctx, glitch); err != nil {
			d.logger.Warn("broadcast failed", "glitch_id", glitch.ID, "error", err)
		}
	}

	dedupKey := streaming.NotifyGlitchKey(glitch.ID)
	won, err := d.kv.SetIfAbsent(ctx, dedupKey, "1", d.dedupTTL)
	if err != nil {
		return fmt.Errorf("glitch dedup: %w", err)
	}
	if !won {
		d.logger.Info("glitch already scheduled, skipping", "glitch_id", glitch.ID)
		return nil
	}

	now := time.Now()
	for delay, tiers := range d.policy.TierGroups() {
		job := domain.DispatchJob{
			GlitchID:    glitch.ID,
			TargetTiers: tiers,
			ScheduledAt: now.Add(delay),
		}
		payload := jobPayload{GlitchID: glitch.ID, Tiers: tierStrings(tiers), Glitch: glitch}
		if err := d.queue.Add(ctx, config.DelayQueueNotify, payload, delay.Milliseconds(), job.UniqueID()); err != nil {
			return fmt.Errorf("enqueue job for tiers %v: %w", tiers, err)
		}
	}
	return nil
}

type jobPayload struct {
	GlitchID string                  `json:"glitch_id"`
	Tiers    []string                `json:"tiers"`
	Glitch   domain.ValidatedGlitch  `json:"glitch"`
}

func tierStrings(tiers []domain.SubscriberTier) []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = string(t)
	}
	return out
}

// HandleJob is the lmstfyqueue.Handler the dispatch worker registers; it
// decodes the delay-queue payload and runs ProcessJob.
func (d *Dispatcher) HandleJob(ctx context.Context, raw []byte) error {
	var p jobPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	tiers := make([]domain.SubscriberTier, len(p.Tiers))
	for i, t := range p.Tiers {
		tiers[i] = domain.SubscriberTier(t)
	}
	return d.ProcessJob(ctx, p.Glitch, tiers)
}

// ProcessJob implements the per-job execution steps of §4.4: load
// subscribers, filter by preference, dedup per user, send on every
// allowed+rate-limited channel, and mark-notified on any success.
func (d *Dispatcher) ProcessJob(ctx context.Context, glitch domain.ValidatedGlitch, tiers []domain.SubscriberTier) error {
	subs, err := d.subscribers.ActiveByTiers(ctx, tiers)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}

	anyUserSucceeded := false
	for _, sub := range subs {
		if !passesPreferenceFilter(glitch, sub.Prefs) {
			continue
		}

		userDedupKey := streaming.NotifyUserGlitchKey(sub.ID, glitch.ID)
		already, err := d.kv.Exists(ctx, userDedupKey)
		if err != nil {
			d.logger.Warn("per-user dedup check failed", "user_id", sub.ID, "glitch_id", glitch.ID, "error", err)
			continue
		}
		if already {
			continue
		}

		if d.sendToUser(ctx, glitch, sub) {
			anyUserSucceeded = true
			if err := d.kv.Set(ctx, userDedupKey, "1", userGlitchDedupTTL); err != nil {
				d.logger.Warn("set user dedup failed", "user_id", sub.ID, "error", err)
			}
		}
	}

	if anyUserSucceeded {
		if d.marker != nil {
			if err := d.marker.MarkNotified(ctx, glitch.AnomalyID); err != nil {
				d.logger.Warn("mark notified failed", "anomaly_id", glitch.AnomalyID, "error", err)
			}
		}
		d.emitNotified(ctx, glitch)
	}
	return nil
}

// emitNotified publishes a lightweight anomaly.notified status event so
// other consumers (analytics, cache refresh) can react to the state
// transition without polling dispatch state. Best-effort: a failure here
// never unwinds the notification that already went out.
func (d *Dispatcher) emitNotified(ctx context.Context, glitch domain.ValidatedGlitch) {
	if d.bus == nil {
		return
	}
	_, err := d.bus.XAdd(ctx, config.StreamAnomalyNotified, map[string]string{
		"anomaly_id": glitch.AnomalyID,
		"glitch_id":  glitch.ID,
	})
	if err != nil {
		d.logger.Warn("emit anomaly.notified failed", "anomaly_id", glitch.AnomalyID, "error", err)
	}
}

// sendToUser attempts every channel the user enabled AND their tier
// authorizes, subject to the daily rate cap. Per-call failures on one
// channel never block another — each call is independent, per §7.
func (d *Dispatcher) sendToUser(ctx context.Context, glitch domain.ValidatedGlitch, sub domain.Subscriber) bool {
	anySucceeded := false
	for ch, enabled := range sub.Prefs.EnabledChannels {
		if !enabled || !d.policy.Allows(sub.Tier, ch) {
			continue
		}

		provider := d.providers.Get(ch)
		if provider == nil {
			continue
		}

		ok, err := d.limiter.Reserve(ctx, sub.ID, ch)
		if err != nil {
			d.logger.Warn("rate limiter error", "user_id", sub.ID, "channel", ch, "error", err)
			continue
		}
		if !ok {
			d.logger.Info("daily cap exceeded", "user_id", sub.ID, "channel", ch)
			continue
		}

		res := provider.Send(ctx, glitch, sub)
		outcome := "failure"
		if res.Success {
			outcome = "success"
			anySucceeded = true
		} else {
			d.logger.Warn("channel send failed", "user_id", sub.ID, "channel", ch, "error", res.Err)
		}
		if d.metrics != nil {
			d.metrics.NotificationsSent.WithLabelValues(string(ch), outcome).Inc()
		}
	}
	return anySucceeded
}

// passesPreferenceFilter implements the §4.4 preference filter.
func passesPreferenceFilter(g domain.ValidatedGlitch, prefs domain.SubscriberPrefs) bool {
	if g.ProfitMargin < prefs.MinProfitMargin {
		return false
	}
	if len(prefs.Categories) > 0 && !containsFold(prefs.Categories, g.Product.Category) {
		return false
	}
	if len(prefs.Retailers) > 0 && !containsFold(prefs.Retailers, g.Product.RetailerID) {
		return false
	}
	if prefs.MinPrice > 0 && g.Product.CurrentPrice < prefs.MinPrice {
		return false
	}
	if prefs.MaxPrice > 0 && g.Product.CurrentPrice > prefs.MaxPrice {
		return false
	}
	return true
}

// containsFold reports whether any item in haystack appears as a
// case-insensitive substring of needle.
func containsFold(haystack []string, needle string) bool {
	lower := strings.ToLower(needle)
	for _, h := range haystack {
		if strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}
