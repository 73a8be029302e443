package dispatch

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/clduab11/pricehawk/internal/dispatch/providers"
	"github.com/clduab11/pricehawk/internal/domain"
	"github.com/clduab11/pricehawk/internal/streaming"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeKV is an in-memory streaming.KV sufficient for dedup/rate-limit tests.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string]string)} }

func (k *fakeKV) Get(ctx context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	return v, ok, nil
}

func (k *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
	return nil
}

func (k *fakeKV) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.data[key]; ok {
		return false, nil
	}
	k.data[key] = value
	return true, nil
}

func (k *fakeKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	n, _ := strconv.ParseInt(k.data[key], 10, 64)
	n++
	k.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (k *fakeKV) Exists(ctx context.Context, key string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.data[key]
	return ok, nil
}

func (k *fakeKV) Del(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, key)
	return nil
}

func (k *fakeKV) Keys(ctx context.Context, pattern string) ([]string, error) { return nil, nil }

// fakeQueue records every Add call, implementing DelayQueue.
type fakeQueue struct {
	mu   sync.Mutex
	adds []queuedJob
}

type queuedJob struct {
	name    string
	delayMS int64
	unique  string
}

func (q *fakeQueue) Add(ctx context.Context, name string, payload any, delayMS int64, uniqueID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.adds = append(q.adds, queuedJob{name: name, delayMS: delayMS, unique: uniqueID})
	return nil
}

// fakeSubscribers returns a fixed subscriber set regardless of requested
// tiers, for tests that control the tier set via TierPolicy directly.
type fakeSubscribers struct {
	subs []domain.Subscriber
}

func (f fakeSubscribers) ActiveByTiers(ctx context.Context, tiers []domain.SubscriberTier) ([]domain.Subscriber, error) {
	want := make(map[domain.SubscriberTier]bool, len(tiers))
	for _, t := range tiers {
		want[t] = true
	}
	var out []domain.Subscriber
	for _, s := range f.subs {
		if want[s.Tier] {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeMarker struct {
	mu      sync.Mutex
	marked  []string
}

func (m *fakeMarker) MarkNotified(ctx context.Context, anomalyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, anomalyID)
	return nil
}

// fakeProvider always succeeds and records every send.
type fakeProvider struct {
	ch      domain.Channel
	mu      sync.Mutex
	sent    []string
}

func (p *fakeProvider) Channel() domain.Channel { return p.ch }

func (p *fakeProvider) Send(ctx context.Context, glitch domain.ValidatedGlitch, target domain.Subscriber) domain.ChannelResult {
	p.mu.Lock()
	p.sent = append(p.sent, target.ID)
	p.mu.Unlock()
	return domain.ChannelResult{Success: true, Channel: p.ch, SentAt: time.Now().UTC()}
}

func testGlitch(id string) domain.ValidatedGlitch {
	return domain.ValidatedGlitch{
		ID:           id,
		AnomalyID:    "anomaly-" + id,
		ProfitMargin: 90,
		Product:      domain.ProductSnapshot{Category: "electronics", RetailerID: "acme", CurrentPrice: 10},
	}
}

func newTestDispatcher(kv streaming.KV, queue DelayQueue, subs SubscriberLoader, marker NotifiedMarker, registry providers.Registry) *Dispatcher {
	return New(Config{
		KV:          kv,
		Bus:         nil,
		Queue:       queue,
		Policy:      DefaultTierPolicy(),
		Providers:   registry,
		Subscribers: subs,
		Marker:      marker,
		Logger:      testLogger(),
	})
}

// TestScheduleDedupsByGlitchID is the §4.4 dedup guarantee: scheduling the
// same glitch id twice enqueues jobs only once.
func TestScheduleDedupsByGlitchID(t *testing.T) {
	kv := newFakeKV()
	queue := &fakeQueue{}
	d := newTestDispatcher(kv, queue, fakeSubscribers{}, &fakeMarker{}, providers.Registry{})

	g := testGlitch("g1")
	if err := d.Schedule(context.Background(), g); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	firstCount := len(queue.adds)
	if firstCount == 0 {
		t.Fatalf("expected jobs enqueued on first schedule")
	}

	if err := d.Schedule(context.Background(), g); err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if len(queue.adds) != firstCount {
		t.Fatalf("second schedule enqueued more jobs: got %d, want %d", len(queue.adds), firstCount)
	}
}

// TestTierGroupsProduceDocumentedDelays is scenario 1: pro/elite get a
// zero delay, starter 24h, free 72h.
func TestTierGroupsProduceDocumentedDelays(t *testing.T) {
	groups := DefaultTierPolicy().TierGroups()

	want := map[time.Duration]int64{
		0:                  0,
		24 * time.Hour:     24 * time.Hour.Milliseconds(),
		72 * time.Hour:     72 * time.Hour.Milliseconds(),
	}
	for delay := range want {
		if _, ok := groups[delay]; !ok {
			t.Fatalf("missing tier group for delay %v; groups=%v", delay, groups)
		}
	}
	if delay := DefaultTierPolicy().DelayFor(domain.SubPro); delay != 0 {
		t.Errorf("pro delay = %v, want 0", delay)
	}
	if delay := DefaultTierPolicy().DelayFor(domain.SubStarter); delay != 24*time.Hour {
		t.Errorf("starter delay = %v, want 24h", delay)
	}
	if delay := DefaultTierPolicy().DelayFor(domain.SubFree); delay != 72*time.Hour {
		t.Errorf("free delay = %v, want 72h", delay)
	}
}

func TestPassesPreferenceFilter(t *testing.T) {
	g := domain.ValidatedGlitch{
		ProfitMargin: 50,
		Product: domain.ProductSnapshot{
			Category:     "electronics",
			RetailerID:   "acme",
			CurrentPrice: 100,
		},
	}

	cases := []struct {
		name  string
		prefs domain.SubscriberPrefs
		want  bool
	}{
		{"no filters", domain.SubscriberPrefs{}, true},
		{"margin too low", domain.SubscriberPrefs{MinProfitMargin: 60}, false},
		{"margin satisfied", domain.SubscriberPrefs{MinProfitMargin: 40}, true},
		{"category mismatch", domain.SubscriberPrefs{Categories: []string{"toys"}}, false},
		{"category match", domain.SubscriberPrefs{Categories: []string{"electronics"}}, true},
		{"retailer mismatch", domain.SubscriberPrefs{Retailers: []string{"other"}}, false},
		{"price below min", domain.SubscriberPrefs{MinPrice: 200}, false},
		{"price above max", domain.SubscriberPrefs{MaxPrice: 50}, false},
		{"price in range", domain.SubscriberPrefs{MinPrice: 10, MaxPrice: 200}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := passesPreferenceFilter(g, tc.prefs); got != tc.want {
				t.Errorf("passesPreferenceFilter(%+v) = %v, want %v", tc.prefs, got, tc.want)
			}
		})
	}
}

// TestTierGatingStarterNoSMS is scenario 6: a starter-tier subscriber with
// SMS enabled never receives SMS (not in the tier's allowed set), but a
// pro-tier subscriber with the same preference does.
func TestTierGatingStarterNoSMS(t *testing.T) {
	kv := newFakeKV()
	queue := &fakeQueue{}
	smsProvider := &fakeProvider{ch: domain.ChannelSMS}
	registry := providers.Registry{domain.ChannelSMS: smsProvider}

	subs := fakeSubscribers{subs: []domain.Subscriber{
		{ID: "starter-1", Tier: domain.SubStarter, Prefs: domain.SubscriberPrefs{EnabledChannels: map[domain.Channel]bool{domain.ChannelSMS: true}}},
		{ID: "pro-1", Tier: domain.SubPro, Prefs: domain.SubscriberPrefs{EnabledChannels: map[domain.Channel]bool{domain.ChannelSMS: true}}},
	}}
	marker := &fakeMarker{}
	d := newTestDispatcher(kv, queue, subs, marker, registry)

	g := testGlitch("g2")
	if err := d.ProcessJob(context.Background(), g, []domain.SubscriberTier{domain.SubStarter, domain.SubPro}); err != nil {
		t.Fatalf("process job: %v", err)
	}

	smsProvider.mu.Lock()
	sent := append([]string(nil), smsProvider.sent...)
	smsProvider.mu.Unlock()

	if len(sent) != 1 || sent[0] != "pro-1" {
		t.Fatalf("sms recipients = %v, want only pro-1", sent)
	}
}
