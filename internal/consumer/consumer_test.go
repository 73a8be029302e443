package consumer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clduab11/pricehawk/internal/corerr"
	"github.com/clduab11/pricehawk/internal/streaming"
)

// fakeBus is an in-memory streaming.Bus sufficient for the consumer tests:
// monotonically increasing ids, ordered XRead, and separate DLQ streams.
type fakeBus struct {
	mu      sync.Mutex
	streams map[string][]streaming.Entry
	seq     int64
}

func newFakeBus() *fakeBus {
	return &fakeBus{streams: make(map[string][]streaming.Entry)}
}

func (b *fakeBus) XAdd(ctx context.Context, stream string, payload map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := fmt.Sprintf("%d-0", b.seq)
	b.streams[stream] = append(b.streams[stream], streaming.Entry{ID: id, Payload: payload})
	return id, nil
}

func (b *fakeBus) XRead(ctx context.Context, stream, afterID string, count int) ([]streaming.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []streaming.Entry
	for _, e := range b.streams[stream] {
		if idLess(afterID, e.ID) {
			out = append(out, e)
			if len(out) >= count {
				break
			}
		}
	}
	return out, nil
}

func (b *fakeBus) XLen(ctx context.Context, stream string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.streams[stream])), nil
}

func idLess(a, b string) bool {
	an, _ := strconv.ParseInt(strings.SplitN(a, "-", 2)[0], 10, 64)
	bn, _ := strconv.ParseInt(strings.SplitN(b, "-", 2)[0], 10, 64)
	return an < bn
}

// fakeKV is an in-memory streaming.KV.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

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

func (k *fakeKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range k.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{BatchSize: 50, PollInterval: 5 * time.Millisecond, MaxRetries: 5}
}

// TestAtLeastOnceAndCursorMonotonicity verifies every appended entry is
// handled at least once, in order, and the cursor never regresses.
func TestAtLeastOnceAndCursorMonotonicity(t *testing.T) {
	bus := newFakeBus()
	kv := newFakeKV()
	for i := 0; i < 5; i++ {
		bus.XAdd(context.Background(), "s", map[string]string{"n": strconv.Itoa(i)})
	}

	var mu sync.Mutex
	var seen []string
	var cursors []string
	handler := func(ctx context.Context, e streaming.Entry) error {
		mu.Lock()
		seen = append(seen, e.Payload["n"])
		mu.Unlock()
		return nil
	}

	r := New(bus, recordingKV{kv, &cursors, &mu}, testLogger())
	shutdownCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), "s", "g", handler, testConfig(), shutdownCh)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	close(shutdownCh)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("expected 5 entries handled, got %d: %v", len(seen), seen)
	}
	for i, n := range seen {
		if n != strconv.Itoa(i) {
			t.Fatalf("out of order: %v", seen)
		}
	}
	for i := 1; i < len(cursors); i++ {
		if idLess(cursors[i], cursors[i-1]) {
			t.Fatalf("cursor regressed: %v", cursors)
		}
	}
}

// recordingKV wraps a KV and records every Set call's value, to assert
// cursor monotonicity independently of handler-side state.
type recordingKV struct {
	streaming.KV
	cursors *[]string
	mu      *sync.Mutex
}

func (k recordingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	*k.cursors = append(*k.cursors, value)
	k.mu.Unlock()
	return k.KV.Set(ctx, key, value, ttl)
}

// TestMalformedEntryAdvancesCursor verifies a KindMalformed handler error
// advances past the entry without writing a DLQ record.
func TestMalformedEntryAdvancesCursor(t *testing.T) {
	bus := newFakeBus()
	kv := newFakeKV()
	bus.XAdd(context.Background(), "s", map[string]string{"bad": "payload"})

	handler := func(ctx context.Context, e streaming.Entry) error {
		return corerr.New(corerr.KindMalformed, fmt.Errorf("unparseable"))
	}

	r := New(bus, kv, testLogger())
	shutdownCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), "s", "g", handler, testConfig(), shutdownCh)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	close(shutdownCh)
	<-done

	n, _ := bus.XLen(context.Background(), streaming.DLQStream("s"))
	if n != 0 {
		t.Fatalf("malformed entry should not reach the DLQ, got %d entries", n)
	}
	cursor, ok, _ := kv.Get(context.Background(), streaming.CursorKey("g.s"))
	if !ok || cursor == "0-0" {
		t.Fatalf("cursor should have advanced past the malformed entry, got %q", cursor)
	}
}

// TestRetryThenDLQ is scenario 4 with the bus-assigned id "1-0" in place of
// "e17": the entry fails on every attempt with a transient error; the fifth
// failure (MaxRetries=5) routes it to dlq.anomaly.detected with its entry
// id and moves the cursor past it.
func TestRetryThenDLQ(t *testing.T) {
	bus := newFakeBus()
	kv := newFakeKV()
	bus.XAdd(context.Background(), "anomaly.detected", map[string]string{"anomaly": "{}"})

	var attempts int
	var mu sync.Mutex
	handler := func(ctx context.Context, e streaming.Entry) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return corerr.New(corerr.KindTransient, fmt.Errorf("boom"))
	}

	r := New(bus, kv, testLogger())
	cfg := Config{BatchSize: 50, PollInterval: time.Millisecond, MaxRetries: 5}
	shutdownCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), "anomaly.detected", "validator", handler, cfg, shutdownCh)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, _ := bus.XLen(context.Background(), streaming.DLQStream("anomaly.detected"))
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(shutdownCh)
	<-done

	mu.Lock()
	gotAttempts := attempts
	mu.Unlock()
	if gotAttempts < 5 {
		t.Fatalf("expected at least 5 attempts before DLQ, got %d", gotAttempts)
	}

	entries, _ := bus.XRead(context.Background(), streaming.DLQStream("anomaly.detected"), "0-0", 10)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one DLQ entry, got %d", len(entries))
	}
	if entries[0].Payload["entry_id"] != "1-0" {
		t.Fatalf("dlq entry_id = %q, want the original entry id", entries[0].Payload["entry_id"])
	}
	if entries[0].Payload["error"] == "" {
		t.Fatalf("dlq entry missing error description")
	}

	cursor, ok, _ := kv.Get(context.Background(), streaming.CursorKey("validator.anomaly.detected"))
	if !ok || cursor != "1-0" {
		t.Fatalf("cursor should have advanced past the DLQ'd entry, got %q", cursor)
	}
}
