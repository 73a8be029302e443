package obs

import (
	"context"
	"sort"
	"strings"

	"github.com/clduab11/pricehawk/internal/streaming"
)

// DLQInspector answers size/peek queries against dead-letter streams,
// used by the admin surface — never by the hot consume path.
type DLQInspector struct {
	bus streaming.Bus
}

// NewDLQInspector builds an inspector over bus.
func NewDLQInspector(bus streaming.Bus) *DLQInspector {
	return &DLQInspector{bus: bus}
}

// Size reports the entry count of stream's dead-letter queue.
func (d *DLQInspector) Size(ctx context.Context, stream string) (int64, error) {
	return d.bus.XLen(ctx, streaming.DLQStream(stream))
}

// Peek returns up to limit entries from the head of stream's dead-letter
// queue.
func (d *DLQInspector) Peek(ctx context.Context, stream string, limit int) ([]streaming.Entry, error) {
	return d.bus.XRead(ctx, streaming.DLQStream(stream), "0-0", limit)
}

// MetricsText renders every metrics.* KV key as a `name{...} value` line,
// sorted for stable output, per the external metrics-endpoint contract.
func MetricsText(ctx context.Context, kv streaming.KV) (string, error) {
	keys, err := kv.Keys(ctx, streaming.KeyMetricsPrefix+"*")
	if err != nil {
		return "", err
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		val, ok, err := kv.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		name, tags := splitMetricKey(key)
		if len(tags) == 0 {
			b.WriteString(name)
		} else {
			b.WriteString(name)
			b.WriteByte('{')
			for i, t := range tags {
				if i > 0 {
					b.WriteByte(',')
				}
				kv := strings.SplitN(t, "=", 2)
				if len(kv) == 2 {
					b.WriteString(kv[0])
					b.WriteString(`="`)
					b.WriteString(kv[1])
					b.WriteString(`"`)
				}
			}
			b.WriteByte('}')
		}
		b.WriteByte(' ')
		b.WriteString(val)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func splitMetricKey(key string) (name string, tags []string) {
	trimmed := strings.TrimPrefix(key, streaming.KeyMetricsPrefix)
	parts := strings.Split(trimmed, ".")
	return parts[0], parts[1:]
}
