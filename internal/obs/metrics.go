// Package obs provides the Metrics + DLQ Inspector surface: Prometheus
// collectors (for scraping), an IncrKV helper that writes counters under
// the `metrics.` KV prefix (rendered by the admin text endpoint), and DLQ
// peek/size inspection over the Bus. The Prometheus collectors are not
// copied into KV; only IncrKV writes there.
package obs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clduab11/pricehawk/internal/streaming"
)

// Metrics bundles the Prometheus collectors the core increments and the
// KV mirror used by the admin surface.
type Metrics struct {
	kv streaming.KV

	AnomaliesDetected  *prometheus.CounterVec
	AnomaliesValidated *prometheus.CounterVec
	AnomaliesRejected  prometheus.Counter
	ModelCalls         *prometheus.CounterVec
	CircuitOpens       *prometheus.CounterVec
	NotificationsSent  *prometheus.CounterVec
	DLQEntries         *prometheus.CounterVec
	HandlerLatency     *prometheus.HistogramVec
}

// New registers collectors against reg and binds kv for the text-metrics
// mirror. Pass a fresh prometheus.NewRegistry() per process.
func New(reg prometheus.Registerer, kv streaming.KV) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		kv: kv,
		AnomaliesDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricehawk_anomalies_detected_total",
			Help: "Pricing anomalies read off the detected stream.",
		}, []string{"anomaly_type"}),
		AnomaliesValidated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricehawk_anomalies_validated_total",
			Help: "Anomalies confirmed as glitches by the AI validator.",
		}, []string{"glitch_type"}),
		AnomaliesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "pricehawk_anomalies_rejected_total",
			Help: "Anomalies the validator did not confirm as glitches.",
		}),
		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricehawk_model_calls_total",
			Help: "Model endpoint calls by model id and outcome.",
		}, []string{"model_id", "outcome"}),
		CircuitOpens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricehawk_circuit_opens_total",
			Help: "Circuit breaker open transitions by model id.",
		}, []string{"model_id"}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricehawk_notifications_sent_total",
			Help: "Channel sends by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DLQEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricehawk_dlq_entries_total",
			Help: "Entries routed to a dead-letter stream.",
		}, []string{"stream"}),
		HandlerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricehawk_handler_latency_seconds",
			Help:    "Handler invocation latency by stream.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stream"}),
	}
}

// IncrKV increments a KV-mirrored named counter, used for the admin text
// endpoint's "metrics.{name}[.tag=value]" keys; best-effort, errors are
// swallowed because metrics must never block the hot path.
func (m *Metrics) IncrKV(ctx context.Context, name string, tags map[string]string) {
	key := streaming.KeyMetricsPrefix + name
	for k, v := range tags {
		key += fmt.Sprintf(".%s=%s", k, v)
	}
	_, _ = m.kv.Incr(ctx, key, 0)
}
