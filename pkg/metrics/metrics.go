// Package metrics exposes the server's Prometheus instrumentation: one
// registry wired to the negotiation, batching, and router components so
// their counters and gauges show up on a single /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter/gauge/histogram the server publishes.
type Metrics struct {
	Registry *prometheus.Registry

	EnvelopesAuthenticated *prometheus.CounterVec
	AuthRejections         *prometheus.CounterVec

	InteractionTransitions *prometheus.CounterVec
	TrustScoreRecomputes   prometheus.Counter

	BatchesSubmitted  prometheus.Counter
	BatchesFailed     prometheus.Counter
	BatchBufferSize   prometheus.Gauge
	BatchSubmitLatency prometheus.Histogram

	MessagesQueued  prometheus.Counter
	MessagesPolled  prometheus.Counter
	PushStreamsOpen prometheus.Gauge
}

// New builds a Metrics bundle registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		EnvelopesAuthenticated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "envelopes_authenticated_total",
			Help:      "Envelopes that passed the authentication pipeline, by message type.",
		}, []string{"type"}),

		AuthRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "auth_rejections_total",
			Help:      "Envelopes rejected by the authentication pipeline, by error code.",
		}, []string{"code"}),

		InteractionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "interaction_transitions_total",
			Help:      "Negotiation state transitions, by resulting status.",
		}, []string{"status"}),

		TrustScoreRecomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "trust_score_recomputes_total",
			Help:      "Number of times an agent's trust score was recomputed.",
		}),

		BatchesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "batches_submitted_total",
			Help:      "Batches successfully submitted to the relayer.",
		}),

		BatchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "batches_failed_total",
			Help:      "Batch submissions that failed and were re-queued.",
		}),

		BatchBufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aeep",
			Name:      "batch_buffer_size",
			Help:      "Current number of interaction hashes buffered for the next batch.",
		}),

		BatchSubmitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aeep",
			Name:      "batch_submit_latency_seconds",
			Help:      "Time spent submitting a batch root to the relayer.",
			Buckets:   prometheus.DefBuckets,
		}),

		MessagesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "messages_queued_total",
			Help:      "Envelopes accepted into the message queue.",
		}),

		MessagesPolled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aeep",
			Name:      "messages_polled_total",
			Help:      "Messages returned to a polling recipient.",
		}),

		PushStreamsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aeep",
			Name:      "push_streams_open",
			Help:      "Currently open push-stream subscriptions.",
		}),
	}
}
