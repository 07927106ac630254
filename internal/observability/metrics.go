// Package observability provides Prometheus metrics for the manifold
// service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LLMBuckets defines histogram buckets suited for LLM inference
// latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts inbound HTTP requests by path and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifold_requests_total",
			Help: "Inbound HTTP requests",
		},
		[]string{"path", "status"},
	)

	// ProviderRequestsTotal counts outbound vendor calls by outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifold_provider_requests_total",
			Help: "Vendor API calls",
		},
		[]string{"pipeline", "model", "outcome"},
	)

	// ProviderLatency records vendor call latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "manifold_provider_latency_seconds",
			Help:    "Vendor API latency",
			Buckets: LLMBuckets,
		},
		[]string{"pipeline", "model"},
	)

	// StreamsActive tracks the number of fragment streams currently
	// being relayed to clients.
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "manifold_streams_active",
			Help: "Active fragment streams",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		StreamsActive,
	)
}

// ObserveProviderCall records one vendor call's outcome and latency.
func ObserveProviderCall(pipeline, model, outcome string, elapsed time.Duration) {
	ProviderRequestsTotal.WithLabelValues(pipeline, model, outcome).Inc()
	ProviderLatency.WithLabelValues(pipeline, model).Observe(elapsed.Seconds())
}
