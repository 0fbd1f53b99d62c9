// Package metrics holds the Prometheus collectors exposed by the aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP-level metrics.
var (
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)
)

// Ingest-domain metrics.
var (
	// IngestEventsTotal is keyed by topic and outcome
	// (processed|invalid|retry|dead_letter), recorded by the worker pool.
	IngestEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Total number of events processed by the ingest pipeline",
		},
		[]string{"topic", "outcome"},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Current depth of the event queue",
		},
	)

	IngestWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_workers_active",
			Help: "Current number of running ingest workers",
		},
	)

	ApplicationUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "application_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordIngestOutcome increments the ingest_events_total counter for a topic/outcome pair.
func RecordIngestOutcome(topic, outcome string) {
	IngestEventsTotal.WithLabelValues(topic, outcome).Inc()
}
