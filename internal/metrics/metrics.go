// Package metrics holds the Prometheus collectors of the service. All of
// them register on the default registry and are exposed by /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Source fetch metrics
	SourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcal_source_fetch_total",
			Help: "Source fetches by outcome (ok, partial, failed, disabled)",
		},
		[]string{"source", "outcome"},
	)

	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventcal_source_fetch_duration_seconds",
			Help:    "Duration of one source fetch in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)

	SourceEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventcal_source_events",
			Help: "Events returned by the last fetch of each source",
		},
		[]string{"source"},
	)

	// Aggregation metrics
	AggregateEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcal_aggregate_events",
			Help: "Events in the last merged result after dedup",
		},
	)

	AggregateDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcal_aggregate_duplicates_total",
			Help: "Events removed by dedup across all passes",
		},
	)

	AggregateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventcal_aggregate_duration_seconds",
			Help:    "Duration of one full aggregation pass in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcal_cache_hits_total",
			Help: "Requests served from the aggregation cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventcal_cache_misses_total",
			Help: "Requests that ran a fresh aggregation",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcal_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventcal_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcal_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// Export metrics
	ExportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcal_export_runs_total",
			Help: "Static export runs by result",
		},
		[]string{"result"},
	)
)

// RecordSourceFetch records one source outcome.
func RecordSourceFetch(source, outcome string, events int, duration time.Duration) {
	SourceFetchTotal.WithLabelValues(source, outcome).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	SourceEvents.WithLabelValues(source).Set(float64(events))
}

// RecordAggregate records a finished merge.
func RecordAggregate(merged, duplicates int, duration time.Duration) {
	AggregateEvents.Set(float64(merged))
	AggregateDuplicates.Add(float64(duplicates))
	AggregateDuration.Observe(duration.Seconds())
}

// RecordCache counts a cache lookup.
func RecordCache(hit bool) {
	if hit {
		CacheHits.Inc()
		return
	}
	CacheMisses.Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordExport counts one export run.
func RecordExport(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ExportRuns.WithLabelValues(result).Inc()
}
