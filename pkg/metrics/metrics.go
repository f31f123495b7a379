// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchCutoff       prometheus.Histogram
	SearchResultsCount prometheus.Histogram
	SearchTimeoutTotal prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	ReconcileBatchTotal    *prometheus.CounterVec
	ReconcileBatchDuration prometheus.Histogram
	ReconcileDocsTotal     *prometheus.CounterVec
	LastUpdateSeq          prometheus.Gauge

	TreeSize        prometheus.Gauge
	TreeTombstones  prometheus.Gauge
	SnapshotSaveSec prometheus.Histogram

	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, timeout, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		SearchCutoff: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_cutoff_tokens",
				Help:    "Resumable search cutoff (floor(len(suffixes)/3)+1) per query.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		SearchTimeoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_timeout_total",
				Help: "Total searches that hit their deadline before exhausting the candidate set.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		ReconcileBatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_batch_total",
				Help: "Total update-reconciler batch runs by outcome.",
			},
			[]string{"status"},
		),
		ReconcileBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconcile_batch_duration_seconds",
				Help:    "Duration of a single run_update_batch call.",
				Buckets: prometheus.DefBuckets,
			},
		),
		ReconcileDocsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_docs_total",
				Help: "Total documents reconciled by outcome (indexed, tombstoned, failed).",
			},
			[]string{"outcome"},
		),
		LastUpdateSeq: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "last_update_seq",
				Help: "Change-feed sequence number through which the index has been reconciled.",
			},
		),
		TreeSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "metric_tree_size",
				Help: "Number of live (non-tombstoned) fragments in the metric tree.",
			},
		),
		TreeTombstones: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "metric_tree_tombstones",
				Help: "Number of tombstoned fragments still occupying tree nodes.",
			},
		),
		SnapshotSaveSec: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snapshot_save_seconds",
				Help:    "Duration of atomic snapshot writes to disk.",
				Buckets: prometheus.DefBuckets,
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchCutoff,
		m.SearchResultsCount,
		m.SearchTimeoutTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReconcileBatchTotal,
		m.ReconcileBatchDuration,
		m.ReconcileDocsTotal,
		m.LastUpdateSeq,
		m.TreeSize,
		m.TreeTombstones,
		m.SnapshotSaveSec,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
