package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSize      *prometheus.HistogramVec
	HTTPActiveConnections *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitExceededTotal *prometheus.CounterVec
	RateLimitErrorsTotal   *prometheus.CounterVec

	// Feed metrics
	FeedPageDuration   *prometheus.HistogramVec
	FeedSourceFailures *prometheus.CounterVec
	FeedDroppedItems   *prometheus.CounterVec

	// Reputation metrics
	ScoreCacheHits       prometheus.Counter
	ScoreCacheMisses     prometheus.Counter
	ScoreBatchSize       prometheus.Histogram
	ScoreBatchesTotal    *prometheus.CounterVec
	ScoreFallbacksTotal  *prometheus.CounterVec
	ScorePersistTotal    *prometheus.CounterVec
	ScoreWaitersCanceled prometheus.Counter
	ScoreAdvisoryDropped prometheus.Counter

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPResponseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),
			RateLimitErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_errors_total",
					Help: "Rate limiter backend errors; requests were allowed through",
				},
				[]string{"operation"},
			),

			FeedPageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_page_duration_seconds",
					Help:    "Time to assemble a merged feed page in seconds",
					Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"kind"},
			),
			FeedSourceFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_source_failures_total",
					Help: "Feed source fetches that failed or timed out",
				},
				[]string{"source"},
			),
			FeedDroppedItems: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_dropped_items_total",
					Help: "Candidate feed rows dropped during merge",
				},
				[]string{"reason"},
			),

			ScoreCacheHits: promauto.NewCounter(prometheus.CounterOpts{
				Name: "reputation_cache_hits_total",
				Help: "Score lookups served from the local cache",
			}),
			ScoreCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
				Name: "reputation_cache_misses_total",
				Help: "Score lookups that joined or started a batch",
			}),
			ScoreBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "reputation_batch_size",
				Help:    "Number of user ids per counter batch",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 25, 50},
			}),
			ScoreBatchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reputation_batches_total",
					Help: "Counter batch calls by outcome",
				},
				[]string{"outcome"},
			),
			ScoreFallbacksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reputation_fallbacks_total",
					Help: "Single-user counter fetches by outcome",
				},
				[]string{"outcome"},
			),
			ScorePersistTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reputation_persist_total",
					Help: "Persistence advisories by outcome",
				},
				[]string{"outcome"},
			),
			ScoreWaitersCanceled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "reputation_waiters_canceled_total",
				Help: "Score callers that gave up before their batch resolved",
			}),
			ScoreAdvisoryDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "reputation_advisories_dropped_total",
				Help: "Persistence advisories dropped because the queue was full",
			}),

			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}
