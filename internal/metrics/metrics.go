// Package metrics exposes Prometheus collectors for the URL checker service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// URL outcome labels.
const (
	OutcomeCached  = "cached"
	OutcomeDated   = "dated"
	OutcomeUndated = "undated"
	OutcomeFailed  = "failed"
	OutcomeInvalid = "invalid"
)

var (
	urlsProcessedTotal         *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	cacheErrorsTotal           *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       prometheus.Histogram
	extractionsTotal           *prometheus.CounterVec
	hostPacingDelaySeconds     prometheus.Histogram
	inflightFetches            prometheus.Gauge
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		urlsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlchecker_urls_total",
				Help: "Total number of URLs processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlchecker_cache_lookups_total",
				Help: "Cache lookups, labeled by tier and result.",
			},
			[]string{"tier", "result"},
		)

		cacheErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlchecker_cache_errors_total",
				Help: "Distributed cache faults, labeled by operation.",
			},
			[]string{"op"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlchecker_fetch_attempts_total",
				Help: "HTTP fetch attempts, labeled by result (response, retryable, terminal).",
			},
			[]string{"result"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "urlchecker_fetch_duration_seconds",
				Help:    "Histogram of successful fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlchecker_extractions_total",
				Help: "Date extractions, labeled by source (header, body, none).",
			},
			[]string{"source"},
		)

		hostPacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "urlchecker_host_pacing_delay_seconds",
				Help:    "Histogram of launch delays imposed by per-host pacing.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "urlchecker_inflight_fetches",
				Help: "Number of URLs currently holding an admission slot.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlchecker_jobs_total",
				Help: "Total number of comparison jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "urlchecker_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveURL counts a finished URL.
func ObserveURL(outcome string) {
	Init()
	urlsProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup counts a lookup against a cache tier.
func ObserveCacheLookup(tier string, hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// ObserveCacheError counts a swallowed distributed cache fault.
func ObserveCacheError(op string) {
	Init()
	cacheErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveFetchAttempt counts a single HTTP attempt.
func ObserveFetchAttempt(result string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveFetchDuration records the latency of a successful fetch.
func ObserveFetchDuration(duration time.Duration) {
	Init()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveExtraction counts an extraction by date source.
func ObserveExtraction(source string) {
	Init()
	extractionsTotal.WithLabelValues(source).Inc()
}

// ObserveHostPacingDelay records how long a launch waited behind its host's
// pacing. Hosts are not labeled; sheets bring an open-ended set of them.
func ObserveHostPacingDelay(duration time.Duration) {
	Init()
	hostPacingDelaySeconds.Observe(duration.Seconds())
}

// IncInflight increments the admitted fetch gauge.
func IncInflight() {
	Init()
	inflightFetches.Inc()
}

// DecInflight decrements the admitted fetch gauge.
func DecInflight() {
	Init()
	inflightFetches.Dec()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
