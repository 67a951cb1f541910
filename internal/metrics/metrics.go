// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal          *prometheus.CounterVec
	fetchRetriesTotal     prometheus.Counter
	robotsBlockedTotal    prometheus.Counter
	fetchDurationSeconds  prometheus.Histogram
	itemsExtractedTotal   *prometheus.CounterVec
	itemsPersistedTotal   *prometheus.CounterVec
	rateLimitDelaySeconds prometheus.Histogram
	runsTotal             *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "Total fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_fetch_retries_total",
				Help: "Total fetch retries after 429/500 or transport errors.",
			},
		)
		robotsBlockedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_robots_blocked_total",
				Help: "Total requests dropped by robots.txt policy.",
			},
		)
		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Wall-clock duration of successful fetches including retries.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)
		itemsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_extracted_total",
				Help: "Total items extracted by spiders, labeled by source.",
			},
			[]string{"source"},
		)
		itemsPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_persisted_total",
				Help: "Pipeline outcomes per item, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)
		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Delay introduced by the anti-bot middleware per request.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Completed crawl runs, labeled by source and status.",
			},
			[]string{"source", "status"},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one completed fetch call.
func ObserveFetch(outcome string, d time.Duration) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		fetchDurationSeconds.Observe(d.Seconds())
	}
}

// ObserveRetry counts a backoff-and-retry cycle.
func ObserveRetry() {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.Inc()
}

// ObserveRobotsBlocked counts a request dropped by robots policy.
func ObserveRobotsBlocked() {
	if robotsBlockedTotal == nil {
		return
	}
	robotsBlockedTotal.Inc()
}

// ObserveItemsExtracted counts items produced by a spider parse.
func ObserveItemsExtracted(source string, n int) {
	if itemsExtractedTotal == nil || n == 0 {
		return
	}
	itemsExtractedTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveItemOutcome counts one pipeline decision: persisted, skipped, failed.
func ObserveItemOutcome(source, outcome string) {
	if itemsPersistedTotal == nil {
		return
	}
	itemsPersistedTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRateLimitDelay records time spent waiting in the anti-bot layer.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// ObserveRun records a finished crawl run.
func ObserveRun(source, status string) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(source, status).Inc()
}
