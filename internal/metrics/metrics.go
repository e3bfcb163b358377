// Package metrics exposes Prometheus collectors for the feed crawler.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpRetriesTotal           *prometheus.CounterVec
	rateLimitedTotal           *prometheus.CounterVec
	breakerRejectionsTotal     *prometheus.CounterVec
	browserFallbacksTotal      *prometheus.CounterVec
	domainsTotal               *prometheus.CounterVec
	feedsConfirmedTotal        *prometheus.CounterVec
	entriesFetchedTotal        prometheus.Counter
	recordsExtractedTotal      *prometheus.CounterVec
	runDurationSeconds         prometheus.Gauge
	lastRunTimestampSeconds    *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_http_requests_total",
				Help: "Total number of outbound HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedcrawler_http_request_duration_seconds",
				Help:    "Histogram of outbound HTTP request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		)

		httpRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_http_retries_total",
				Help: "Total number of retried HTTP attempts, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_rate_limited_total",
				Help: "Total number of 429 responses, labeled by site.",
			},
			[]string{"site"},
		)

		breakerRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_breaker_rejections_total",
				Help: "Requests suppressed by an open rate-limit breaker, labeled by site.",
			},
			[]string{"site"},
		)

		browserFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_browser_fallbacks_total",
				Help: "Headless browser fallbacks, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		domainsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_domains_total",
				Help: "Domains processed by discovery, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		feedsConfirmedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_feeds_confirmed_total",
				Help: "Confirmed feeds, labeled by the discovery strategy that found them.",
			},
			[]string{"strategy"},
		)

		entriesFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedcrawler_entries_fetched_total",
				Help: "Total number of feed entries collected.",
			},
		)

		recordsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedcrawler_records_extracted_total",
				Help: "Records extracted, labeled by whether a length was found.",
			},
			[]string{"has_length"},
		)

		runDurationSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedcrawler_run_duration_seconds",
				Help: "Wall time of the last pipeline run.",
			},
		)

		lastRunTimestampSeconds = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedcrawler_last_run_timestamp_seconds",
				Help: "Unix time of the last pipeline run, labeled by status.",
			},
			[]string{"status"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveHTTPRequest records one outbound request. code 0 means a transport error.
func ObserveHTTPRequest(method string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRetry counts a retried attempt for the site of rawURL.
func ObserveRetry(rawURL string) {
	Init()
	httpRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRateLimited counts a 429 for the site of rawURL.
func ObserveRateLimited(rawURL string) {
	Init()
	rateLimitedTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveBreakerRejection counts a request suppressed by an open breaker.
func ObserveBreakerRejection(rawURL string) {
	Init()
	breakerRejectionsTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveBrowserFallback counts a headless fallback by outcome
// ("rendered", "timeout", "error").
func ObserveBrowserFallback(outcome string) {
	Init()
	browserFallbacksTotal.WithLabelValues(outcome).Inc()
}

// ObserveDomain counts a domain discovery outcome ("feeds", "no_feeds", "invalid").
func ObserveDomain(outcome string) {
	Init()
	domainsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFeedsConfirmed adds n confirmed feeds for strategy.
func ObserveFeedsConfirmed(strategy string, n int) {
	Init()
	if n > 0 {
		feedsConfirmedTotal.WithLabelValues(strategy).Add(float64(n))
	}
}

// ObserveEntries adds n fetched entries.
func ObserveEntries(n int) {
	Init()
	if n > 0 {
		entriesFetchedTotal.Add(float64(n))
	}
}

// ObserveRecord counts one extracted record.
func ObserveRecord(hasLength bool) {
	Init()
	recordsExtractedTotal.WithLabelValues(strconv.FormatBool(hasLength)).Inc()
}

// ObserveRun records the duration and completion time of a run.
func ObserveRun(status string, started, finished time.Time) {
	Init()
	runDurationSeconds.Set(finished.Sub(started).Seconds())
	lastRunTimestampSeconds.WithLabelValues(status).Set(float64(finished.Unix()))
}

// Push sends the default registry to a Prometheus Pushgateway under job.
// An empty gatewayURL is a no-op.
func Push(ctx context.Context, gatewayURL, job string) error {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil
	}
	Init()
	if job == "" {
		job = "yacht_feeds"
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
