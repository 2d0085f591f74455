// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvesterRecordsTotal           *prometheus.CounterVec
	harvesterSkipsTotal             *prometheus.CounterVec
	harvesterErrorsTotal            *prometheus.CounterVec
	translationRequestsTotal        *prometheus.CounterVec
	translationRequestDuration      *prometheus.HistogramVec
	httpRequestsTotal               *prometheus.CounterVec
	httpRequestDurationSeconds      *prometheus.HistogramVec
	feedPollsTotal                  *prometheus.CounterVec
	authorityLookupsTotal           *prometheus.CounterVec
	crawlerPagesTotal               *prometheus.CounterVec
	conversionTaskletsRunning       prometheus.Gauge
	harvesterRateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Skip reasons tracked by ObserveSkip.
const (
	SkipExclusionFilter = "exclusion_filter"
	SkipOnlineFirst     = "online_first"
	SkipEarlyView       = "early_view"
	SkipPreviouslyDone  = "previously_delivered"
	SkipFeedItemSeen    = "feed_item_seen"
	SkipOutsideWindow   = "outside_update_window"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_records_total",
				Help: "Total number of bibliographic records generated, labeled by journal and delivery mode.",
			},
			[]string{"journal", "mode"},
		)

		harvesterSkipsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_skips_total",
				Help: "Total number of deliberately skipped items, labeled by journal and reason.",
			},
			[]string{"journal", "reason"},
		)

		harvesterErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_errors_total",
				Help: "Total number of per-item harvest errors, labeled by journal and error kind.",
			},
			[]string{"journal", "kind"},
		)

		translationRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "translation_requests_total",
				Help: "Total requests to the translation service, labeled by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		)

		translationRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "translation_request_duration_seconds",
				Help:    "Histogram of translation service latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		feedPollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_feed_polls_total",
				Help: "Total RSS/Atom feed polls, labeled by journal and outcome.",
			},
			[]string{"journal", "outcome"},
		)

		authorityLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_authority_lookups_total",
				Help: "Total author authority lookups, labeled by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		)

		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_crawl_pages_total",
				Help: "Total pages discovered by the site crawler, labeled by site and disposition.",
			},
			[]string{"site", "disposition"},
		)

		conversionTaskletsRunning = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_conversion_tasklets_running",
				Help: "Number of conversion tasklets currently executing.",
			},
		)

		harvesterRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of politeness and service rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord counts one generated record for a journal.
func ObserveRecord(journal, mode string) {
	harvesterRecordsTotal.WithLabelValues(journal, mode).Inc()
}

// ObserveSkip counts one deliberate skip for a journal.
func ObserveSkip(journal, reason string) {
	harvesterSkipsTotal.WithLabelValues(journal, reason).Inc()
}

// ObserveError counts one per-item harvest error for a journal.
func ObserveError(journal, kind string) {
	harvesterErrorsTotal.WithLabelValues(journal, kind).Inc()
}

// ObserveTranslation records one translation service round trip.
func ObserveTranslation(endpoint string, code int, duration time.Duration) {
	translationRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	translationRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the served-HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFeedPoll counts one feed poll outcome (harvested, unchanged, failed).
func ObserveFeedPoll(journal, outcome string) {
	feedPollsTotal.WithLabelValues(journal, outcome).Inc()
}

// ObserveAuthorityLookup counts one authority lookup (hit, miss, error).
func ObserveAuthorityLookup(backend, outcome string) {
	authorityLookupsTotal.WithLabelValues(backend, outcome).Inc()
}

// ObserveCrawlPage counts one crawled page by disposition (harvested, traversed, filtered).
func ObserveCrawlPage(site, disposition string) {
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), disposition).Inc()
}

// IncTaskletsRunning increments the running tasklet gauge.
func IncTaskletsRunning() {
	conversionTaskletsRunning.Inc()
}

// DecTaskletsRunning decrements the running tasklet gauge.
func DecTaskletsRunning() {
	conversionTaskletsRunning.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	harvesterRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
