// Package metrics exposes Prometheus collectors for the scraper.
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
	scraperPagesTotal             *prometheus.CounterVec
	scraperLinksTotal             prometheus.Counter
	scraperReviewsTotal           *prometheus.CounterVec
	scraperChallengesTotal        *prometheus.CounterVec
	scraperRetriesTotal           prometheus.Counter
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wescrape_pages_total",
				Help: "Total number of pages navigated, labeled by site, kind and status.",
			},
			[]string{"site", "kind", "status"},
		)

		scraperLinksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wescrape_links_total",
				Help: "Total number of review links collected from listings.",
			},
		)

		scraperReviewsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wescrape_reviews_total",
				Help: "Total number of review pages scraped, labeled by status.",
			},
			[]string{"status"},
		)

		scraperChallengesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wescrape_challenges_total",
				Help: "Total number of bot challenges encountered, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scraperRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "wescrape_retries_total",
				Help: "Total number of detail page retries.",
			},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wescrape_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObservePage counts one navigation. kind is "listing" or "detail".
func ObservePage(site, kind, status string) {
	Init()
	scraperPagesTotal.WithLabelValues(SanitizeSite(site), kind, status).Inc()
}

// AddLinks adds n collected links.
func AddLinks(n int) {
	Init()
	if n > 0 {
		scraperLinksTotal.Add(float64(n))
	}
}

// ObserveReview counts a scraped review with status "ok" or "error".
func ObserveReview(status string) {
	Init()
	scraperReviewsTotal.WithLabelValues(status).Inc()
}

// ObserveChallenge counts a challenge by outcome ("cleared", "cooldown").
func ObserveChallenge(outcome string) {
	Init()
	scraperChallengesTotal.WithLabelValues(outcome).Inc()
}

// IncRetries counts a detail retry.
func IncRetries() {
	Init()
	scraperRetriesTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
