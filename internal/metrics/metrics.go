// Package metrics exposes Prometheus collectors for the crawl and search service.
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
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerFetchSeconds        prometheus.Histogram
	crawlerSessionsTotal       *prometheus.CounterVec
	crawlerActiveWorkers       prometheus.Gauge
	crawlerQueueRejectedTotal  prometheus.Counter
	searchQueriesTotal         *prometheus.CounterVec
	searchResults              prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_pages_total",
				Help: "Pages processed by the frontier, labeled by site and outcome.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "websearch_fetch_duration_seconds",
				Help:    "Latency of successful page fetches.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
		)

		crawlerSessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_sessions_total",
				Help: "Crawl sessions finished, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "websearch_active_workers",
				Help: "Run workers currently crawling a session.",
			},
		)

		crawlerQueueRejectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "websearch_queue_rejected_total",
				Help: "Crawl requests rejected because the queue was full.",
			},
		)

		searchQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websearch_search_queries_total",
				Help: "Search queries answered, labeled by match mode.",
			},
			[]string{"mode"},
		)

		searchResults = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "websearch_search_results",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
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
	Init()
	return promhttp.Handler()
}

// ObservePage counts one frontier outcome for pageURL.
func ObservePage(pageURL, status string, bytesFetched int) {
	Init()
	site := SanitizeSite(pageURL)
	crawlerPagesTotal.WithLabelValues(site, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveFetch records the latency of a successful fetch.
func ObserveFetch(d time.Duration) {
	Init()
	crawlerFetchSeconds.Observe(d.Seconds())
}

// ObserveSession counts a finished crawl session.
func ObserveSession(status string) {
	Init()
	crawlerSessionsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveQueueRejected counts a crawl request refused by a full queue.
func ObserveQueueRejected() {
	Init()
	crawlerQueueRejectedTotal.Inc()
}

// ObserveSearch records one answered query.
func ObserveSearch(mode string, results int) {
	Init()
	searchQueriesTotal.WithLabelValues(mode).Inc()
	searchResults.Observe(float64(results))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
