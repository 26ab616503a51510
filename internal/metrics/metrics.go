// Package metrics exposes Prometheus collectors for the indexer service.
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
	deliveriesTotal            *prometheus.CounterVec
	ackFailuresTotal           *prometheus.CounterVec
	transportErrorsTotal       prometheus.Counter
	storeDurationSeconds       *prometheus.HistogramVec
	activeConsumers            prometheus.Gauge
	publishedTotal             *prometheus.CounterVec
	crawlerPagesTotal          *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_deliveries_total",
				Help: "Total number of deliveries handled, labeled by outcome and rejection reason.",
			},
			[]string{"outcome", "reason"},
		)

		ackFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_ack_failures_total",
				Help: "Total number of failed acknowledgements, labeled by kind (ack or nack).",
			},
			[]string{"kind"},
		)

		transportErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_transport_errors_total",
				Help: "Total number of errors reported while retrieving deliveries.",
			},
		)

		storeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_store_duration_seconds",
				Help:    "Histogram of sink store latencies, labeled by result.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"result"},
		)

		activeConsumers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_active_consumers",
				Help: "Number of consumer instances currently running.",
			},
		)

		publishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_published_total",
				Help: "Total number of crawl results published, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting for the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"site"},
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

// ObserveDelivery counts a handled delivery. reason is "none" for accepted ones.
func ObserveDelivery(accepted bool, reason string) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	deliveriesTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveAckFailure counts an acknowledgement that the transport refused.
func ObserveAckFailure(kind string) {
	ackFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveTransportError counts a delivery retrieval failure.
func ObserveTransportError() {
	transportErrorsTotal.Inc()
}

// ObserveStore records the latency of one sink call.
func ObserveStore(success bool, duration time.Duration) {
	result := "error"
	if success {
		result = "ok"
	}
	storeDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObservePublish counts a crawl result handed to a publisher.
func ObservePublish(status string) {
	publishedTotal.WithLabelValues(status).Inc()
}

// ObserveCrawl increments the crawled pages counter.
func ObserveCrawl(site string, status string) {
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveRateLimitDelay records how long a crawl waited for its host's limiter.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveConsumers increments the active consumers gauge.
func IncActiveConsumers() {
	activeConsumers.Inc()
}

// DecActiveConsumers decrements the active consumers gauge.
func DecActiveConsumers() {
	activeConsumers.Dec()
}
