// Package metrics exposes Prometheus collectors for the discovery service.
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
	discoveryRunsTotal         *prometheus.CounterVec
	discoveryPagesTotal        *prometheus.CounterVec
	discoveryProbesTotal       *prometheus.CounterVec
	discoveryMirroredBytes     *prometheus.CounterVec
	discoveryActiveWorkers     prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		discoveryRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_runs_total",
				Help: "Total number of per-key discovery runs, labeled by key and result.",
			},
			[]string{"key", "result"},
		)

		discoveryPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_pages_total",
				Help: "Total number of pages crawled, labeled by site.",
			},
			[]string{"site"},
		)

		discoveryProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_probes_total",
				Help: "Total number of metadata probes, labeled by method and verdict.",
			},
			[]string{"method", "verdict"},
		)

		discoveryMirroredBytes = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_mirrored_bytes_total",
				Help: "Total bytes written into the mirror tree, labeled by key.",
			},
			[]string{"key"},
		)

		discoveryActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "discovery_active_workers",
				Help: "Number of workers currently syncing a source.",
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

// ObserveRun increments the per-key run counter for the given result.
func ObserveRun(key, result string) {
	discoveryRunsTotal.WithLabelValues(key, result).Inc()
}

// ObservePage increments the crawled page counter.
func ObservePage(site string) {
	discoveryPagesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveProbe increments the probe counter for the given method and verdict.
func ObserveProbe(method, verdict string) {
	discoveryProbesTotal.WithLabelValues(method, verdict).Inc()
}

// ObserveMirroredBytes records bytes written into the mirror tree.
func ObserveMirroredBytes(key string, n int64) {
	if n > 0 {
		discoveryMirroredBytes.WithLabelValues(key).Add(float64(n))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	discoveryActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	discoveryActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
