// Package telemetry exposes Prometheus collectors for the service.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	channelFetchesTotal        *prometheus.CounterVec
	entriesDiscoveredTotal     prometheus.Counter
	downloadsTotal             *prometheus.CounterVec
	activeDownloads            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubesnatch_fetch_attempts_total",
				Help: "Total extraction attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		channelFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubesnatch_channel_fetches_total",
				Help: "Total channel fetches, labeled by final status.",
			},
			[]string{"status"},
		)

		entriesDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tubesnatch_entries_discovered_total",
				Help: "Total distinct entries merged into fetch accumulators.",
			},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubesnatch_downloads_total",
				Help: "Total download tasks finished, labeled by status.",
			},
			[]string{"status"},
		)

		activeDownloads = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tubesnatch_active_downloads",
				Help: "Number of download tasks currently running.",
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one bounded extraction attempt.
func ObserveFetchAttempt(strategy, outcome string) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveChannelFetch counts one completed channel fetch.
func ObserveChannelFetch(status string) {
	if channelFetchesTotal == nil {
		return
	}
	channelFetchesTotal.WithLabelValues(status).Inc()
}

// AddEntriesDiscovered counts newly merged entries.
func AddEntriesDiscovered(n int) {
	if entriesDiscoveredTotal == nil || n <= 0 {
		return
	}
	entriesDiscoveredTotal.Add(float64(n))
}

// ObserveDownload counts one finished download task.
func ObserveDownload(status string) {
	if downloadsTotal == nil {
		return
	}
	downloadsTotal.WithLabelValues(status).Inc()
}

// DownloadStarted adjusts the active-download gauge upward.
func DownloadStarted() {
	if activeDownloads == nil {
		return
	}
	activeDownloads.Inc()
}

// DownloadFinished adjusts the active-download gauge downward.
func DownloadFinished() {
	if activeDownloads == nil {
		return
	}
	activeDownloads.Dec()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
