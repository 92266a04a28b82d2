// Package metrics provides Prometheus instrumentation for the risk quote
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuotesTotal counts engine evaluations by operation and outcome
	// (valid, or the error kind that rejected the input).
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_quotes_total",
		Help: "Total number of risk quotes computed",
	}, []string{"operation", "outcome"})

	// QuoteLatency tracks quote handling latency, store reads included.
	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synth_quote_latency_seconds",
		Help:    "Quote latency in seconds",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"operation"})

	// TrackedPools tracks the number of pools with stored parameters.
	TrackedPools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synth_tracked_pools",
		Help: "Number of pools known to the service",
	})

	// SnapshotUpdates counts pool, price and position snapshot writes.
	SnapshotUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_snapshot_updates_total",
		Help: "Snapshot writes by kind",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synth_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// RateLimited counts requests rejected by the quote rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synth_rate_limited_total",
		Help: "Quote requests rejected by the rate limiter",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synth_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Outcome maps a quote result to the outcome label.
func Outcome(valid bool, errorKind string) string {
	if valid {
		return "valid"
	}
	if errorKind == "" {
		return "incomplete"
	}
	return errorKind
}
