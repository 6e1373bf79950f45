// Package obs exposes Prometheus metrics for the HTTP layer and the cabinet
// workflows.
package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "save4223_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "save4223_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "save4223_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// AuthorizeTotal counts authorization decisions by result.
	AuthorizeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "save4223_authorize_total",
			Help: "Cabinet authorization decisions.",
		},
		[]string{"result"},
	)

	// ReconcileTransactions counts applied inventory transactions by action.
	ReconcileTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "save4223_reconcile_transactions_total",
			Help: "Inventory transactions applied by session reconciliation.",
		},
		[]string{"action"},
	)

	// ReconcileSkipped counts tags skipped during reconciliation by reason.
	ReconcileSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "save4223_reconcile_skipped_total",
			Help: "RFID tags skipped by session reconciliation.",
		},
		[]string{"reason"},
	)

	// SessionsExpired counts sessions moved to TIMEOUT by the sweeper.
	SessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "save4223_sessions_expired_total",
		Help: "Cabinet sessions expired by the timeout sweeper.",
	})

	initOnce sync.Once
)

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			AuthorizeTotal, ReconcileTransactions, ReconcileSkipped, SessionsExpired,
		)
	})
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count, latency and in-flight requests.
// Requests are labelled with the matched route pattern rather than the raw
// path so ids do not blow up label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
