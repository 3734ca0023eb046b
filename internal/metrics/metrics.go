package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelflife_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelflife_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelflife_sweeps_total",
			Help: "Reminder sweeps by outcome",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelflife_sweep_duration_seconds",
			Help:    "Wall time of a full reminder sweep",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	productsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelflife_products_scanned_total",
			Help: "Product documents read by sweeps",
		},
	)

	productsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelflife_products_skipped_total",
			Help: "Product documents skipped by validation, by reason",
		},
		[]string{"reason"},
	)

	productsMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelflife_products_matched_total",
			Help: "Products that hit a reminder milestone",
		},
	)

	emailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelflife_emails_total",
			Help: "Reminder emails by delivery status",
		},
		[]string{"status"},
	)

	emailLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelflife_email_send_seconds",
			Help:    "Time spent handing one email to the mail provider",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	lastSweepSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelflife_last_sweep_success_timestamp_seconds",
			Help: "Unix time of the last sweep that scanned products",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelflife_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelflife_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"path"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSweep records the outcome of one sweep: "completed", "already_ran",
// "in_progress" or "error".
func RecordSweep(result string, duration time.Duration) {
	sweepsTotal.WithLabelValues(result).Inc()
	if result == "completed" {
		sweepDuration.Observe(duration.Seconds())
		lastSweepSuccess.SetToCurrentTime()
	}
}

// RecordScanned adds n to the scanned product counter.
func RecordScanned(n int) {
	productsScanned.Add(float64(n))
}

// RecordSkipped counts one product skipped for reason.
func RecordSkipped(reason string) {
	productsSkipped.WithLabelValues(reason).Inc()
}

// RecordMatched adds n to the matched product counter.
func RecordMatched(n int) {
	productsMatched.Add(float64(n))
}

// RecordEmail records a delivery attempt with status "sent" or "failed".
func RecordEmail(status string, latency time.Duration) {
	emailsTotal.WithLabelValues(status).Inc()
	emailLatency.Observe(latency.Seconds())
}

// SetBreakerState publishes the numeric state of the named circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(path string) {
	rateLimitRejections.WithLabelValues(path).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
