package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})

	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Authentication attempts by credential scheme and outcome.",
		},
		[]string{"scheme", "outcome"},
	)

	rateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the tenant rate limiter.",
		},
		[]string{"class"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		readyGauge,
		authAttemptsTotal,
		rateLimitRejectionsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// ObserveAuthAttempt counts one authentication attempt.
func ObserveAuthAttempt(scheme, outcome string) {
	authAttemptsTotal.WithLabelValues(scheme, outcome).Inc()
}

// ObserveRateLimitRejection counts one rejected request per operation class.
func ObserveRateLimitRejection(class string) {
	rateLimitRejectionsTotal.WithLabelValues(class).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses path parameters so metric cardinality stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	// /v1/credentials/{id} and /v1/credentials/{id}/rotate
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "credentials" && parts[3] != "" {
		parts[3] = ":id"
		return strings.Join(parts, "/")
	}
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "identities" && parts[3] != "" {
		parts[3] = ":id"
		return strings.Join(parts, "/")
	}
	return path
}

// statusWriter records the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
