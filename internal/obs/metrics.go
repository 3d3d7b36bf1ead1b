package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
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

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialgate_gate_decisions_total",
			Help: "Gate outcomes by gate and result.",
		},
		[]string{"gate", "outcome"},
	)

	rateLimitChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialgate_rate_limit_checks_total",
			Help: "Rate limit checks by limit type and result.",
		},
		[]string{"limit_type", "result"},
	)

	bestEffortFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trialgate_best_effort_failures_total",
			Help: "Absorbed infrastructure failures by operation.",
		},
		[]string{"operation"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trialgate_ready",
		Help: "1 when the last readiness probe succeeded.",
	})

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			gateDecisions, rateLimitChecks, bestEffortFailures, readyGauge,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GateDecision counts one gate outcome ("pass" or an error kind).
func GateDecision(gate, outcome string) {
	gateDecisions.WithLabelValues(gate, outcome).Inc()
}

// RateLimitCheck counts one limiter decision.
func RateLimitCheck(limitType, result string) {
	rateLimitChecks.WithLabelValues(limitType, result).Inc()
}

// BestEffortFailure counts a swallowed infrastructure error.
func BestEffortFailure(operation string) {
	bestEffortFailures.WithLabelValues(operation).Inc()
}

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

var knownPaths = map[string]struct{}{
	"/":                             {},
	"/healthz":                      {},
	"/readyz":                       {},
	"/metrics":                      {},
	"/v1/me":                        {},
	"/v1/auth/logout":               {},
	"/v1/hooks/pre-signup":          {},
	"/v1/hooks/pre-authentication": {},
}

// CanonicalPath bounds label cardinality: unknown paths collapse to "other".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

// Instrument records RPS, latency and in-flight requests.
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

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
