package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the gateway-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "session_gateway",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "session_gateway",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "session_gateway",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	bootRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "session_gateway",
			Subsystem: "boot",
			Name:      "runs_total",
			Help:      "Total number of boot runs by resulting decision step.",
		},
		[]string{"decision", "cached"},
	)

	bootDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "session_gateway",
			Subsystem: "boot",
			Name:      "run_duration_seconds",
			Help:      "Duration of non-cached boot runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"decision"},
	)

	validationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "session_gateway",
			Subsystem: "identity",
			Name:      "validation_outcomes_total",
			Help:      "Total session validation outcomes by classification.",
		},
		[]string{"outcome"},
	)

	categoryFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "session_gateway",
			Subsystem: "gates",
			Name:      "category_fallbacks_total",
			Help:      "Profiles that reached the terminal category fallback.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bootRuns,
		bootDuration,
		validationOutcomes,
		categoryFallbacks,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordBootRun records a completed boot run.
func RecordBootRun(decision string, duration time.Duration, cached bool) {
	c := "false"
	if cached {
		c = "true"
	}
	bootRuns.WithLabelValues(decision, c).Inc()
	if !cached {
		if duration <= 0 {
			duration = time.Millisecond
		}
		bootDuration.WithLabelValues(decision).Observe(duration.Seconds())
	}
}

// RecordValidationOutcome records a session validation classification.
func RecordValidationOutcome(outcome string) {
	validationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCategoryFallback records a profile that reached the terminal category
// fallback.
func RecordCategoryFallback() {
	categoryFallbacks.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "clients" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/clients"
	}
	rest := append([]string{"clients", ":client"}, parts[2:]...)
	return "/" + strings.Join(rest, "/")
}
