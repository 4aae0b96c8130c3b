package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal   *prometheus.CounterVec
	AuthzDecisionDuration *prometheus.HistogramVec

	// Rate limit metrics
	RateLimitRejectionsTotal    *prometheus.CounterVec
	RateLimitBackendErrorsTotal *prometheus.CounterVec

	// Mutation metrics
	MutationsTotal        *prometheus.CounterVec
	StoreConflictsTotal   *prometheus.CounterVec
	MigrationRecordsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familyaccess_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "familyaccess_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "familyaccess_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 6),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familyaccess_authz_decisions_total",
				Help: "Total number of patient access decisions",
			},
			[]string{"capability", "outcome", "reason"},
		),
		AuthzDecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "familyaccess_authz_decision_duration_seconds",
				Help:    "Patient access decision latency including store reads",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"outcome"},
		),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familyaccess_ratelimit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
		RateLimitBackendErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familyaccess_ratelimit_backend_errors_total",
				Help: "Total number of rate limiter backend failures",
			},
			[]string{"limiter"},
		),

		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familyaccess_mutations_total",
				Help: "Total number of membership mutations",
			},
			[]string{"operation", "result"},
		),
		StoreConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familyaccess_store_conflicts_total",
				Help: "Total number of optimistic concurrency conflicts",
			},
			[]string{"operation"},
		),
		MigrationRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "familyaccess_migration_records_total",
				Help: "Per-patient permission records processed by migrations",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionDuration,
		m.RateLimitRejectionsTotal,
		m.RateLimitBackendErrorsTotal,
		m.MutationsTotal,
		m.StoreConflictsTotal,
		m.MigrationRecordsTotal,
	)

	return m
}

// The Record* helpers are safe to call on a nil *Metrics so callers can run
// without a registry.

// RecordDecision counts a patient access decision.
func (m *Metrics) RecordDecision(capability string, allowed bool, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(capability, outcome, reason).Inc()
	m.AuthzDecisionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(limiter).Inc()
}

// RecordRateLimitError counts a limiter backend failure.
func (m *Metrics) RecordRateLimitError(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitBackendErrorsTotal.WithLabelValues(limiter).Inc()
}

// RecordMutation counts a mutation outcome. result is "ok" or an error code.
func (m *Metrics) RecordMutation(operation, result string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordConflict counts a lost optimistic write.
func (m *Metrics) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.StoreConflictsTotal.WithLabelValues(operation).Inc()
}

// RecordMigration adds the totals of one migration run.
func (m *Metrics) RecordMigration(created, skipped, failed int) {
	if m == nil {
		return
	}
	m.MigrationRecordsTotal.WithLabelValues("created").Add(float64(created))
	m.MigrationRecordsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.MigrationRecordsTotal.WithLabelValues("error").Add(float64(failed))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel prefers the mux path template so ids do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
