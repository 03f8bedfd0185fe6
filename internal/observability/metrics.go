package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions  *prometheus.GaugeVec
	sessionsTotal   *prometheus.CounterVec
	queryTotal      *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	evictionsTotal  *prometheus.CounterVec
	cleanupFailures *prometheus.CounterVec
	cleanupTimeouts *prometheus.CounterVec
	bindFailures    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    *prometheus.Registry
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "warden_active_sessions",
					Help: "Current number of live sessions by registry type.",
				},
				[]string{"registry"},
			),
			sessionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_sessions_total",
					Help: "Total sessions created by registry type.",
				},
				[]string{"registry"},
			),
			queryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_queries_total",
					Help: "Total queries executed by registry type and status.",
				},
				[]string{"registry", "status"},
			),
			queryDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "warden_query_duration_seconds",
					Help:    "Query execution duration.",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
				},
				[]string{"registry"},
			),
			evictionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_evictions_total",
					Help: "Sessions evicted by the idle sweeper.",
				},
				[]string{"registry"},
			),
			cleanupFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_cleanup_failures_total",
					Help: "Session cleanups that returned an error.",
				},
				[]string{"registry"},
			),
			cleanupTimeouts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_cleanup_timeouts_total",
					Help: "Session cleanups abandoned after the deadline.",
				},
				[]string{"registry"},
			),
			bindFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "warden_tool_bind_failures_total",
					Help: "Tool servers that failed to bind during session init.",
				},
				[]string{"server"},
			),
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			m.activeSessions,
			m.sessionsTotal,
			m.queryTotal,
			m.queryDuration,
			m.evictionsTotal,
			m.cleanupFailures,
			m.cleanupTimeouts,
			m.bindFailures,
		)
		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered makes sure metrics are registered before first use.
func EnsureRegistered() {
	getMetrics()
}

// Handler returns an http.Handler exposing the metrics registry.
func Handler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// SetActiveSessions sets the live session gauge for a registry type.
func SetActiveSessions(registryType string, n int) {
	getMetrics().activeSessions.WithLabelValues(registryType).Set(float64(n))
}

// RecordSessionCreated increments the created-session counter.
func RecordSessionCreated(registryType string) {
	getMetrics().sessionsTotal.WithLabelValues(registryType).Inc()
}

// RecordQuery records one query execution.
func RecordQuery(registryType string, d time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m := getMetrics()
	m.queryTotal.WithLabelValues(registryType, status).Inc()
	m.queryDuration.WithLabelValues(registryType).Observe(d.Seconds())
}

// RecordEviction records an idle-timeout eviction.
func RecordEviction(registryType string) {
	getMetrics().evictionsTotal.WithLabelValues(registryType).Inc()
}

// RecordCleanupFailure records a cleanup error.
func RecordCleanupFailure(registryType string) {
	getMetrics().cleanupFailures.WithLabelValues(registryType).Inc()
}

// RecordCleanupTimeout records a cleanup abandoned at the deadline.
func RecordCleanupTimeout(registryType string) {
	getMetrics().cleanupTimeouts.WithLabelValues(registryType).Inc()
}

// RecordBindFailure records a tool server that failed to bind.
func RecordBindFailure(serverID string) {
	getMetrics().bindFailures.WithLabelValues(serverID).Inc()
}
