package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	syncTotal    *prometheus.CounterVec
	syncDuration prometheus.Histogram

	refreshTotal *prometheus.CounterVec

	runTotal    *prometheus.CounterVec
	runDuration prometheus.Histogram

	importTotal     *prometheus.CounterVec
	sessionMappings prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			syncTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "credential_sync_total",
					Help: "Total credential sync passes by status.",
				},
				[]string{"status"},
			),
			syncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "credential_sync_duration_seconds",
					Help:    "Credential sync pass duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			refreshTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "token_refresh_total",
					Help: "Total OAuth token refresh attempts by status.",
				},
				[]string{"status"},
			),
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cli_run_total",
					Help: "Total claude CLI invocations by status.",
				},
				[]string{"status"},
			),
			runDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "cli_run_duration_seconds",
					Help:    "Claude CLI invocation duration in seconds.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
				},
			),
			importTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "credential_import_total",
					Help: "Total credential imports by status.",
				},
				[]string{"status"},
			),
			sessionMappings: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "session_mappings",
					Help: "Current number of conversation to session mappings.",
				},
			),
		}

		prometheus.MustRegister(
			m.syncTotal,
			m.syncDuration,
			m.refreshTotal,
			m.runTotal,
			m.runDuration,
			m.importTotal,
			m.sessionMappings,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordSync(duration time.Duration, success bool) {
	m := getMetrics()
	m.syncTotal.WithLabelValues(statusLabel(success)).Inc()
	m.syncDuration.Observe(duration.Seconds())
}

func RecordRefresh(success bool) {
	m := getMetrics()
	m.refreshTotal.WithLabelValues(statusLabel(success)).Inc()
}

func RecordRun(duration time.Duration, success bool) {
	m := getMetrics()
	m.runTotal.WithLabelValues(statusLabel(success)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func RecordImport(success bool) {
	m := getMetrics()
	m.importTotal.WithLabelValues(statusLabel(success)).Inc()
}

func SetSessionMappings(count int) {
	m := getMetrics()
	m.sessionMappings.Set(float64(count))
}
