// Package metrics provides Prometheus metrics for the nina service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by nina.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Compliance and adherence
	evaluations        *prometheus.CounterVec
	evaluationLatency  prometheus.Histogram
	complianceStatuses *prometheus.CounterVec
	adherenceRankings  prometheus.Counter
	snapshotSize       prometheus.Histogram

	// Roster
	individualsTotal prometheus.Gauge
	trackedTotal     prometheus.Gauge

	// Boundaries
	importRows      *prometheus.CounterVec
	exports         *prometheus.CounterVec
	claimOperations *prometheus.CounterVec

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec
	repositoryErrors       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nina",
		subsystem:        "dashboard",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() {
	m.evaluations = m.counterVec("compliance_evaluations_total",
		"Compliance evaluations by interaction type and outcome", "type", "outcome")
	m.evaluationLatency = m.histogram("compliance_evaluation_latency_milliseconds",
		"End-to-end compliance evaluation latency including snapshot loading", m.histogramBuckets)
	m.complianceStatuses = m.counterVec("compliance_statuses_total",
		"Per-individual compliance statuses produced", "type", "status")
	m.adherenceRankings = promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "adherence_rankings_total",
		Help:        "Leader adherence rankings computed",
		ConstLabels: m.constLabels,
	})
	m.snapshotSize = m.histogram("snapshot_individuals",
		"Number of individuals loaded per evaluation snapshot", []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000})

	m.individualsTotal = m.gauge("individuals_total", "Individuals in the roster")
	m.trackedTotal = m.gauge("individuals_tracked_total", "Individuals subject to management tracking")

	m.importRows = m.counterVec("import_rows_total", "Imported rows by kind and outcome", "kind", "outcome")
	m.exports = m.counterVec("exports_total", "Report exports by format and outcome", "format", "outcome")
	m.claimOperations = m.counterVec("claim_operations_total",
		"Authorization claim operations by operation and outcome", "operation", "outcome")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds",
		"Datastore operation latency", m.histogramBuckets, "driver", "operation")
	m.repositoryErrors = m.counterVec("repository_errors_total", "Datastore errors", "driver", "operation")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordEvaluation counts an evaluation outcome ("ok", "invalid", "error").
func RecordEvaluation(interactionType, outcome string) {
	globalManager.evaluations.WithLabelValues(interactionType, outcome).Inc()
}

// RecordEvaluationLatency records evaluation latency in milliseconds.
func RecordEvaluationLatency(latencyMs float64) {
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordComplianceStatus counts one produced status.
func RecordComplianceStatus(interactionType, status string) {
	globalManager.complianceStatuses.WithLabelValues(interactionType, status).Inc()
}

// RecordAdherenceRanking counts a computed adherence ranking.
func RecordAdherenceRanking() {
	globalManager.adherenceRankings.Inc()
}

// RecordSnapshotSize records how many individuals a snapshot loaded.
func RecordSnapshotSize(n int) {
	globalManager.snapshotSize.Observe(float64(n))
}

// UpdateRosterSize sets the roster gauges.
func UpdateRosterSize(total, tracked int) {
	globalManager.individualsTotal.Set(float64(total))
	globalManager.trackedTotal.Set(float64(tracked))
}

// RecordImportRows adds n rows with the given outcome ("imported", "failed").
func RecordImportRows(kind, outcome string, n int) {
	if n <= 0 {
		return
	}
	globalManager.importRows.WithLabelValues(kind, outcome).Add(float64(n))
}

// RecordExport counts an export by format and outcome.
func RecordExport(format, outcome string) {
	globalManager.exports.WithLabelValues(format, outcome).Inc()
}

// RecordClaimOperation counts a claims operation ("grant", "bootstrap") by outcome.
func RecordClaimOperation(operation, outcome string) {
	globalManager.claimOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordRepositoryQueryLatency records datastore operation latency.
func RecordRepositoryQueryLatency(driver, operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(driver, operation).Observe(latencyMs)
}

// RecordRepositoryError counts a datastore error.
func RecordRepositoryError(driver, operation string) {
	globalManager.repositoryErrors.WithLabelValues(driver, operation).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint counts an error returned by an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
