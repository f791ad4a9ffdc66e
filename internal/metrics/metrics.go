// Package metrics provides Prometheus-based metrics collection for
// secwebscan: task execution counts and durations, reconciliation merge and
// conflict counts, and store activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "secwebscan"

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	tasksTotal     *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	activeTasks    prometheus.Gauge
	entriesMerged  *prometheus.CounterVec
	conflictsFound *prometheus.CounterVec
	entriesStored  *prometheus.CounterVec
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "tasks_total",
		Help:      "Total scan tasks executed, by capability and status.",
	}, []string{"capability", "status"})

	m.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "task_duration_seconds",
		Help:      "Duration of individual scan tasks.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"capability"})

	m.activeTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "active_tasks",
		Help:      "Number of scan tasks currently executing.",
	})

	m.entriesMerged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "entries_merged_total",
		Help:      "Entries combined with a duplicate across variants.",
	}, []string{"capability"})

	m.conflictsFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "conflicts_total",
		Help:      "Merge-key collisions with differing important fields.",
	}, []string{"capability"})

	m.entriesStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "entries_persisted_total",
		Help:      "Entries written to the results table.",
	}, []string{"capability"})

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "runs_total",
		Help:      "Completed scan runs, by status.",
	}, []string{"status"})

	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "run_duration_seconds",
		Help:      "End-to-end duration of scan runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	m.registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeTasks,
		m.entriesMerged,
		m.conflictsFound,
		m.entriesStored,
		m.runsTotal,
		m.runDuration,
	)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// TaskStarted records a task entering execution.
func (m *Metrics) TaskStarted() {
	m.activeTasks.Inc()
}

// TaskCompleted records a finished task with its outcome and duration.
func (m *Metrics) TaskCompleted(capability, status string, d time.Duration) {
	m.activeTasks.Dec()
	m.tasksTotal.WithLabelValues(capability, status).Inc()
	m.taskDuration.WithLabelValues(capability).Observe(d.Seconds())
}

// EntryMerged records one cross-variant duplicate combination.
func (m *Metrics) EntryMerged(capability string) {
	m.entriesMerged.WithLabelValues(capability).Inc()
}

// ConflictDetected records one preserved merge conflict.
func (m *Metrics) ConflictDetected(capability string) {
	m.conflictsFound.WithLabelValues(capability).Inc()
}

// EntriesPersisted records rows written for one capability.
func (m *Metrics) EntriesPersisted(capability string, n int) {
	m.entriesStored.WithLabelValues(capability).Add(float64(n))
}

// RunCompleted records one finished run.
func (m *Metrics) RunCompleted(status string, d time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Default instance used by packages that do not carry an explicit handle.
var defaultMetrics = New()

// Default returns the default metrics instance.
func Default() *Metrics {
	return defaultMetrics
}

// TaskStarted records a task start on the default instance.
func TaskStarted() { defaultMetrics.TaskStarted() }

// TaskCompleted records a task completion on the default instance.
func TaskCompleted(capability, status string, d time.Duration) {
	defaultMetrics.TaskCompleted(capability, status, d)
}

// EntryMerged records a merge on the default instance.
func EntryMerged(capability string) { defaultMetrics.EntryMerged(capability) }

// ConflictDetected records a conflict on the default instance.
func ConflictDetected(capability string) { defaultMetrics.ConflictDetected(capability) }

// EntriesPersisted records persisted rows on the default instance.
func EntriesPersisted(capability string, n int) { defaultMetrics.EntriesPersisted(capability, n) }

// RunCompleted records a run completion on the default instance.
func RunCompleted(status string, d time.Duration) { defaultMetrics.RunCompleted(status, d) }

// Handler exposes the default registry.
func Handler() http.Handler { return defaultMetrics.Handler() }
