// Package monitoring manages Prometheus instrumentation for the pipeline.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics instruments the detection and execution path.
type PipelineMetrics struct {
	anomaliesDetected *prometheus.CounterVec
	incidentsAnalyzed *prometheus.CounterVec
	decisions         *prometheus.CounterVec
	actionExecutions  *prometheus.CounterVec
	actionDuration    *prometheus.HistogramVec
	activeActions     prometheus.Gauge
	loopIterations    *prometheus.CounterVec
	loopDuration      *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
}

var (
	instance *PipelineMetrics
	once     sync.Once
)

// Get returns the process-wide metrics instance, registering collectors on
// first use.
func Get() *PipelineMetrics {
	once.Do(func() {
		instance = newPipelineMetrics(prometheus.DefaultRegisterer)
	})
	return instance
}

func newPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	pm := &PipelineMetrics{
		anomaliesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autopilot",
				Subsystem: "detector",
				Name:      "anomalies_total",
				Help:      "Anomalies emitted, partitioned by service and severity.",
			},
			[]string{"service", "severity"},
		),
		incidentsAnalyzed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autopilot",
				Subsystem: "analyzer",
				Name:      "incidents_total",
				Help:      "Incidents composed by the analyzer, partitioned by category.",
			},
			[]string{"category", "severity"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autopilot",
				Subsystem: "executor",
				Name:      "decisions_total",
				Help:      "Autonomous decisions partitioned by outcome.",
			},
			[]string{"decision"},
		),
		actionExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autopilot",
				Subsystem: "actions",
				Name:      "executions_total",
				Help:      "Action executions partitioned by type and result.",
			},
			[]string{"action_type", "result"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "autopilot",
				Subsystem: "actions",
				Name:      "execution_duration_seconds",
				Help:      "Wall time of provider executions.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"action_type"},
		),
		activeActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "autopilot",
				Subsystem: "executor",
				Name:      "active_actions",
				Help:      "Actions currently executing under the concurrency cap.",
			},
		),
		loopIterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autopilot",
				Subsystem: "worker",
				Name:      "loop_iterations_total",
				Help:      "Worker loop iterations partitioned by loop and result.",
			},
			[]string{"loop", "result"},
		),
		loopDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "autopilot",
				Subsystem: "worker",
				Name:      "loop_iteration_seconds",
				Help:      "Duration of a single worker loop iteration.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"loop"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autopilot",
				Subsystem: "kvstore",
				Name:      "errors_total",
				Help:      "Key-value store failures partitioned by operation.",
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(
		pm.anomaliesDetected,
		pm.incidentsAnalyzed,
		pm.decisions,
		pm.actionExecutions,
		pm.actionDuration,
		pm.activeActions,
		pm.loopIterations,
		pm.loopDuration,
		pm.storeErrors,
	)

	return pm
}

// RecordAnomaly counts an emitted anomaly.
func (pm *PipelineMetrics) RecordAnomaly(service, severity string) {
	if pm == nil {
		return
	}
	pm.anomaliesDetected.WithLabelValues(service, severity).Inc()
}

// RecordIncident counts a composed incident.
func (pm *PipelineMetrics) RecordIncident(category, severity string) {
	if pm == nil {
		return
	}
	pm.incidentsAnalyzed.WithLabelValues(category, severity).Inc()
}

// RecordDecision counts an autonomous decision outcome (approved, denied, deferred).
func (pm *PipelineMetrics) RecordDecision(decision string) {
	if pm == nil {
		return
	}
	pm.decisions.WithLabelValues(decision).Inc()
}

// RecordExecution counts an action execution and observes its duration.
func (pm *PipelineMetrics) RecordExecution(actionType string, success bool, elapsed time.Duration) {
	if pm == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	pm.actionExecutions.WithLabelValues(actionType, result).Inc()
	pm.actionDuration.WithLabelValues(actionType).Observe(elapsed.Seconds())
}

// SetActiveActions updates the in-flight action gauge.
func (pm *PipelineMetrics) SetActiveActions(n int) {
	if pm == nil {
		return
	}
	pm.activeActions.Set(float64(n))
}

// RecordLoopIteration counts one pass of a worker loop.
func (pm *PipelineMetrics) RecordLoopIteration(loop string, err error, elapsed time.Duration) {
	if pm == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	pm.loopIterations.WithLabelValues(loop, result).Inc()
	pm.loopDuration.WithLabelValues(loop).Observe(elapsed.Seconds())
}

// RecordStoreError counts a key-value store failure.
func (pm *PipelineMetrics) RecordStoreError(operation string) {
	if pm == nil {
		return
	}
	pm.storeErrors.WithLabelValues(operation).Inc()
}
