package procmgr

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics.
// Process IDs are not used as labels because every instance gets a fresh one.
type PrometheusMetricsCollector struct {
	// State transition metrics
	stateTransitions *prometheus.CounterVec

	// Performance metrics
	startDuration       *prometheus.HistogramVec
	terminationDuration prometheus.Histogram
	commandDuration     *prometheus.HistogramVec
	permitWait          prometheus.Histogram

	// Error metrics
	errors *prometheus.CounterVec

	active prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "pgtemp"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_state_transitions_total",
			Help:      "Total number of process state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	pmc.startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_start_duration_seconds",
			Help:      "Time from spawn until the process reported readiness",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"status"},
	)

	pmc.terminationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_termination_duration_seconds",
			Help:      "Time from stop request until the process was reaped",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pmc.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of one-shot commands",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "status"},
	)

	pmc.permitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "permit_wait_duration_seconds",
			Help:      "Time spent waiting for a concurrency permit",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
	)

	pmc.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_errors_total",
			Help:      "Total number of process errors",
		},
		[]string{"error_type"},
	)

	pmc.active = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_processes",
			Help:      "Number of processes currently tracked",
		},
	)

	pmc.registry.MustRegister(
		pmc.stateTransitions,
		pmc.startDuration,
		pmc.terminationDuration,
		pmc.commandDuration,
		pmc.permitWait,
		pmc.errors,
		pmc.active,
	)

	return pmc
}

// ProcessStateTransition records a state transition
func (pmc *PrometheusMetricsCollector) ProcessStateTransition(id ProcessID, fromState, toState ProcessState) {
	pmc.stateTransitions.WithLabelValues(
		fromState.String(),
		toState.String(),
	).Inc()
}

// ProcessStartDuration records the time until readiness
func (pmc *PrometheusMetricsCollector) ProcessStartDuration(id ProcessID, duration time.Duration, err error) {
	pmc.startDuration.WithLabelValues(status(err)).Observe(duration.Seconds())
}

// ProcessTerminationDuration records the duration of a termination
func (pmc *PrometheusMetricsCollector) ProcessTerminationDuration(id ProcessID, duration time.Duration) {
	pmc.terminationDuration.Observe(duration.Seconds())
}

// ProcessError records a process error
func (pmc *PrometheusMetricsCollector) ProcessError(id ProcessID, errorType string) {
	pmc.errors.WithLabelValues(errorType).Inc()
}

// CommandDuration records a one-shot command, labelled by program name
func (pmc *PrometheusMetricsCollector) CommandDuration(command string, duration time.Duration, err error) {
	pmc.commandDuration.WithLabelValues(
		filepath.Base(command),
		status(err),
	).Observe(duration.Seconds())
}

// PermitWaitDuration records time spent waiting for admission
func (pmc *PrometheusMetricsCollector) PermitWaitDuration(duration time.Duration) {
	pmc.permitWait.Observe(duration.Seconds())
}

// ActiveProcesses sets the tracked process gauge
func (pmc *PrometheusMetricsCollector) ActiveProcesses(count int) {
	pmc.active.Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
