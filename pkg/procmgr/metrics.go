package procmgr

import (
	"time"
)

// MetricsCollector defines the interface for collecting process supervision metrics
type MetricsCollector interface {
	// ProcessStateTransition records a state transition for a process
	ProcessStateTransition(id ProcessID, fromState, toState ProcessState)

	// ProcessStartDuration records the time from spawn until readiness (or failure)
	ProcessStartDuration(id ProcessID, duration time.Duration, err error)

	// ProcessTerminationDuration records the time from stop request until reaped
	ProcessTerminationDuration(id ProcessID, duration time.Duration)

	// ProcessError records an error for a process
	ProcessError(id ProcessID, errorType string)

	// CommandDuration records the duration of a one-shot command
	CommandDuration(command string, duration time.Duration, err error)

	// PermitWaitDuration records how long a caller waited for admission
	PermitWaitDuration(duration time.Duration)

	// ActiveProcesses records the number of tracked processes
	ActiveProcesses(count int)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) ProcessStateTransition(id ProcessID, fromState, toState ProcessState) {}
func (n *noopMetricsCollector) ProcessStartDuration(id ProcessID, duration time.Duration, err error) {}
func (n *noopMetricsCollector) ProcessTerminationDuration(id ProcessID, duration time.Duration)     {}
func (n *noopMetricsCollector) ProcessError(id ProcessID, errorType string)                         {}
func (n *noopMetricsCollector) CommandDuration(command string, duration time.Duration, err error)   {}
func (n *noopMetricsCollector) PermitWaitDuration(duration time.Duration)                           {}
func (n *noopMetricsCollector) ActiveProcesses(count int)                                           {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
