package procmgr

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPrometheusMetricsCollector_StateTransitions tests state transition metrics
func TestPrometheusMetricsCollector_StateTransitions(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ProcessStateTransition("proc-1", ProcessStateStarting, ProcessStateReady)
	pmc.ProcessStateTransition("proc-1", ProcessStateReady, ProcessStateStopping)
	pmc.ProcessStateTransition("proc-2", ProcessStateStarting, ProcessStateReady)

	expected := `
		# HELP test_process_state_transitions_total Total number of process state transitions
		# TYPE test_process_state_transitions_total counter
		test_process_state_transitions_total{from_state="Ready",to_state="Stopping"} 1
		test_process_state_transitions_total{from_state="Starting",to_state="Ready"} 2
	`
	err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "test_process_state_transitions_total")
	assert.NoError(t, err)
}

// TestPrometheusMetricsCollector_Errors tests error metrics
func TestPrometheusMetricsCollector_Errors(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ProcessError("proc-1", "early_exit")
	pmc.ProcessError("proc-2", "early_exit")
	pmc.ProcessError("proc-1", "termination_failed")

	expected := `
		# HELP test_process_errors_total Total number of process errors
		# TYPE test_process_errors_total counter
		test_process_errors_total{error_type="early_exit"} 2
		test_process_errors_total{error_type="termination_failed"} 1
	`
	err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "test_process_errors_total")
	assert.NoError(t, err)
}

// TestPrometheusMetricsCollector_Durations tests histogram metrics
func TestPrometheusMetricsCollector_Durations(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ProcessStartDuration("proc-1", 300*time.Millisecond, nil)
	pmc.ProcessStartDuration("proc-2", 10*time.Millisecond, errors.New("early exit"))
	pmc.ProcessTerminationDuration("proc-1", 50*time.Millisecond)
	pmc.CommandDuration("/usr/lib/postgresql/16/bin/initdb", time.Second, nil)
	pmc.CommandDuration("/usr/bin/createdb", 20*time.Millisecond, errors.New("exit 1"))
	pmc.PermitWaitDuration(time.Millisecond)

	count, err := testutil.GatherAndCount(pmc.Registry(),
		"test_process_start_duration_seconds",
		"test_process_termination_duration_seconds",
		"test_command_duration_seconds",
		"test_permit_wait_duration_seconds",
	)
	require.NoError(t, err)
	// Two start series, one termination, two command series, one permit wait
	assert.Equal(t, 6, count)

	metricFamilies, err := pmc.Registry().Gather()
	require.NoError(t, err)

	var commandLabels []string
	for _, mf := range metricFamilies {
		if mf.GetName() != "test_command_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "command" {
					commandLabels = append(commandLabels, lp.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{"initdb", "createdb"}, commandLabels)
}

// TestPrometheusMetricsCollector_ActiveProcesses tests the gauge
func TestPrometheusMetricsCollector_ActiveProcesses(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("")

	pmc.ActiveProcesses(3)
	pmc.ActiveProcesses(1)

	expected := `
		# HELP pgtemp_active_processes Number of processes currently tracked
		# TYPE pgtemp_active_processes gauge
		pgtemp_active_processes 1
	`
	err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "pgtemp_active_processes")
	assert.NoError(t, err)
}
