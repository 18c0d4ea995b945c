package procmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/jrepp/pgtemp/internal/testutil"
)

const testMarker = "ready to accept connections"

// recordingMetrics is a MetricsCollector that remembers what it saw
type recordingMetrics struct {
	mu sync.Mutex

	transitions  []string
	errors       map[string]int
	commands     int
	starts       int
	terminations int
	permitWaits  int
	active       int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{errors: make(map[string]int)}
}

func (m *recordingMetrics) ProcessStateTransition(id ProcessID, fromState, toState ProcessState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, fromState.String()+"->"+toState.String())
}

func (m *recordingMetrics) ProcessStartDuration(id ProcessID, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
}

func (m *recordingMetrics) ProcessTerminationDuration(id ProcessID, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminations++
}

func (m *recordingMetrics) ProcessError(id ProcessID, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[errorType]++
}

func (m *recordingMetrics) CommandDuration(command string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands++
}

func (m *recordingMetrics) PermitWaitDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permitWaits++
}

func (m *recordingMetrics) ActiveProcesses(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = count
}

func (m *recordingMetrics) getTransitions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transitions...)
}

func (m *recordingMetrics) getErrors(errorType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[errorType]
}

func (m *recordingMetrics) getCommands() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands
}

func (m *recordingMetrics) getActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// serverScript writes a script that reports readiness on stderr and then runs
// until interrupted.
func serverScript(t *testing.T) string {
	t.Helper()
	return testutil.WriteScript(t, t.TempDir(), "server", `echo "booting"
trap 'echo "shutting down" >&2; exit 0' INT TERM
echo "LOG: `+testMarker+`" >&2
while :; do sleep 0.05; done
`)
}

func spec(id ProcessID, path string) Spec {
	return Spec{
		ID:          id,
		Command:     Command{Path: path},
		ReadyMarker: testMarker,
	}
}
