package procmgr

import (
	"log/slog"
	"sync"
	"time"
)

// Manager tracks the supervisors of live processes for health reporting.
// It never stops processes itself; ownership stays with whoever started them.
type Manager struct {
	mu          sync.Mutex
	supervisors map[ProcessID]Supervisor

	metrics MetricsCollector
	logger  *slog.Logger
}

// NewManager creates an empty Manager
func NewManager(logger *slog.Logger, metrics MetricsCollector) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoopMetricsCollector()
	}
	return &Manager{
		supervisors: make(map[ProcessID]Supervisor),
		metrics:     metrics,
		logger:      logger,
	}
}

// Track registers a supervisor
func (m *Manager) Track(s Supervisor) {
	m.mu.Lock()
	m.supervisors[s.ID()] = s
	n := len(m.supervisors)
	m.mu.Unlock()

	m.logger.Debug("tracking process", "instance", s.ID(), "active", n)
	m.metrics.ActiveProcesses(n)
}

// Untrack removes a supervisor; unknown IDs are ignored
func (m *Manager) Untrack(id ProcessID) {
	m.mu.Lock()
	delete(m.supervisors, id)
	n := len(m.supervisors)
	m.mu.Unlock()

	m.logger.Debug("untracked process", "instance", id, "active", n)
	m.metrics.ActiveProcesses(n)
}

// Len returns the number of tracked supervisors
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.supervisors)
}

// HealthCheck represents the health status of the tracked processes
type HealthCheck struct {
	TotalProcesses    int
	StartingProcesses int
	ReadyProcesses    int
	StoppingProcesses int
	ExitedProcesses   int
	Processes         map[ProcessID]ProcessHealth
}

// ProcessHealth represents the health status of an individual process
type ProcessHealth struct {
	State   ProcessState
	Healthy bool
	PID     int
	Uptime  time.Duration
	// Exited is only observed by supervisors that watch for spontaneous
	// exits; blocking supervisors report false until stopped.
	Exited bool
}

// Health returns the current health status of every tracked process
func (m *Manager) Health() HealthCheck {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := HealthCheck{
		Processes: make(map[ProcessID]ProcessHealth, len(m.supervisors)),
	}

	for id, s := range m.supervisors {
		health.TotalProcesses++

		exited := false
		select {
		case <-s.Exited():
			exited = true
		default:
		}

		state := s.State()
		switch state {
		case ProcessStateStarting:
			health.StartingProcesses++
		case ProcessStateReady:
			health.ReadyProcesses++
		case ProcessStateStopping:
			health.StoppingProcesses++
		}
		if exited {
			health.ExitedProcesses++
		}

		health.Processes[id] = ProcessHealth{
			State:   state,
			Healthy: state == ProcessStateReady && !exited,
			PID:     s.Process().PID(),
			Uptime:  s.Process().Uptime(),
			Exited:  exited,
		}
	}

	return health
}
