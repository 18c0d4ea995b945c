package procmgr

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Supervisor owns one spawned process and drives it through
// Starting → Ready → Stopping → Stopped.
type Supervisor interface {
	ID() ProcessID
	Process() *Process
	State() ProcessState

	// WaitReady blocks until the process reports readiness
	WaitReady() error

	// Stop requests termination and blocks until the process is reaped.
	// Repeated calls return the first result.
	Stop() error

	// Exited is closed once the process has been reaped
	Exited() <-chan struct{}
}

// supervisor holds state shared by both scheduling strategies
type supervisor struct {
	mu    sync.Mutex
	state ProcessState

	id      ProcessID
	name    string
	proc    *Process
	logger  *slog.Logger
	metrics MetricsCollector
}

func newSupervisor(p *Process, spec Spec, logger *slog.Logger, metrics MetricsCollector) supervisor {
	if metrics == nil {
		metrics = NewNoopMetricsCollector()
	}
	return supervisor{
		state:   ProcessStateStarting,
		id:      spec.ID,
		name:    filepath.Base(spec.Command.Path),
		proc:    p,
		logger:  logger.With("instance", spec.ID, "pid", p.PID()),
		metrics: metrics,
	}
}

func (s *supervisor) ID() ProcessID {
	return s.id
}

func (s *supervisor) Process() *Process {
	return s.proc
}

func (s *supervisor) Exited() <-chan struct{} {
	return s.proc.Exited()
}

func (s *supervisor) State() ProcessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the state forward; states never go backwards
func (s *supervisor) transition(to ProcessState) {
	s.mu.Lock()
	from := s.state
	if to <= from {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Debug("process state changed", "from", from.String(), "to", to.String())
	s.metrics.ProcessStateTransition(s.id, from, to)
}

func (s *supervisor) WaitReady() error {
	err := s.proc.WaitReady()
	s.metrics.ProcessStartDuration(s.id, s.proc.Uptime(), err)
	if err != nil {
		s.metrics.ProcessError(s.id, "not_ready")
		return err
	}

	s.transition(ProcessStateReady)
	return nil
}

// terminate sends SIGINT and reaps the process. The state stays Stopping
// when the signal cannot be delivered.
func (s *supervisor) terminate() error {
	start := time.Now()
	s.transition(ProcessStateStopping)

	if err := s.proc.Interrupt(); err != nil {
		s.metrics.ProcessError(s.id, "termination_failed")
		s.logger.Error("failed to signal process", "error", err)
		return err
	}

	if err := s.proc.Wait(); err != nil {
		s.logger.Debug("process exit status", "error", err)
	}
	s.transition(ProcessStateStopped)
	s.metrics.ProcessTerminationDuration(s.id, time.Since(start))
	return nil
}

// blockingSupervisor performs termination on the caller's goroutine.
// Spontaneous exits go unnoticed until Stop reaps the process.
type blockingSupervisor struct {
	supervisor

	stopOnce sync.Once
	stopErr  error
}

func newBlockingSupervisor(p *Process, spec Spec, logger *slog.Logger, metrics MetricsCollector) *blockingSupervisor {
	return &blockingSupervisor{supervisor: newSupervisor(p, spec, logger, metrics)}
}

func (s *blockingSupervisor) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.terminate() })
	return s.stopErr
}

// cooperativeSupervisor runs one goroutine per process that races a
// spontaneous exit against a stop request. Whichever happens first wins.
type cooperativeSupervisor struct {
	supervisor

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	stopErr  error
}

func newCooperativeSupervisor(p *Process, spec Spec, logger *slog.Logger, metrics MetricsCollector) *cooperativeSupervisor {
	s := &cooperativeSupervisor{
		supervisor: newSupervisor(p, spec, logger, metrics),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *cooperativeSupervisor) run() {
	defer close(s.done)

	go func() { _ = s.proc.Wait() }()

	select {
	case <-s.proc.Exited():
		select {
		case <-s.stopCh:
		default:
			s.logger.Error(s.name+" exited early",
				"exit_code", s.proc.ExitCode(),
				"output", s.proc.OutputTail(),
			)
			s.metrics.ProcessError(s.id, "early_exit")
		}
		s.transition(ProcessStateStopped)

	case <-s.stopCh:
		s.stopErr = s.terminate()
	}
}

func (s *cooperativeSupervisor) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
	return s.stopErr
}

var (
	_ Supervisor = (*blockingSupervisor)(nil)
	_ Supervisor = (*cooperativeSupervisor)(nil)
)
