package procmgr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	defaultTailLines = 50
	maxLineLength    = 1024 * 1024
)

// Process is a spawned long-running child whose stdout and stderr are drained
// line by line for its whole lifetime. A child writing to a full pipe would
// block, so draining never stops after readiness.
type Process struct {
	id      ProcessID
	cmd     *exec.Cmd
	started time.Time
	logger  *slog.Logger
	marker  string

	ready     chan struct{}
	readyOnce sync.Once
	drained   chan struct{}

	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}

	tail *lineRing
}

// StartProcess spawns the process described by spec and begins draining its
// output streams.
func StartProcess(spec Spec, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := spec.Command
	desc := c.String()

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	// A terminal Ctrl+C goes to the foreground group; the server is only
	// stopped through Interrupt.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &ExecError{Command: desc, Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, &ExecError{Command: desc, Err: fmt.Errorf("create stderr pipe: %w", err)}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, &ExecError{Command: desc, Err: err}
	}

	// The child holds its own copies; ours must go so the readers see EOF.
	outW.Close()
	errW.Close()

	tailLines := spec.TailLines
	if tailLines <= 0 {
		tailLines = defaultTailLines
	}

	p := &Process{
		id:      spec.ID,
		cmd:     cmd,
		started: time.Now(),
		logger:  logger,
		marker:  spec.ReadyMarker,
		ready:   make(chan struct{}),
		drained: make(chan struct{}),
		exited:  make(chan struct{}),
		tail:    newLineRing(tailLines),
	}

	logger.Debug("process started", "instance", p.id, "pid", cmd.Process.Pid, "command", desc)

	var wg sync.WaitGroup
	wg.Add(2)
	go p.drain(&wg, "stdout", outR)
	go p.drain(&wg, "stderr", errR)
	go func() {
		wg.Wait()
		close(p.drained)
	}()

	return p, nil
}

func (p *Process) drain(wg *sync.WaitGroup, stream string, r *os.File) {
	defer wg.Done()
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		p.observe(stream, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("output stream read failed", "instance", p.id, "stream", stream, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *Process) observe(stream, line string) {
	p.logger.Debug("process output", "instance", p.id, "stream", stream, "line", line)
	p.tail.add(line)

	if p.marker != "" && strings.Contains(line, p.marker) {
		p.readyOnce.Do(func() { close(p.ready) })
	}
}

// WaitReady blocks until the readiness marker appears on either stream.
// It returns ErrEarlyExit when both streams end first. There is no timeout.
func (p *Process) WaitReady() error {
	select {
	case <-p.ready:
		return nil
	case <-p.drained:
		select {
		case <-p.ready:
			return nil
		default:
			return ErrEarlyExit
		}
	}
}

// Interrupt delivers SIGINT. Signalling a process that has already been
// reaped is a no-op.
func (p *Process) Interrupt() error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	pid := p.cmd.Process.Pid
	if err := unix.Kill(pid, unix.SIGINT); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return &TerminationError{ID: p.id, PID: pid, Err: err}
	}
	return nil
}

// Wait reaps the process. It is safe to call from several goroutines; the
// underlying wait happens exactly once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})
	return p.waitErr
}

// Exited is closed once the process has been reaped
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitCode returns the exit code, or -1 while the process is running or when
// it was killed by a signal.
func (p *Process) ExitCode() int {
	select {
	case <-p.exited:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// ID returns the process identifier
func (p *Process) ID() ProcessID {
	return p.id
}

// PID returns the operating system process id
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Uptime returns how long the process has been running
func (p *Process) Uptime() time.Duration {
	return time.Since(p.started)
}

// OutputTail returns the most recent output lines from both streams
func (p *Process) OutputTail() []string {
	return p.tail.snapshot()
}

// lineRing keeps the last n lines
type lineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newLineRing(n int) *lineRing {
	return &lineRing{lines: make([]string, n)}
}

func (r *lineRing) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

func (r *lineRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
