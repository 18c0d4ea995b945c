package procmgr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEarlyExit is returned by WaitReady when the output streams end before
// the readiness marker was observed.
var ErrEarlyExit = errors.New("process output ended before readiness was reported")

// ExecError reports that a command could not be launched at all.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to execute %s: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// CommandError reports that a command ran but exited unsuccessfully.
// Captured output is kept for diagnostics.
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %s exited with code %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// DecodeError reports command output that is not valid UTF-8.
type DecodeError struct {
	Command string
	Stream  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("command %s produced non UTF-8 output on %s", e.Command, e.Stream)
}

// TerminationError reports that a stop signal could not be delivered.
type TerminationError struct {
	ID  ProcessID
	PID int
	Err error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("failed to terminate process %s (pid %d): %v", e.ID, e.PID, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}
