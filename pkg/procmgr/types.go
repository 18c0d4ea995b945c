package procmgr

import (
	"fmt"
	"strings"
)

// ProcessState represents the lifecycle state of a supervised process
type ProcessState int

const (
	// ProcessStateStarting - process spawned, readiness not yet observed
	ProcessStateStarting ProcessState = iota
	// ProcessStateReady - process reported readiness and is serving
	ProcessStateReady
	// ProcessStateStopping - termination requested, awaiting exit
	ProcessStateStopping
	// ProcessStateStopped - process exited and has been reaped
	ProcessStateStopped
)

// String returns the string representation of a ProcessState
func (ps ProcessState) String() string {
	switch ps {
	case ProcessStateStarting:
		return "Starting"
	case ProcessStateReady:
		return "Ready"
	case ProcessStateStopping:
		return "Stopping"
	case ProcessStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ProcessID uniquely identifies a supervised process
type ProcessID string

// Command describes a single program invocation.
type Command struct {
	Path string
	Args []string
	// Env entries are appended to the current process environment.
	Env []string
	Dir string
}

// String renders the command line for logs and error messages
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Path)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// Spec describes a long-running process to spawn and supervise
type Spec struct {
	ID      ProcessID
	Command Command

	// ReadyMarker is the substring that signals readiness when it appears
	// on either output stream.
	ReadyMarker string

	// TailLines bounds the number of recent output lines retained.
	TailLines int
}
