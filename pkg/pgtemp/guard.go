package pgtemp

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// Guard owns one running PostgreSQL instance: its server process, its data
// directory, a reference to the shared socket directory and, under the
// cooperative scheduler, its admission permit.
//
// Close must be called exactly once the instance is no longer needed,
// typically with defer or t.Cleanup.
type Guard struct {
	id         procmgr.ProcessID
	port       int
	dataDir    string
	connString string

	socketDir  *sharedDir
	supervisor procmgr.Supervisor
	permit     procmgr.Permit
	manager    *procmgr.Manager
	logger     *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// ConnectionString returns a URI of the form
// postgresql://demo@localhost:<port>/demo?host=<socket dir>
func (g *Guard) ConnectionString() string {
	return g.connString
}

// ID returns the unique instance identifier
func (g *Guard) ID() string {
	return string(g.id)
}

// Port returns the port number the server's socket is named after
func (g *Guard) Port() int {
	return g.port
}

// DataDir returns the instance's private data directory
func (g *Guard) DataDir() string {
	return g.dataDir
}

// SocketDir returns the directory containing the server's UNIX socket
func (g *Guard) SocketDir() string {
	return g.socketDir.path
}

// State returns the server's lifecycle state
func (g *Guard) State() procmgr.ProcessState {
	return g.supervisor.State()
}

// Exited is closed once the server process has been reaped. Under the
// blocking scheduler that only happens during Close.
func (g *Guard) Exited() <-chan struct{} {
	return g.supervisor.Exited()
}

// PID returns the server's process id
func (g *Guard) PID() int {
	return g.supervisor.Process().PID()
}

// OutputTail returns the most recent lines the server logged
func (g *Guard) OutputTail() []string {
	return g.supervisor.Process().OutputTail()
}

// Close stops the server and removes the instance's files, in order: reap the
// process, remove the data directory, release the socket directory, release
// the permit. When the server cannot be signalled the data directory is
// kept and TERMINATION_FAILED is returned. Repeated calls return the first
// result.
func (g *Guard) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.teardown()
	})
	return g.closeErr
}

func (g *Guard) teardown() error {
	if g.supervisor != nil {
		if err := g.supervisor.Stop(); err != nil {
			g.logger.Error("failed to stop instance, keeping data directory", "data_dir", g.dataDir, "error", err)
			return ErrTerminationFailed(string(g.id), g.dataDir, err)
		}
		g.manager.Untrack(g.id)
	}

	var errs []error
	if g.dataDir != "" {
		if err := os.RemoveAll(g.dataDir); err != nil {
			errs = append(errs, fmt.Errorf("remove data directory: %w", err))
		}
	}
	if g.socketDir != nil {
		if err := g.socketDir.release(); err != nil {
			errs = append(errs, fmt.Errorf("remove socket directory: %w", err))
		}
	}
	if g.permit != nil {
		g.permit.Release()
	}

	g.logger.Debug("instance removed", "port", g.port)
	return errors.Join(errs...)
}
