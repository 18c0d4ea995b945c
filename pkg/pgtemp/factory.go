package pgtemp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrepp/pgtemp/pkg/datadir"
	"github.com/jrepp/pgtemp/pkg/locator"
	"github.com/jrepp/pgtemp/pkg/procmgr"
)

const (
	// ReadyMarker is the server log line that signals readiness
	ReadyMarker = "database system is ready to accept connections"

	// DefaultRole is the superuser role every instance gets
	DefaultRole = "demo"

	// DefaultDatabase is the database every instance gets, owned by DefaultRole
	DefaultDatabase = "demo"

	// DefaultBasePort is the first port handed out by a factory
	DefaultBasePort = 5432

	maxPort = 65535

	tracerName = "github.com/jrepp/pgtemp/pkg/pgtemp"
)

// Factory creates isolated PostgreSQL instances from a template data
// directory initialized once at construction.
//
// A Factory is safe for concurrent use. Close must not race with
// NewInstance; instances created earlier stay usable after Close.
type Factory struct {
	logger    *slog.Logger
	metrics   procmgr.MetricsCollector
	tracer    trace.Tracer
	scheduler procmgr.Scheduler
	locator   locator.Locator
	runner    *procmgr.Runner
	manager   *procmgr.Manager

	basePort      uint16
	sharedBuffers int64
	tempRoot      string

	postgresPath   string
	createuserPath string
	createdbPath   string

	templateDir string
	socketDir   *sharedDir
	config      string
	version     string
	nextPort    atomic.Uint32

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewFactory locates the PostgreSQL executables, creates the shared socket
// directory and runs initdb into a fresh template directory. On failure
// every directory created so far is removed.
func NewFactory(ctx context.Context, opts ...Option) (_ *Factory, err error) {
	f := &Factory{
		logger:        slog.Default(),
		metrics:       procmgr.NewNoopMetricsCollector(),
		tracer:        otel.Tracer(tracerName),
		basePort:      DefaultBasePort,
		sharedBuffers: DefaultSharedBuffers,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.scheduler == nil {
		f.scheduler = procmgr.DefaultCooperative()
	}
	if f.locator == nil {
		f.locator = locator.New("")
	}
	if f.tempRoot == "" {
		f.tempRoot = os.TempDir()
	}
	f.runner = procmgr.NewRunner(
		procmgr.WithLogger(f.logger),
		procmgr.WithMetricsCollector(f.metrics),
		procmgr.WithTracer(f.tracer),
	)
	f.manager = procmgr.NewManager(f.logger, f.metrics)
	f.nextPort.Store(uint32(f.basePort))

	ctx, span := f.tracer.Start(ctx, "pgtemp.NewFactory", trace.WithAttributes(
		attribute.String("scheduler", f.scheduler.Name()),
	))
	defer func() { endSpan(span, err) }()

	initdb, err := f.locator.Locate("initdb")
	if err != nil {
		return nil, ErrBinaryNotFound("initdb", err)
	}
	if f.postgresPath, err = f.locator.Locate("postgres"); err != nil {
		return nil, ErrBinaryNotFound("postgres", err)
	}
	f.createuserPath = f.clientPath("createuser")
	f.createdbPath = f.clientPath("createdb")

	socketDir, err := os.MkdirTemp(f.tempRoot, "pgtemp-sock-*")
	if err != nil {
		return nil, ErrCreateDirFailed("socket", f.tempRoot, err)
	}
	f.socketDir = newSharedDir(socketDir)

	f.templateDir, err = os.MkdirTemp(f.tempRoot, "pgtemp-template-*")
	if err != nil {
		_ = f.socketDir.release()
		return nil, ErrCreateDirFailed("template", f.tempRoot, err)
	}

	if err := datadir.InitTemplate(ctx, f.runner, initdb, f.templateDir); err != nil {
		_ = os.RemoveAll(f.templateDir)
		_ = f.socketDir.release()

		var execErr *procmgr.ExecError
		if errors.As(err, &execErr) {
			return nil, ErrExecFailed("initdb", err)
		}
		return nil, ErrInitDBFailed(f.templateDir, err)
	}

	if version, err := datadir.ReadVersion(f.templateDir); err == nil {
		f.version = version
	}
	f.config = BuildConfig(socketDir, f.sharedBuffers)

	f.logger.Info("template initialized",
		"template_dir", f.templateDir,
		"socket_dir", socketDir,
		"version", f.version,
		"scheduler", f.scheduler.Name(),
	)
	return f, nil
}

// clientPath resolves an administrative client tool, falling back to the
// bare name so the PATH lookup happens at execution time.
func (f *Factory) clientPath(name string) string {
	if path, err := f.locator.Locate(name); err == nil {
		return path
	}
	return name
}

// NewInstance starts a new server and returns the guard that owns it.
//
// ctx bounds only the wait for a cooperative permit. Once admitted, creation
// runs to completion. Any failure tears down everything allocated for the
// instance before returning; the factory stays usable.
func (f *Factory) NewInstance(ctx context.Context) (_ *Guard, err error) {
	if f.closed.Load() {
		return nil, ErrFactoryClosed()
	}

	ctx, span := f.tracer.Start(ctx, "pgtemp.NewInstance", trace.WithAttributes(
		attribute.String("scheduler", f.scheduler.Name()),
	))
	defer func() { endSpan(span, err) }()

	waitStart := time.Now()
	permit, err := f.scheduler.Acquire(ctx)
	if err != nil {
		return nil, ErrPermitFailed(err)
	}
	f.metrics.PermitWaitDuration(time.Since(waitStart))

	g := &Guard{
		id:        procmgr.ProcessID(uuid.NewString()),
		permit:    permit,
		socketDir: f.socketDir.acquire(),
		manager:   f.manager,
	}
	g.logger = f.logger.With("instance", g.id)
	span.SetAttributes(attribute.String("instance", string(g.id)))

	defer func() {
		if err == nil {
			return
		}
		if cerr := g.Close(); cerr != nil {
			g.logger.Error("failed to clean up after instance error", "error", cerr)
		}
	}()

	dataDir, err := os.MkdirTemp(f.tempRoot, "pgtemp-db-*")
	if err != nil {
		return nil, ErrCreateDirFailed("data", f.tempRoot, err)
	}
	g.dataDir = dataDir

	if err := datadir.Materialize(ctx, f.runner, f.templateDir, dataDir); err != nil {
		var execErr *procmgr.ExecError
		if errors.As(err, &execErr) {
			return nil, ErrExecFailed("cp", err)
		}
		return nil, ErrCopyFailed(f.templateDir, dataDir, err)
	}
	if err := datadir.VerifyVersion(dataDir); err != nil {
		return nil, ErrInvalidDataDir(dataDir, err)
	}

	confPath := filepath.Join(dataDir, "postgresql.conf")
	if err := os.WriteFile(confPath, []byte(f.config), 0o600); err != nil {
		return nil, ErrCreateConfigFailed(confPath, err)
	}

	port := int(f.nextPort.Add(1) - 1)
	if port > maxPort {
		return nil, ErrPortsExhausted(port, f.basePort)
	}
	g.port = port
	span.SetAttributes(attribute.Int("port", g.port))

	sup, err := f.scheduler.Start(procmgr.Spec{
		ID: g.id,
		Command: procmgr.Command{
			Path: f.postgresPath,
			Args: []string{"-p", strconv.Itoa(g.port)},
			Env:  []string{"PGDATA=" + dataDir},
		},
		ReadyMarker: ReadyMarker,
	}, g.logger, f.metrics)
	if err != nil {
		return nil, ErrSpawnFailed(f.postgresPath, err)
	}
	g.supervisor = sup
	f.manager.Track(sup)

	if err := sup.WaitReady(); err != nil {
		return nil, ErrEarlyExit(g.port, sup.Process().OutputTail(), err)
	}

	if err := f.bootstrap(ctx, g.port); err != nil {
		return nil, err
	}

	g.connString = fmt.Sprintf("postgresql://%s@localhost:%d/%s?host=%s",
		DefaultRole, g.port, DefaultDatabase, f.socketDir.path)

	g.logger.Info("instance ready", "port", g.port, "data_dir", dataDir, "pid", sup.Process().PID())
	return g, nil
}

// bootstrap creates the default role and its database through the socket
func (f *Factory) bootstrap(ctx context.Context, port int) error {
	common := []string{
		"-h", f.socketDir.path,
		"-p", strconv.Itoa(port),
		"-U", datadir.SuperUser,
		"--echo",
	}

	args := append(append([]string{}, common...), "--superuser", DefaultRole)
	if _, err := f.runner.Execute(ctx, procmgr.Command{Path: f.createuserPath, Args: args}); err != nil {
		return classifyExec("createuser", err, ErrCreateRoleFailed(DefaultRole, err))
	}

	args = append(append([]string{}, common...), "-O", DefaultRole, DefaultDatabase)
	if _, err := f.runner.Execute(ctx, procmgr.Command{Path: f.createdbPath, Args: args}); err != nil {
		return classifyExec("createdb", err, ErrCreateDBFailed(DefaultDatabase, err))
	}
	return nil
}

// classifyExec reports launch failures as EXEC_FAILED and everything else
// as the step's own error
func classifyExec(step string, err error, otherwise *Error) *Error {
	var execErr *procmgr.ExecError
	if errors.As(err, &execErr) {
		return ErrExecFailed(step, err)
	}
	return otherwise
}

// Close removes the template and releases the factory's hold on the socket
// directory. Live instances keep the socket directory until they close.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)

		var errs []error
		if err := os.RemoveAll(f.templateDir); err != nil {
			errs = append(errs, fmt.Errorf("remove template directory: %w", err))
		}
		if err := f.socketDir.release(); err != nil {
			errs = append(errs, fmt.Errorf("remove socket directory: %w", err))
		}
		f.closeErr = errors.Join(errs...)

		f.logger.Info("factory closed", "live_instances", f.manager.Len())
	})
	return f.closeErr
}

// Health reports the live instances created by this factory
func (f *Factory) Health() procmgr.HealthCheck {
	return f.manager.Health()
}

// TemplateDir returns the initdb output directory
func (f *Factory) TemplateDir() string {
	return f.templateDir
}

// SocketDir returns the directory holding every instance's UNIX socket
func (f *Factory) SocketDir() string {
	return f.socketDir.path
}

// Version returns the server major version recorded by initdb
func (f *Factory) Version() string {
	return f.version
}

// Scheduler returns the scheduling strategy in use
func (f *Factory) Scheduler() procmgr.Scheduler {
	return f.scheduler
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
