package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sys/unix"

	"github.com/jrepp/pgtemp/cmd/pgtemp/internal/ui"
	tu "github.com/jrepp/pgtemp/internal/testutil"
	"github.com/jrepp/pgtemp/pkg/locator"
	"github.com/jrepp/pgtemp/pkg/pgtemp"
	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// fakeEnvironment points settings at a fake engine and returns the temp root
func fakeEnvironment(t *testing.T) string {
	t.Helper()

	engine := tu.NewFakeEngine(t)
	root := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PGTEMP_BIN_DIR", engine.Dir)
	t.Setenv("PGTEMP_TEMP_DIR", root)
	t.Setenv("PGTEMP_BASE_PORT", "25500")
	return root
}

func executeCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	flagConfig, flagLogLevel, flagOutput = "", "info", "text"
	flagMetricsAddr, flagTrace, flagCommand = "", false, ""
	uiInstance = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	code := Execute()
	return code, out.String(), errOut.String()
}

func TestExec_Environment(t *testing.T) {
	root := fakeEnvironment(t)

	code, out, errOut := executeCLI(t, "exec", "--",
		"sh", "-c", `echo "$PGPORT|$PGUSER|$PGDATABASE|$DATABASE_URL"; test -d "$PGHOST"`)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "25500|demo|demo|postgresql://demo@localhost:25500/demo?host=")

	// Instance, template and socket directory are gone
	left, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestExec_ExitCode(t *testing.T) {
	fakeEnvironment(t)

	code, _, _ := executeCLI(t, "exec", "--command", `sh -c 'exit 3'`)
	assert.Equal(t, 3, code)
}

func TestExec_Errors(t *testing.T) {
	fakeEnvironment(t)

	code, _, errOut := executeCLI(t, "exec", "--", "/nonexistent/command")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "/nonexistent/command")

	code, _, errOut = executeCLI(t, "exec")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no command given")
}

func TestInvalidOutputFormat(t *testing.T) {
	fakeEnvironment(t)

	code, _, _ := executeCLI(t, "-o", "toml", "version")
	assert.Equal(t, 1, code)
}

func TestVersion_JSON(t *testing.T) {
	fakeEnvironment(t)

	code, out, errOut := executeCLI(t, "-o", "json", "version")
	require.Equal(t, 0, code, errOut)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "dev", got["version"])
	assert.Equal(t, "postgres (PostgreSQL) 16.4", got["postgres"])
}

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "args", args: []string{"psql", "-c", "SELECT 1"}, want: []string{"psql", "-c", "SELECT 1"}},
		{name: "command", command: `psql -c 'SELECT 1'`, want: []string{"psql", "-c", "SELECT 1"}},
		{name: "both", command: "psql", args: []string{"psql"}, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "blank command", command: "   ", wantErr: true},
		{name: "unterminated quote", command: `psql -c 'SELECT 1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commandLine(tt.command, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func fakeFactory(t *testing.T) *pgtemp.Factory {
	t.Helper()

	engine := tu.NewFakeEngine(t)
	f, err := pgtemp.NewFactory(context.Background(),
		pgtemp.WithLocator(locator.Static(engine.Paths())),
		pgtemp.WithTempDir(t.TempDir()),
		pgtemp.WithLogger(tu.TestLogger(t)),
		pgtemp.WithScheduler(procmgr.Cooperative(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWaitInstance_Interrupted(t *testing.T) {
	f := fakeFactory(t)
	logger = tu.TestLogger(t)
	var errOut bytes.Buffer
	uiInstance = ui.New(io.Discard, &errOut, ui.FormatText)

	g, err := f.NewInstance(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, waitInstance(ctx, g))

	assert.Equal(t, procmgr.ProcessStateStopped, g.State())
	assert.NoDirExists(t, g.DataDir())
	assert.Contains(t, errOut.String(), "Instance removed")
}

func TestWaitInstance_EarlyExit(t *testing.T) {
	f := fakeFactory(t)
	logger = tu.TestLogger(t)
	uiInstance = ui.New(io.Discard, io.Discard, ui.FormatText)

	g, err := f.NewInstance(context.Background())
	require.NoError(t, err)
	require.NoError(t, unix.Kill(g.PID(), unix.SIGKILL))

	err = waitInstance(context.Background(), g)
	assert.True(t, pgtemp.IsErrorCode(err, pgtemp.ErrorCodeEarlyExit), "got %v", err)
	assert.NoDirExists(t, g.DataDir())
}

func TestWaitInstance_InterruptWinsOverExit(t *testing.T) {
	f := fakeFactory(t)
	logger = tu.TestLogger(t)
	var errOut bytes.Buffer
	uiInstance = ui.New(io.Discard, &errOut, ui.FormatText)

	g, err := f.NewInstance(context.Background())
	require.NoError(t, err)

	// The server and the CLI were both interrupted
	require.NoError(t, unix.Kill(g.PID(), unix.SIGKILL))
	<-g.Exited()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, waitInstance(ctx, g))
	assert.NoDirExists(t, g.DataDir())
	assert.Contains(t, errOut.String(), "Instance removed")
}

func TestInstanceEnv(t *testing.T) {
	g, err := fakeFactory(t).NewInstance(context.Background())
	require.NoError(t, err)
	defer g.Close()

	env := instanceEnv(g)
	assert.Contains(t, env, "DATABASE_URL="+g.ConnectionString())
	assert.Contains(t, env, "PGHOST="+g.SocketDir())
	assert.Contains(t, env, "PGUSER=demo")
	assert.Contains(t, env, "PGDATABASE=demo")
}

func TestObservability_Metrics(t *testing.T) {
	o, err := startObservability(context.Background(), "127.0.0.1:0", false, io.Discard)
	require.NoError(t, err)
	defer o.shutdown(context.Background())

	require.NotNil(t, o.metrics)
	o.metrics.ActiveProcesses(2)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + o.metricsAddr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pgtemp_active_processes 2")

	resp, err = client.Get("http://" + o.metricsAddr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, o.shutdown(context.Background()))
	_, err = client.Get("http://" + o.metricsAddr + "/health")
	assert.Error(t, err)
}

func TestObservability_Tracing(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(tracenoop.NewTracerProvider()) })

	var out bytes.Buffer
	o, err := startObservability(context.Background(), "", true, &out)
	require.NoError(t, err)
	assert.Nil(t, o.metrics)

	_, span := o.tracer().Start(context.Background(), "pgtemp.NewInstance")
	span.End()
	require.NoError(t, o.shutdown(context.Background()))

	assert.Contains(t, out.String(), "pgtemp.NewInstance")
}
