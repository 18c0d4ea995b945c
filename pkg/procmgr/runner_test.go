package procmgr

import (
	"context"
	"errors"
	"testing"

	"github.com/jrepp/pgtemp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, metrics MetricsCollector) *Runner {
	return NewRunner(
		WithLogger(testutil.TestLogger(t)),
		WithMetricsCollector(metrics),
	)
}

func TestRunner_Execute_Success(t *testing.T) {
	metrics := newRecordingMetrics()
	r := newTestRunner(t, metrics)

	out, err := r.Execute(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{"-c", "echo hello; echo world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", out)
	assert.Equal(t, 1, metrics.getCommands())
}

func TestRunner_Execute_Env(t *testing.T) {
	r := newTestRunner(t, nil)

	out, err := r.Execute(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{"-c", `echo "$PGTEMP_RUNNER_TEST"`},
		Env:  []string{"PGTEMP_RUNNER_TEST=from-env"},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env\n", out)
}

func TestRunner_Execute_NonZeroExit(t *testing.T) {
	metrics := newRecordingMetrics()
	r := newTestRunner(t, metrics)

	out, err := r.Execute(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{"-c", "echo partial; echo 'role already exists' >&2; exit 3"},
	})
	require.Error(t, err)
	assert.Equal(t, "partial\n", out)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "partial\n", cmdErr.Stdout)
	assert.Contains(t, cmdErr.Stderr, "role already exists")
	assert.Contains(t, err.Error(), "exited with code 3")

	// Exactly one attempt
	assert.Equal(t, 1, metrics.getCommands())
}

func TestRunner_Execute_NotFound(t *testing.T) {
	r := newTestRunner(t, nil)

	_, err := r.Execute(context.Background(), Command{Path: "/nonexistent/pgtemp/initdb"})
	require.Error(t, err)

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, execErr.Command, "/nonexistent/pgtemp/initdb")
}

func TestRunner_Execute_InvalidUTF8(t *testing.T) {
	r := newTestRunner(t, nil)

	_, err := r.Execute(context.Background(), Command{
		Path: "/bin/sh",
		Args: []string{"-c", `printf '\377\376\n'`},
	})
	require.Error(t, err)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "stdout", decErr.Stream)
}

func TestCommand_String(t *testing.T) {
	c := Command{
		Path: "/usr/bin/createdb",
		Args: []string{"-h", "/tmp/sock dir", "-O", "demo", ""},
	}
	assert.Equal(t, `/usr/bin/createdb -h "/tmp/sock dir" -O demo ""`, c.String())
}
