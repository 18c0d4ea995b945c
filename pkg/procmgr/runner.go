package procmgr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrepp/pgtemp/pkg/procmgr"

// Runner runs one-shot commands to completion and classifies their failures.
// Every command is attempted exactly once.
type Runner struct {
	logger  *slog.Logger
	metrics MetricsCollector
	tracer  trace.Tracer
}

// NewRunner creates a Runner
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:  slog.Default(),
		metrics: NewNoopMetricsCollector(),
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewNoopMetricsCollector()
	}

	return r
}

// Execute runs the command and returns its standard output.
//
// The context carries the trace span only. A started command always runs to
// completion.
func (r *Runner) Execute(ctx context.Context, c Command) (string, error) {
	_, span := r.tracer.Start(ctx, "procmgr.Execute", trace.WithAttributes(
		attribute.String("command.path", c.Path),
		attribute.StringSlice("command.args", c.Args),
	))
	defer span.End()

	start := time.Now()
	out, err := r.execute(c)
	r.metrics.CommandDuration(c.Path, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (r *Runner) execute(c Command) (string, error) {
	desc := c.String()

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("executing command", "command", desc)

	if err := cmd.Start(); err != nil {
		return "", &ExecError{Command: desc, Err: err}
	}
	waitErr := cmd.Wait()

	if !utf8.Valid(stdout.Bytes()) {
		return "", &DecodeError{Command: desc, Stream: "stdout"}
	}
	if !utf8.Valid(stderr.Bytes()) {
		return "", &DecodeError{Command: desc, Stream: "stderr"}
	}

	out := stdout.String()
	name := filepath.Base(c.Path)
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line != "" {
			r.logger.Debug("command output", "command", name, "line", line)
		}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return out, &CommandError{
				Command:  desc,
				ExitCode: exitErr.ExitCode(),
				Stdout:   out,
				Stderr:   stderr.String(),
			}
		}
		return out, &ExecError{Command: desc, Err: waitErr}
	}

	return out, nil
}
