package pgtemp

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/jrepp/pgtemp/pkg/locator"
	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// Option configures a Factory
type Option func(*Factory)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc procmgr.MetricsCollector) Option {
	return func(f *Factory) {
		f.metrics = mc
	}
}

// WithTracer sets the tracer used for factory and instance spans
func WithTracer(tracer trace.Tracer) Option {
	return func(f *Factory) {
		f.tracer = tracer
	}
}

// WithScheduler selects the scheduling strategy
func WithScheduler(s procmgr.Scheduler) Option {
	return func(f *Factory) {
		f.scheduler = s
	}
}

// WithLocator sets how PostgreSQL executables are found
func WithLocator(l locator.Locator) Option {
	return func(f *Factory) {
		f.locator = l
	}
}

// WithBasePort sets the first port handed out
func WithBasePort(port uint16) Option {
	return func(f *Factory) {
		f.basePort = port
	}
}

// WithSharedBuffers sets shared_buffers in bytes, rounded down to whole kB
func WithSharedBuffers(bytes int64) Option {
	return func(f *Factory) {
		f.sharedBuffers = bytes
	}
}

// WithTempDir sets the directory under which all temporary directories are
// created
func WithTempDir(dir string) Option {
	return func(f *Factory) {
		f.tempRoot = dir
	}
}

// WithSettings applies loaded settings. Options given after it override
// individual fields.
func WithSettings(s *Settings) Option {
	return func(f *Factory) {
		if s.BasePort > 0 && s.BasePort <= 65535 {
			f.basePort = uint16(s.BasePort)
		}
		if n, err := s.SharedBufferBytes(); err == nil {
			f.sharedBuffers = n
		}
		f.tempRoot = s.TempDir
		if s.BinDir != "" {
			f.locator = locator.New(s.BinDir)
		}
		f.scheduler = s.NewScheduler()
	}
}
