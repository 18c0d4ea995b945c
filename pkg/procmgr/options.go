package procmgr

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger used for command output
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(r *Runner) {
		r.metrics = mc
	}
}

// WithTracer sets the tracer used for command spans
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}
