package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// observability owns the optional tracing and metrics endpoints of a CLI run
type observability struct {
	metrics        *procmgr.PrometheusMetricsCollector
	tracerProvider *sdktrace.TracerProvider
	metricsServer  *http.Server
	metricsAddr    string
	shutdownOnce   sync.Once
	shutdownErr    error
}

// startObservability installs a stdout span exporter when tracing is set and
// serves /metrics and /health on metricsAddr when it is non-empty.
func startObservability(ctx context.Context, metricsAddr string, tracing bool, traceOut io.Writer) (*observability, error) {
	o := &observability{}

	if tracing {
		if err := o.initializeTracing(ctx, traceOut); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if metricsAddr != "" {
		o.metrics = procmgr.NewPrometheusMetricsCollector("pgtemp")
		if err := o.startMetricsServer(metricsAddr); err != nil {
			_ = o.shutdown(ctx)
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	return o, nil
}

func (o *observability) initializeTracing(ctx context.Context, out io.Writer) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("pgtemp"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	o.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(o.tracerProvider)
	return nil
}

func (o *observability) tracer() trace.Tracer {
	return otel.Tracer("github.com/jrepp/pgtemp")
}

func (o *observability) startMetricsServer(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	o.metricsAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(o.metrics.Registry(), promhttp.HandlerOpts{}))

	o.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", o.metricsAddr)
		if err := o.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

func (o *observability) shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		var errs []error

		if o.metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
			cancel()
		}

		if o.tracerProvider != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := o.tracerProvider.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
			}
			cancel()
		}

		o.shutdownErr = errors.Join(errs...)
	})
	return o.shutdownErr
}
