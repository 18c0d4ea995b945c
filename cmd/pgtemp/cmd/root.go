// Package cmd provides the CLI commands for pgtemp
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jrepp/pgtemp/cmd/pgtemp/internal/ui"
	"github.com/jrepp/pgtemp/pkg/pgtemp"
)

// Global flag values
var (
	flagConfig      string
	flagLogLevel    string
	flagOutput      string
	flagMetricsAddr string
	flagTrace       bool
)

var (
	settings   *pgtemp.Settings
	uiInstance *ui.UI
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pgtemp",
	Short: "Disposable PostgreSQL instances",
	Long: `pgtemp starts throwaway PostgreSQL servers that listen only on a UNIX
socket and vanish, data and all, when they stop.

Configuration is read from pgtemp.yaml in the working directory or
~/.config/pgtemp, overridden by PGTEMP_* environment variables and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := ui.ParseFormat(flagOutput)
		if err != nil {
			return err
		}
		uiInstance = ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), format)

		settings, err = pgtemp.LoadSettings(flagConfig)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			settings.LogLevel = flagLogLevel
		}
		if err := settings.Validate(); err != nil {
			return err
		}

		level, err := pgtemp.ParseLogLevel(settings.LogLevel)
		if err != nil {
			return err
		}
		logger = slog.New(log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
			Prefix:          "pgtemp",
		}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./pgtemp.yaml or ~/.config/pgtemp/pgtemp.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9187")
	rootCmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "print OpenTelemetry spans to stderr")
}

// exitError carries a child process exit status out of a command
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	msg := err.Error()
	if s := pgtemp.GetSuggestion(err); s != "" {
		msg += "\n  " + s
	}
	if uiInstance != nil {
		uiInstance.Error(msg)
	} else {
		fmt.Fprintln(os.Stderr, "Error: "+msg)
	}
	return 1
}

// newFactory builds a factory from the loaded settings with observability
// attached. The returned cleanup closes the factory before shutting down
// observability so the final spans and metrics are flushed.
func newFactory(ctx context.Context, cmd *cobra.Command) (*pgtemp.Factory, func(), error) {
	obs, err := startObservability(ctx, flagMetricsAddr, flagTrace, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	opts := []pgtemp.Option{
		pgtemp.WithSettings(settings),
		pgtemp.WithLogger(logger),
		pgtemp.WithTracer(obs.tracer()),
	}
	if obs.metrics != nil {
		opts = append(opts, pgtemp.WithMetricsCollector(obs.metrics))
	}

	f, err := pgtemp.NewFactory(ctx, opts...)
	if err != nil {
		_ = obs.shutdown(context.Background())
		return nil, nil, err
	}

	cleanup := func() {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close factory", "error", err)
		}
		if err := obs.shutdown(context.Background()); err != nil {
			logger.Warn("failed to shut down observability", "error", err)
		}
	}
	return f, cleanup, nil
}

func instanceFields(f *pgtemp.Factory, g *pgtemp.Guard) []ui.Field {
	return []ui.Field{
		{Key: "id", Label: "ID", Value: g.ID()},
		{Key: "pid", Label: "PID", Value: g.PID()},
		{Key: "port", Label: "Port", Value: g.Port()},
		{Key: "socket_dir", Label: "Socket directory", Value: g.SocketDir()},
		{Key: "data_dir", Label: "Data directory", Value: g.DataDir()},
		{Key: "version", Label: "Server version", Value: f.Version()},
		{Key: "connection_string", Label: "Connection string", Value: g.ConnectionString()},
	}
}
