package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/jrepp/pgtemp/pkg/pgtemp"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an instance and keep it until interrupted",
	Long: `Start a disposable PostgreSQL instance, print how to connect to it and
keep it running until SIGINT or SIGTERM. The instance and its files are
removed on exit.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
	defer stop()

	f, cleanup, err := newFactory(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	g, err := f.NewInstance(ctx)
	if err != nil {
		return err
	}

	if err := uiInstance.Record("PostgreSQL instance", instanceFields(f, g)); err != nil {
		_ = g.Close()
		return err
	}
	uiInstance.Subtle("Press Ctrl+C to stop")

	return waitInstance(ctx, g)
}

// waitInstance blocks until ctx is done or the server exits on its own, then
// tears the instance down.
func waitInstance(ctx context.Context, g *pgtemp.Guard) error {
	select {
	case <-ctx.Done():
	case <-g.Exited():
	}

	// An interrupt that also reached the server is still a normal stop
	if ctx.Err() != nil {
		logger.Info("stopping instance", "id", g.ID(), "port", g.Port())
		if err := g.Close(); err != nil {
			return err
		}
		uiInstance.Success("Instance removed")
		return nil
	}

	tail := g.OutputTail()
	_ = g.Close()
	return pgtemp.NewError(pgtemp.ErrorCodeEarlyExit, "postgres exited while running").
		WithContext("port", g.Port()).
		WithContext("output", strings.Join(tail, "\n"))
}
