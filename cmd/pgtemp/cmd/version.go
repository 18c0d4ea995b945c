package cmd

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrepp/pgtemp/cmd/pgtemp/internal/ui"
	"github.com/jrepp/pgtemp/pkg/locator"
	"github.com/jrepp/pgtemp/pkg/procmgr"
)

// Version information set at build time with -ldflags
var (
	version = "dev"
	commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		return uiInstance.Record("pgtemp "+version, []ui.Field{
			{Key: "version", Label: "Version", Value: version},
			{Key: "commit", Label: "Commit", Value: commit},
			{Key: "go_version", Label: "Go", Value: runtime.Version()},
			{Key: "postgres", Label: "PostgreSQL", Value: serverVersion(ctx, settings.BinDir)},
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// serverVersion reports `postgres --version` for the installation pgtemp
// would use.
func serverVersion(ctx context.Context, binDir string) string {
	path, err := locator.New(binDir).Locate("postgres")
	if err != nil {
		return "not found"
	}

	out, err := procmgr.NewRunner(procmgr.WithLogger(logger)).Execute(ctx, procmgr.Command{
		Path: path,
		Args: []string{"--version"},
	})
	if err != nil {
		logger.Debug("failed to query server version", "path", path, "error", err)
		return "unknown"
	}
	return strings.TrimSpace(out)
}
