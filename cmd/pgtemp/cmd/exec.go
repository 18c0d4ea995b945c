package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/jrepp/pgtemp/pkg/pgtemp"
)

var flagCommand string

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- command [args...]",
	Short: "Run a command against a fresh instance",
	Long: `Start a disposable PostgreSQL instance, run a command with the connection
details in its environment, then remove the instance. The command's exit
status becomes pgtemp's.

The command sees DATABASE_URL, PGHOST, PGPORT, PGUSER and PGDATABASE, so
libpq tools work unchanged:

  pgtemp exec -- psql -c 'SELECT version()'
  pgtemp exec --command "go test ./store/..."`,
	RunE: runExec,
}

func init() {
	execCmd.Flags().SetInterspersed(false)
	execCmd.Flags().StringVarP(&flagCommand, "command", "c", "", "command line to run, split with shell quoting rules")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	argv, err := commandLine(flagCommand, args)
	if err != nil {
		return err
	}

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
	defer func() {
		if err := g.Close(); err != nil {
			logger.Error("failed to remove instance", "id", g.ID(), "error", err)
		}
	}()

	child := exec.CommandContext(ctx, argv[0], argv[1:]...)
	child.Env = append(os.Environ(), instanceEnv(g)...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Cancel = func() error {
		return child.Process.Signal(unix.SIGTERM)
	}

	logger.Debug("running command", "argv", argv, "port", g.Port())
	err = child.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		return &exitError{code: exitCode(exitErr)}
	default:
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
}

// exitCode follows the shell convention of 128+signal for killed children
func exitCode(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return err.ExitCode()
}

// commandLine resolves the command to run from either --command or the
// positional arguments.
func commandLine(command string, args []string) ([]string, error) {
	if command != "" && len(args) > 0 {
		return nil, errors.New("use either --command or arguments after --, not both")
	}
	if command == "" {
		if len(args) == 0 {
			return nil, errors.New("no command given")
		}
		return args, nil
	}

	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse --command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("no command given")
	}
	return argv, nil
}

// instanceEnv returns the libpq environment for connecting to g
func instanceEnv(g *pgtemp.Guard) []string {
	return []string{
		"DATABASE_URL=" + g.ConnectionString(),
		"PGHOST=" + g.SocketDir(),
		"PGPORT=" + strconv.Itoa(g.Port()),
		"PGUSER=" + pgtemp.DefaultRole,
		"PGDATABASE=" + pgtemp.DefaultDatabase,
	}
}
