package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FakeEngine is a directory of shell scripts that behave like the PostgreSQL
// executables closely enough for lifecycle tests.
type FakeEngine struct {
	Dir     string
	CallLog string
}

type engineConfig struct {
	initdbFails        bool
	postgresExitsEarly bool
	readyOnStdout      bool
	createuserFails    bool
	createdbFails      bool
}

// EngineOption customizes a fake engine.
type EngineOption func(*engineConfig)

// WithFailingInitdb makes initdb exit non-zero without writing anything.
func WithFailingInitdb() EngineOption {
	return func(c *engineConfig) { c.initdbFails = true }
}

// WithEarlyExit makes postgres exit before reporting readiness.
func WithEarlyExit() EngineOption {
	return func(c *engineConfig) { c.postgresExitsEarly = true }
}

// WithReadyOnStdout makes postgres report readiness on stdout instead of stderr.
func WithReadyOnStdout() EngineOption {
	return func(c *engineConfig) { c.readyOnStdout = true }
}

// WithFailingCreateUser makes createuser exit non-zero.
func WithFailingCreateUser() EngineOption {
	return func(c *engineConfig) { c.createuserFails = true }
}

// WithFailingCreateDB makes createdb exit non-zero.
func WithFailingCreateDB() EngineOption {
	return func(c *engineConfig) { c.createdbFails = true }
}

// NewFakeEngine writes the fake executables into a fresh temp directory.
func NewFakeEngine(t testing.TB, opts ...EngineOption) *FakeEngine {
	t.Helper()

	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	dir := t.TempDir()
	e := &FakeEngine{
		Dir:     dir,
		CallLog: filepath.Join(dir, "calls.log"),
	}
	calls := shellQuote(e.CallLog)

	initdb := `echo "initdb $* PGDATA=$PGDATA" >> ` + calls + `
[ -n "$PGDATA" ] || { echo "initdb: error: no data directory specified" >&2; exit 1; }
`
	if cfg.initdbFails {
		initdb += `echo "initdb: error: could not create directory \"$PGDATA\": Permission denied" >&2
exit 1
`
	} else {
		initdb += `mkdir -p "$PGDATA/base/1" "$PGDATA/global" || exit 1
chmod 700 "$PGDATA"
echo 16 > "$PGDATA/PG_VERSION"
echo "# stock configuration" > "$PGDATA/postgresql.conf"
echo "catalog" > "$PGDATA/base/1/1259"
echo "control" > "$PGDATA/global/pg_control"
echo "Success. You can now start the database server using:"
`
	}
	WriteScript(t, dir, "initdb", initdb)

	postgres := `[ "$1" = "--version" ] && { echo "postgres (PostgreSQL) 16.4"; exit 0; }
port=""
while [ $# -gt 0 ]; do
	case "$1" in
		-p) port="$2"; shift 2 ;;
		*) shift ;;
	esac
done
echo "postgres -p $port PGDATA=$PGDATA" >> ` + calls + `
[ -f "$PGDATA/PG_VERSION" ] || { echo "FATAL:  \"$PGDATA\" is not a valid data directory" >&2; exit 1; }
`
	switch {
	case cfg.postgresExitsEarly:
		postgres += `echo "LOG:  starting PostgreSQL 16" >&2
echo "FATAL:  could not create lock file \"/tmp/.s.PGSQL.$port.lock\"" >&2
exit 1
`
	default:
		stream := ">&2"
		if cfg.readyOnStdout {
			stream = ""
		}
		postgres += `echo $$ > "$PGDATA/postmaster.pid"
trap 'echo "LOG:  received fast shutdown request" >&2; exit 0' INT TERM
echo "LOG:  listening on Unix socket" >&2
echo "LOG:  database system is ready to accept connections" ` + stream + `
while :; do sleep 0.05; done
`
	}
	WriteScript(t, dir, "postgres", postgres)

	WriteScript(t, dir, "createuser", clientScript("createuser", calls, cfg.createuserFails))
	WriteScript(t, dir, "createdb", clientScript("createdb", calls, cfg.createdbFails))

	return e
}

func clientScript(name, calls string, fails bool) string {
	body := `echo "` + name + ` $*" >> ` + calls + "\n"
	if fails {
		body += `echo "` + name + `: error: could not connect to server" >&2
exit 1
`
	} else {
		body += `echo "SELECT pg_catalog.set_config('search_path', '', false);"
`
	}
	return body
}

// Paths maps executable names to their fake paths.
func (e *FakeEngine) Paths() map[string]string {
	paths := make(map[string]string, 4)
	for _, name := range []string{"initdb", "postgres", "createuser", "createdb"} {
		paths[name] = filepath.Join(e.Dir, name)
	}
	return paths
}

// Calls returns the recorded invocations in order.
func (e *FakeEngine) Calls(t testing.TB) []string {
	t.Helper()

	data, err := os.ReadFile(e.CallLog)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read call log: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// CallsFor returns the recorded invocations of one executable.
func (e *FakeEngine) CallsFor(t testing.TB, name string) []string {
	t.Helper()

	var out []string
	for _, call := range e.Calls(t) {
		if strings.HasPrefix(call, name+" ") {
			out = append(out, call)
		}
	}
	return out
}

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	content := fmt.Sprintf("#!/bin/sh\n%s", body)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
