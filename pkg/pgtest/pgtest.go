// Package pgtest wires disposable PostgreSQL instances into Go tests.
//
//	func TestUsers(t *testing.T) {
//		g := pgtest.New(t)
//		pgtest.Migrate(t, g, migrations, "migrations")
//		pool := pgtest.Pool(t, g)
//		...
//	}
//
// Every helper registers its cleanup with t.Cleanup, so tests never close
// anything themselves.
package pgtest

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/jrepp/pgtemp/pkg/locator"
	"github.com/jrepp/pgtemp/pkg/pgtemp"
)

// Option configures New.
type Option func(*options)

type options struct {
	factory  *pgtemp.Factory
	blocking bool
}

// UseFactory creates the instance from f instead of the process-wide factory.
func UseFactory(f *pgtemp.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// UseBlocking creates the instance from the process-wide blocking factory,
// bypassing the concurrency limit.
func UseBlocking() Option {
	return func(o *options) {
		o.blocking = true
	}
}

// RequirePostgres skips the test unless initdb can be located and the test
// is not running as root, which initdb refuses.
func RequirePostgres(t testing.TB) {
	t.Helper()

	if os.Geteuid() == 0 {
		t.Skip("pgtest: initdb cannot run as root")
	}
	if _, err := locator.New(os.Getenv(pgtemp.EnvPrefix + "_BIN_DIR")).Locate("initdb"); err != nil {
		t.Skipf("pgtest: PostgreSQL not available: %v", err)
	}
}

// New starts a fresh instance and stops it when the test finishes.
func New(t testing.TB, opts ...Option) *pgtemp.Guard {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	var (
		g   *pgtemp.Guard
		err error
	)
	switch {
	case o.factory != nil:
		g, err = o.factory.NewInstance(ctx)
	case o.blocking:
		g, err = pgtemp.NewDefaultBlockingInstance(ctx)
	default:
		g, err = pgtemp.NewDefaultInstance(ctx)
	}
	if err != nil {
		if s := pgtemp.GetSuggestion(err); s != "" {
			t.Fatalf("pgtest: start instance: %v (%s)", err, s)
		}
		t.Fatalf("pgtest: start instance: %v", err)
	}

	t.Cleanup(func() {
		if err := g.Close(); err != nil {
			t.Errorf("pgtest: close instance %s: %v", g.ID(), err)
		}
	})
	return g
}

// Pool opens a pgx connection pool to g, closed when the test finishes.
func Pool(t testing.TB, g *pgtemp.Guard) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), g.ConnectionString())
	if err != nil {
		t.Fatalf("pgtest: open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// DB opens a database/sql handle to g, closed when the test finishes.
func DB(t testing.TB, g *pgtemp.Guard) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", g.ConnectionString())
	if err != nil {
		t.Fatalf("pgtest: open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Migrate applies every up migration found under dir in fsys.
func Migrate(t testing.TB, g *pgtemp.Guard, fsys fs.FS, dir string) {
	t.Helper()

	if err := migrateUp(g, fsys, dir); err != nil {
		t.Fatalf("pgtest: migrate: %v", err)
	}
}

func migrateUp(g *pgtemp.Guard, fsys fs.FS, dir string) error {
	sourceDriver, err := iofs.New(fsys, dir)
	if err != nil {
		return err
	}

	// The migrate driver closes db along with itself
	db, err := sql.Open("pgx", g.ConnectionString())
	if err != nil {
		return err
	}

	dbDriver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return err
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", dbDriver)
	if err != nil {
		_ = dbDriver.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
