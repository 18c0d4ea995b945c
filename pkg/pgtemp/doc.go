// Package pgtemp provides disposable PostgreSQL instances for tests.
//
// A Factory runs initdb once into a template directory. Each call to
// NewInstance copies the template (with reflinks where the filesystem
// supports them), writes a minimal postgresql.conf, starts a server listening
// only on a UNIX socket and creates a superuser role and database named
// "demo". The returned Guard owns the server and its files; Close stops the
// server and removes everything.
//
// # Quick Start
//
//	f, err := pgtemp.NewFactory(ctx)
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	g, err := f.NewInstance(ctx)
//	if err != nil {
//		return err
//	}
//	defer g.Close()
//
//	conn, err := pgx.Connect(ctx, g.ConnectionString())
//
// For one-off use the process-wide factory avoids repeated initdb runs:
//
//	g, err := pgtemp.NewDefaultInstance(ctx)
//
// # Scheduling
//
// The cooperative scheduler (the default) admits at most eight live
// instances process-wide and watches each server from its own goroutine,
// logging an error if one exits on its own. The blocking scheduler admits
// every caller and stops servers on the caller's goroutine.
//
// # Errors
//
// All failures are *Error values carrying an ErrorCode, context and a
// suggestion. Command failures wrap *procmgr.CommandError, so captured
// stderr is available through errors.As.
//
// # Limitations
//
// Readiness is detected from the server log with no timeout. Role and
// database names are fixed. Ports are never reused within a factory, so a
// factory can create at most 65535-basePort instances.
package pgtemp
