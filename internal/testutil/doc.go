// Package testutil provides shared test helpers for pgtemp.
//
// Most lifecycle tests run against a fake engine: small shell scripts that
// stand in for initdb, postgres, createuser and createdb and record every
// invocation. They need nothing but /bin/sh, so the tests run on any UNIX
// host. Tests that talk to a real server skip when initdb cannot be found.
//
//	engine := testutil.NewFakeEngine(t)
//	f, err := pgtemp.NewFactory(ctx, pgtemp.WithLocator(locator.Static(engine.Paths())))
package testutil
