// Package procmgr runs and supervises the external programs behind a
// temporary database: one-shot commands through Runner, and long-lived
// servers through a Scheduler that hands each spawned Process to a
// Supervisor.
//
// Two scheduling strategies share the same lifecycle:
//
//   - Blocking admits every caller and stops processes on the caller's
//     goroutine.
//   - Cooperative bounds the number of live processes with a semaphore and
//     watches each process from its own goroutine, so spontaneous exits are
//     noticed and logged.
package procmgr
