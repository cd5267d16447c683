/*
Package notifier implements the process-exit reactor (spec §4.1): a
single-threaded, cooperative loop that waits non-blockingly for the
termination of registered child processes and dispatches one callback
per pid, exactly once, in the reactor's own execution context.

# Architecture

	┌─────────────────── PROCESS-EXIT REACTOR ───────────────────┐
	│                                                              │
	│  register(pid, cb) ──► pending map[pid]callback             │
	│                                                              │
	│  run loop (single goroutine):                                │
	│    tick ──► wait4(-1, WNOHANG) ──► (pid, status)             │
	│    pid in pending? ──► decode exit code ──► dispatch once    │
	│                                                              │
	│  cancel(pid) ──► delete from pending, no callback fires      │
	└──────────────────────────────────────────────────────────────┘

Signal-terminated children are reported with an exit code of 128+signal
(>=128), matching the spec's "distinguished sentinel" so callers can
keep comparing against zero for success.

This package plays the role the teacher's pkg/events event broker
played for cluster-wide pub/sub, narrowed to the reactor's one-shot,
per-pid delivery guarantee instead of broadcast-to-many-subscribers.
*/
package notifier
