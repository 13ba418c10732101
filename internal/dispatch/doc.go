// Package dispatch owns the worker process: the single child running the most
// recent valid build artifact.
//
// Execute replaces the worker:
//   - the previous worker, if any, gets SIGTERM without waiting for it
//   - a reaper goroutine sends SIGKILL if it is still alive after the stop grace
//     period (default 5s)
//   - the artifact is spawned with the configured args and the supervisor's
//     environment plus overrides, stdout and stderr inherited
//
// A worker that exits on its own is reported to the Observer. Workers stopped
// by Execute or Stop are not.
//
// Error handling:
//   - spawn failure → *SpawnError, which ends the supervisor run
//   - signal failures on an already-exited worker are ignored
package dispatch
