// Package installer drives the phased SetForge install workflow.
//
// An Installer executes a list of Phases, each a sequence of Steps. A
// snapshot marks every phase boundary, and every step failure is fed
// to the recovery handler; the first suggested action the driver can
// actually perform decides what happens next:
//
//   - Retry: re-run the step with exponential backoff, bounded by the
//     configured maximum attempts.
//   - Use fallback: run the step's fallback function, once.
//   - Skip step: record the step as skipped and continue.
//   - Rollback: return to the phase-boundary snapshot, run the
//     registered teardowns, and stop.
//   - Abort / manual intervention / request permissions: clean up
//     partial work and stop.
//
// Teardown hooks registered with AddTeardown undo applied work in
// reverse order when a run rolls back, aborts or is cancelled.
//
// The package also ships the preflight and service checks used before
// and after a run; their probes return typed recovery errors so
// classification stays exact.
package installer
