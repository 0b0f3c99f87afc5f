// Package recovery implements the error handling and recovery core of
// the SetForge installer.
//
// # Overview
//
// The installer drives a multi-phase setup workflow; this package
// governs how that workflow reacts to failure. It classifies arbitrary
// faults, grades their severity, proposes ordered recovery actions,
// renders user-facing messages, and maintains the stack of named
// snapshots that lets a failed or cancelled run roll back to a
// known-good point.
//
// # Components
//
//   - Taxonomy: ErrorCategory, ErrorSeverity and RecoveryAction value
//     sets plus the typed fault family (RequirementsError,
//     ConnectivityError, PermissionError).
//   - Classifier: maps any fault to a category and categories to their
//     baseline severity. Classification is total: unrecognized input
//     degrades to CategoryUnknown instead of failing.
//   - Advisor: maps (category, severity, context) to ordered recovery
//     actions and renders the per-category user message.
//   - SnapshotStore: the ordered stack of installation checkpoints,
//     with stack-discipline rollback.
//   - Handler: the façade composing the above, with a bounded error
//     history, progress/cleanup callbacks and cancellation handling.
//
// # Usage
//
//	h := recovery.NewHandler(recovery.Config{Logger: logger})
//
//	snapID := h.CreateSnapshot("services", "start-qdrant", "before service start", nil)
//
//	if err := startService(ctx); err != nil {
//	    ec := h.Handle(err, recovery.Context{Phase: "services", Step: "start-qdrant"})
//	    switch ec.SuggestedActions[0] {
//	    case recovery.ActionRetry:
//	        // re-run the step
//	    case recovery.ActionRollback:
//	        h.RollbackTo(snapID, false)
//	    }
//	}
//
// The handler never performs I/O and never undoes side effects itself.
// Rollback only selects the current snapshot; acting on it is the
// installer's job, informed by the returned values.
//
// # Concurrency
//
// All Handler and SnapshotStore operations are safe for concurrent
// use. Caller-supplied callbacks are invoked outside the internal
// locks, so a slow or failing callback cannot corrupt handler state.
package recovery
