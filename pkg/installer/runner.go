package installer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/setforge/setforge/pkg/config"
	"github.com/setforge/setforge/pkg/recovery"
	"github.com/setforge/setforge/pkg/stores"
	"github.com/setforge/setforge/pkg/telemetry"
)

// Options configures an Installer.
type Options struct {
	Settings  *config.Settings
	Telemetry *telemetry.Telemetry

	// Handler is the error handling façade. When nil the installer
	// builds one wired to the telemetry metrics and the journal.
	Handler *recovery.Handler

	// Journal, when set, persists the run and its handled errors.
	Journal stores.Store

	// Version is the installer version recorded with the run.
	Version string
}

// Installer drives the phased install workflow and feeds every failure
// through the recovery handler. It implements recovery.Teardowner:
// teardown hooks registered during the run are executed in reverse
// order, at most once.
type Installer struct {
	settings *config.Settings
	tel      *telemetry.Telemetry
	handler  *recovery.Handler
	journal  stores.Store
	runID    string
	version  string
	log      *telemetry.Logger

	mu        sync.Mutex
	teardowns []func(ctx context.Context) error
	tornDown  bool
}

// New creates an installer for one run.
func New(opts Options) *Installer {
	if opts.Settings == nil {
		opts.Settings = config.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.FromContext(context.Background())
	}

	runID := uuid.New().String()
	log := opts.Telemetry.Logger.Component("installer").WithRunID(runID)

	handler := opts.Handler
	if handler == nil {
		handler = recovery.NewHandler(recovery.Config{
			HistoryLimit: opts.Settings.Recovery.HistoryLimit,
			Logger:       opts.Telemetry.Logger.Component("recovery").Zerolog(),
			Recorder: newRunRecorder(
				runID,
				opts.Telemetry.Metrics,
				opts.Journal,
				opts.Telemetry.Logger.Component("journal"),
			),
		})
	}

	return &Installer{
		settings: opts.Settings,
		tel:      opts.Telemetry,
		handler:  handler,
		journal:  opts.Journal,
		runID:    runID,
		version:  opts.Version,
		log:      log,
	}
}

// RunID returns the id of this install run.
func (i *Installer) RunID() string { return i.runID }

// Handler returns the recovery handler driving this run.
func (i *Installer) Handler() *recovery.Handler { return i.handler }

// AddTeardown registers an undo action for work the run has applied.
// Teardowns run in reverse registration order during Teardown.
func (i *Installer) AddTeardown(fn func(ctx context.Context) error) {
	i.mu.Lock()
	i.teardowns = append(i.teardowns, fn)
	i.mu.Unlock()
}

// Teardown undoes applied work, newest first, collecting failures
// instead of stopping. It runs at most once; later calls are no-ops.
func (i *Installer) Teardown(ctx context.Context) error {
	i.mu.Lock()
	if i.tornDown {
		i.mu.Unlock()
		return nil
	}
	i.tornDown = true
	teardowns := make([]func(ctx context.Context) error, len(i.teardowns))
	copy(teardowns, i.teardowns)
	i.mu.Unlock()

	var errs []error
	for idx := len(teardowns) - 1; idx >= 0; idx-- {
		if err := teardowns[idx](ctx); err != nil {
			i.log.WithError(err).Warn("teardown action failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run executes the phases in order. Every step failure goes through
// the recovery handler; the first suggested action the driver can
// perform decides what happens next. Cancellation of ctx stops the run
// cooperatively after cleanup.
func (i *Installer) Run(ctx context.Context, phases []Phase) (*Report, error) {
	report := &Report{RunID: i.runID, Status: StatusCompleted}

	i.tel.Metrics.InstallStarted()
	i.publish(telemetry.Event{
		Type: telemetry.EventTypeRunStarted, RunID: i.runID,
		Message: "install run started",
	})
	i.journalStart(ctx)

	ctx, span := i.tel.Tracer.StartRunSpan(ctx, i.runID)
	defer span.End()

	var runErr error

phaseLoop:
	for _, phase := range phases {
		phaseStart := time.Now()

		snapID := i.handler.CreateSnapshot(phase.Name, "", phase.Description, nil)
		i.tel.Metrics.SnapshotCreated(len(i.handler.ActiveSnapshots()))
		i.publish(telemetry.Event{
			Type: telemetry.EventTypeSnapshotCreated, RunID: i.runID, Phase: phase.Name,
			Message: "snapshot created at phase boundary",
			Data:    map[string]interface{}{"snapshot_id": snapID},
		})

		phaseCtx, phaseSpan := i.tel.Tracer.StartPhaseSpan(ctx, phase.Name)
		i.publish(telemetry.Event{
			Type: telemetry.EventTypePhaseStarted, RunID: i.runID, Phase: phase.Name,
			Message: fmt.Sprintf("phase %s started", phase.Name),
		})

		for _, step := range phase.Steps {
			if err := ctx.Err(); err != nil {
				phaseSpan.End()
				return i.cancelled(ctx, report)
			}

			status, err := i.runStep(phaseCtx, phase, step, snapID, report)
			switch status {
			case stepOK, stepSkipped:
				continue
			case stepRolledBack:
				report.Status = StatusRolledBack
				runErr = err
				phaseSpan.End()
				break phaseLoop
			case stepAborted:
				report.Status = StatusFailed
				runErr = err
				phaseSpan.End()
				break phaseLoop
			case stepCancelled:
				phaseSpan.End()
				return i.cancelled(ctx, report)
			}
		}

		telemetry.RecordSuccess(phaseSpan)
		phaseSpan.End()
		i.tel.Metrics.PhaseCompleted(phase.Name, time.Since(phaseStart))
		i.publish(telemetry.Event{
			Type: telemetry.EventTypePhaseCompleted, RunID: i.runID, Phase: phase.Name,
			Message: fmt.Sprintf("phase %s completed", phase.Name),
		})
	}

	if report.Status == StatusCompleted && len(report.SkippedSteps) > 0 {
		report.Status = StatusSkipped
	}
	report.HandledErrors = len(i.handler.History(0))

	switch report.Status {
	case StatusCompleted, StatusSkipped:
		telemetry.RecordSuccess(span)
		i.tel.Metrics.InstallFinished("completed")
		i.publish(telemetry.Event{
			Type: telemetry.EventTypeRunCompleted, RunID: i.runID,
			Message: "install run completed",
		})
		i.journalFinish(ctx, stores.RunStatusCompleted, nil)
	case StatusRolledBack:
		telemetry.RecordError(span, runErr)
		i.tel.Metrics.InstallFinished("rolled_back")
		i.publish(telemetry.Event{
			Type: telemetry.EventTypeRunFailed, RunID: i.runID, Level: telemetry.EventLevelError,
			Message: "install run rolled back",
		})
		i.journalFinish(ctx, stores.RunStatusRolledBack, runErr)
	default:
		telemetry.RecordError(span, runErr)
		i.tel.Metrics.InstallFinished("failed")
		i.publish(telemetry.Event{
			Type: telemetry.EventTypeRunFailed, RunID: i.runID, Level: telemetry.EventLevelError,
			Message: "install run failed",
		})
		i.journalFinish(ctx, stores.RunStatusFailed, runErr)
	}

	return report, runErr
}

type stepStatus int

const (
	stepOK stepStatus = iota
	stepSkipped
	stepRolledBack
	stepAborted
	stepCancelled
)

// runStep executes one step, consulting the recovery handler on every
// failure until the step succeeds or the advice tells the driver to
// stop trying.
func (i *Installer) runStep(ctx context.Context, phase Phase, step Step, snapID string, report *Report) (stepStatus, error) {
	log := i.log.WithPhase(phase.Name).WithStep(step.Name)

	stepCtx, stepSpan := i.tel.Tracer.StartStepSpan(ctx, phase.Name, step.Name)
	defer stepSpan.End()

	i.publish(telemetry.Event{
		Type: telemetry.EventTypeStepStarted, RunID: i.runID,
		Phase: phase.Name, Step: step.Name,
		Message: fmt.Sprintf("step %s started", step.Name),
	})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = i.settings.Install.RetryInitialWait
	bo.MaxInterval = i.settings.Install.RetryMaxWait
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempts := 0
	fallbackTried := false

	for {
		err := step.Run(stepCtx)
		if err == nil {
			telemetry.RecordSuccess(stepSpan)
			i.tel.Metrics.StepExecuted(phase.Name, "success")
			return stepOK, nil
		}
		if ctx.Err() != nil {
			return stepCancelled, ctx.Err()
		}

		// Report prior attempts only once the retry budget is spent, so
		// the advisor keeps suggesting retries while the driver still
		// has budget and stops suggesting them after.
		prior := 0
		if attempts >= i.settings.Install.MaxRetries {
			prior = attempts
		}
		ec := i.handler.Handle(err, recovery.Context{
			Phase:     phase.Name,
			Step:      step.Name,
			Component: "installer",
			Operation: "run_step",
			Attempts:  prior,
		})
		telemetry.AddHandledErrorEvent(stepSpan, ec.ID, string(ec.Category), ec.Severity.String())
		i.publish(telemetry.Event{
			Type: telemetry.EventTypeErrorHandled, RunID: i.runID,
			Phase: phase.Name, Step: step.Name, Level: telemetry.EventLevelWarning,
			Message: ec.UserMessage,
			Data: map[string]interface{}{
				"error_id": ec.ID,
				"category": string(ec.Category),
				"severity": ec.Severity.String(),
			},
		})

		switch i.decide(ec, attempts, step, fallbackTried) {
		case moveRetry:
			attempts++
			i.tel.Metrics.StepRetried(phase.Name)
			i.publish(telemetry.Event{
				Type: telemetry.EventTypeStepRetried, RunID: i.runID,
				Phase: phase.Name, Step: step.Name,
				Message: fmt.Sprintf("retrying step %s (attempt %d)", step.Name, attempts),
			})
			if !i.wait(ctx, bo.NextBackOff()) {
				return stepCancelled, ctx.Err()
			}

		case moveFallback:
			fallbackTried = true
			log.Info("running fallback for step")
			fbErr := step.Fallback(stepCtx)
			if fbErr == nil {
				telemetry.RecordSuccess(stepSpan)
				i.tel.Metrics.StepExecuted(phase.Name, "fallback")
				return stepOK, nil
			}
			i.handler.Handle(fbErr, recovery.Context{
				Phase:     phase.Name,
				Step:      step.Name,
				Component: "installer",
				Operation: "run_fallback",
				Attempts:  1,
			})

		case moveSkip:
			log.Warn("skipping step after failure")
			i.tel.Metrics.StepExecuted(phase.Name, "skipped")
			report.SkippedSteps = append(report.SkippedSteps, step.Name)
			i.publish(telemetry.Event{
				Type: telemetry.EventTypeStepSkipped, RunID: i.runID,
				Phase: phase.Name, Step: step.Name, Level: telemetry.EventLevelWarning,
				Message: fmt.Sprintf("step %s skipped: %s", step.Name, ec.UserMessage),
			})
			return stepSkipped, nil

		case moveRollback:
			telemetry.RecordError(stepSpan, err)
			i.tel.Metrics.StepExecuted(phase.Name, "failed")
			ok, _ := i.handler.RollbackTo(snapID, true)
			i.tel.Metrics.RollbackPerformed(ok, len(i.handler.ActiveSnapshots()))
			i.publish(telemetry.Event{
				Type: telemetry.EventTypeRollbackPerformed, RunID: i.runID,
				Phase: phase.Name, Step: step.Name, Level: telemetry.EventLevelWarning,
				Message: "rolled back to phase boundary",
				Data:    map[string]interface{}{"snapshot_id": snapID, "ok": ok},
			})
			if tdErr := i.Teardown(ctx); tdErr != nil {
				log.WithError(tdErr).Warn("teardown during rollback failed")
			}
			return stepRolledBack, fmt.Errorf("step %s failed, rolled back: %w", step.Name, err)

		default: // moveAbort
			telemetry.RecordError(stepSpan, err)
			i.tel.Metrics.StepExecuted(phase.Name, "failed")
			i.publish(telemetry.Event{
				Type: telemetry.EventTypeStepFailed, RunID: i.runID,
				Phase: phase.Name, Step: step.Name, Level: telemetry.EventLevelError,
				Message: ec.UserMessage,
			})
			if cpErr := i.handler.CleanupPartial(ctx, i); cpErr != nil {
				log.WithError(cpErr).Warn("partial cleanup failed")
			}
			return stepAborted, fmt.Errorf("step %s failed: %w", step.Name, err)
		}
	}
}

// decide picks the first suggested action the driver can perform.
func (i *Installer) decide(ec recovery.ErrorContext, attempts int, step Step, fallbackTried bool) move {
	for _, action := range ec.SuggestedActions {
		switch action {
		case recovery.ActionRetry:
			if attempts < i.settings.Install.MaxRetries {
				return moveRetry
			}
		case recovery.ActionUseFallback:
			if step.Fallback != nil && !fallbackTried {
				return moveFallback
			}
		case recovery.ActionSkipStep:
			return moveSkip
		case recovery.ActionRollback:
			return moveRollback
		case recovery.ActionRequestPermissions:
			// The driver cannot elevate privileges; fall through to
			// the next suggestion.
		case recovery.ActionAbort, recovery.ActionManualIntervention:
			return moveAbort
		}
	}
	return moveAbort
}

// cancelled finishes the run after a cooperative cancellation: cleanup
// hooks run once on a context detached from the cancelled one.
func (i *Installer) cancelled(ctx context.Context, report *Report) (*Report, error) {
	report.Status = StatusCancelled
	report.HandledErrors = len(i.handler.History(0))

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	results := i.handler.HandleCancellation(cleanupCtx, "context cancelled", i)
	for _, res := range results {
		if res.Err != nil {
			i.tel.Metrics.CleanupFailed()
		}
	}

	i.tel.Metrics.InstallFinished("cancelled")
	i.publish(telemetry.Event{
		Type: telemetry.EventTypeRunCancelled, RunID: i.runID, Level: telemetry.EventLevelWarning,
		Message: "install run cancelled",
	})
	i.journalFinish(cleanupCtx, stores.RunStatusCancelled, ctx.Err())

	return report, context.Canceled
}

// wait sleeps for the backoff interval unless the context is
// cancelled first.
func (i *Installer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (i *Installer) publish(evt telemetry.Event) {
	i.tel.Events.Publish(evt)
}

func (i *Installer) journalStart(ctx context.Context) {
	if i.journal == nil {
		return
	}
	run := &stores.Run{
		ID:        i.runID,
		Version:   i.version,
		Status:    stores.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := i.journal.CreateRun(ctx, run); err != nil {
		i.log.WithError(err).Warn("failed to journal run start")
	}
}

func (i *Installer) journalFinish(ctx context.Context, status stores.RunStatus, runErr error) {
	if i.journal == nil {
		return
	}
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := i.journal.FinishRun(ctx, i.runID, status, errMsg); err != nil {
		i.log.WithError(err).Warn("failed to journal run finish")
	}
}
