package installer

import (
	"context"
)

// StepFunc performs one unit of install work.
type StepFunc func(ctx context.Context) error

// Step is a named unit of work inside a phase. Fallback, when set, is
// the alternative path tried if the advisor suggests use_fallback for
// a failure of Run.
type Step struct {
	Name     string
	Run      StepFunc
	Fallback StepFunc
}

// Phase is an ordered group of steps. A snapshot is taken at every
// phase boundary so a mid-phase failure can roll the run back to the
// last boundary.
type Phase struct {
	Name        string
	Description string
	Steps       []Step
}

// RunStatus is the terminal state of an install run.
type RunStatus string

const (
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusCancelled  RunStatus = "cancelled"
	StatusRolledBack RunStatus = "rolled_back"
	StatusSkipped    RunStatus = "completed_with_skips"
)

// Report summarizes a finished install run.
type Report struct {
	RunID         string
	Status        RunStatus
	HandledErrors int
	SkippedSteps  []string
}

// move is the driver's interpretation of the advisor's suggestions:
// the first suggested action it can actually perform.
type move int

const (
	moveRetry move = iota
	moveFallback
	moveSkip
	moveRollback
	moveAbort
)
