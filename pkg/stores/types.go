package stores

import (
	"context"
	"time"
)

// RunStatus is the terminal or in-flight state of an install run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusRolledBack RunStatus = "rolled_back"
)

// Run is one install attempt recorded in the journal.
type Run struct {
	ID          string     `json:"id"`
	Version     string     `json:"version"` // installer version that ran
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// Fault is a handled error persisted for post-run reporting. It
// mirrors the recovery.ErrorContext record; SuggestedActions is stored
// as a JSON array.
type Fault struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	Category         string    `json:"category"`
	Severity         string    `json:"severity"`
	ErrorMessage     string    `json:"error_message"`
	UserMessage      string    `json:"user_message"`
	Phase            string    `json:"phase"`
	Step             string    `json:"step"`
	Component        string    `json:"component"`
	Operation        string    `json:"operation"`
	SuggestedActions string    `json:"suggested_actions"`
	Timestamp        time.Time `json:"timestamp"`
}

// Store is the persistence interface for the fault journal.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, errMsg *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Fault operations
	AppendFault(ctx context.Context, fault *Fault) error
	ListFaults(ctx context.Context, runID *string, limit, offset int) ([]*Fault, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
