package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// unknownField is the default for context fields the caller left empty.
const unknownField = "unknown"

// DefaultHistoryLimit bounds the error history when the caller does
// not configure a limit.
const DefaultHistoryLimit = 100

// ErrorContext is the immutable record produced for every handled
// fault. It is created exactly once inside Handle and never mutated
// afterwards; callers and history readers receive copies.
type ErrorContext struct {
	// ID uniquely identifies this handled error.
	ID string `json:"id"`

	// Category is the classification assigned to the fault.
	Category ErrorCategory `json:"category"`

	// Severity is the baseline severity for the category.
	Severity ErrorSeverity `json:"severity"`

	// ErrorMessage is the raw fault text.
	ErrorMessage string `json:"error_message"`

	// UserMessage is the rendered, category-specific message. It never
	// contains internal type names or stack traces.
	UserMessage string `json:"user_message"`

	// Phase, Step, Component and Operation are the caller-supplied
	// progress markers, defaulting to "unknown".
	Phase     string `json:"phase"`
	Step      string `json:"step"`
	Component string `json:"component"`
	Operation string `json:"operation"`

	// SuggestedActions is the ordered recovery advice, least
	// destructive first. Never empty.
	SuggestedActions []RecoveryAction `json:"suggested_actions"`

	// Timestamp is when the fault was handled.
	Timestamp time.Time `json:"timestamp"`
}

// Context carries the caller's progress markers for a handled fault.
// All fields are optional; empty strings default to "unknown".
type Context struct {
	Phase     string
	Step      string
	Component string
	Operation string

	// Attempts is how many times the failing operation was already
	// retried. It feeds the advisor's retry trimming.
	Attempts int
}

// ProgressFunc observes every handled error. It runs outside the
// handler's locks; panics are swallowed and logged.
type ProgressFunc func(ErrorContext)

// CleanupFunc is a cancellation cleanup hook. Hooks must be
// individually idempotent.
type CleanupFunc func(ctx context.Context) error

// CleanupResult reports the outcome of one cleanup hook.
type CleanupResult struct {
	Name string
	Err  error
}

// Teardowner is the narrow capability the handler needs from the
// installer: a best-effort teardown of partially applied work.
type Teardowner interface {
	Teardown(ctx context.Context) error
}

// Recorder observes handled errors for metrics or persistence. It
// runs outside the handler's locks; panics are swallowed and logged.
type Recorder interface {
	ErrorHandled(ec ErrorContext)
}

// Config configures a Handler.
type Config struct {
	// HistoryLimit bounds the error history; oldest entries are
	// evicted first. Zero means DefaultHistoryLimit, negative means
	// unbounded.
	HistoryLimit int

	// Logger receives callback failures and per-error debug logs.
	Logger zerolog.Logger

	// Recorder, if set, observes every handled error.
	Recorder Recorder
}

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// Handler is the error handling and recovery façade. It composes the
// classifier, the advisor and the snapshot store, keeps the bounded
// error history and owns the callback registry.
//
// Handle and HandleCancellation are safe to call concurrently with
// each other and with the read operations.
type Handler struct {
	classifier *Classifier
	advisor    *Advisor
	snapshots  *SnapshotStore
	recorder   Recorder
	log        zerolog.Logger

	mu           sync.Mutex
	history      []ErrorContext
	historyLimit int
	cleanups     []namedCleanup
	progress     ProgressFunc
	cancelled    bool
}

// NewHandler creates a handler with freshly built classification and
// advice tables and an empty snapshot store.
func NewHandler(cfg Config) *Handler {
	limit := cfg.HistoryLimit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	return &Handler{
		classifier:   NewClassifier(),
		advisor:      NewAdvisor(),
		snapshots:    NewSnapshotStore(),
		recorder:     cfg.Recorder,
		log:          cfg.Logger,
		historyLimit: limit,
	}
}

// Handle classifies a fault, derives recovery advice, records the
// result in the history and notifies the progress callback. It is
// total: any fault and context, including nil, yields a well-formed
// ErrorContext and Handle never returns an error itself.
func (h *Handler) Handle(fault error, hctx Context) ErrorContext {
	category, severity := h.classify(fault)

	actions := h.advisor.Suggest(category, severity, ActionContext{
		PriorAttempts: hctx.Attempts,
	})

	raw := "unknown error"
	if fault != nil {
		raw = fault.Error()
	}

	ec := ErrorContext{
		ID:               uuid.New().String(),
		Category:         category,
		Severity:         severity,
		ErrorMessage:     raw,
		UserMessage:      h.advisor.UserMessage(category, raw, actions),
		Phase:            orUnknown(hctx.Phase),
		Step:             orUnknown(hctx.Step),
		Component:        orUnknown(hctx.Component),
		Operation:        orUnknown(hctx.Operation),
		SuggestedActions: actions,
		Timestamp:        time.Now().UTC(),
	}

	h.mu.Lock()
	h.history = append(h.history, ec)
	if h.historyLimit > 0 && len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	progress := h.progress
	h.mu.Unlock()

	h.log.Debug().
		Str("error_id", ec.ID).
		Str("category", string(ec.Category)).
		Str("severity", ec.Severity.String()).
		Str("phase", ec.Phase).
		Str("step", ec.Step).
		Msg("fault handled")

	// Callbacks run outside the lock so a slow or panicking observer
	// cannot corrupt or hold up handler state.
	if progress != nil {
		h.safeNotify("progress", func() { progress(ec) })
	}
	if h.recorder != nil {
		h.safeNotify("recorder", func() { h.recorder.ErrorHandled(ec) })
	}

	return ec
}

// classify runs the classifier under a recover guard. A classifier
// failure degrades to unknown/medium instead of propagating, keeping
// Handle total.
func (h *Handler) classify(fault error) (category ErrorCategory, severity ErrorSeverity) {
	category, severity = CategoryUnknown, SeverityMedium
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Interface("panic", r).Msg("classifier failed, degrading to unknown")
			category, severity = CategoryUnknown, SeverityMedium
		}
	}()
	category = h.classifier.Categorize(fault)
	severity = h.classifier.SeverityFor(category)
	return category, severity
}

func (h *Handler) safeNotify(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Str("callback", name).Interface("panic", r).Msg("callback failed")
		}
	}()
	fn()
}

// HandleCancellation runs every registered cleanup hook in
// registration order, collecting failures instead of stopping, then
// invokes the installer's teardown if one was supplied. It is
// idempotent: only the first call runs the hooks, later calls return
// nil immediately.
func (h *Handler) HandleCancellation(ctx context.Context, reason string, installer Teardowner) []CleanupResult {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return nil
	}
	h.cancelled = true
	cleanups := make([]namedCleanup, len(h.cleanups))
	copy(cleanups, h.cleanups)
	h.mu.Unlock()

	h.log.Info().Str("reason", reason).Int("cleanups", len(cleanups)).Msg("handling cancellation")

	results := make([]CleanupResult, 0, len(cleanups)+1)
	for _, c := range cleanups {
		results = append(results, CleanupResult{Name: c.name, Err: h.runCleanup(ctx, c)})
	}

	if installer != nil {
		err := installer.Teardown(ctx)
		if err != nil {
			h.log.Warn().Err(err).Msg("installer teardown failed")
		}
		results = append(results, CleanupResult{Name: "installer.teardown", Err: err})
	}

	return results
}

func (h *Handler) runCleanup(ctx context.Context, c namedCleanup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup %s panicked: %v", c.name, r)
			h.log.Warn().Str("cleanup", c.name).Interface("panic", r).Msg("cleanup hook panicked")
		}
	}()
	if err = c.fn(ctx); err != nil {
		h.log.Warn().Str("cleanup", c.name).Err(err).Msg("cleanup hook failed")
	}
	return err
}

// CleanupPartial rolls back to the oldest active snapshot (tolerating
// an already-missing target), invokes the installer teardown if one
// was supplied, and clears the snapshot stack regardless of the
// rollback outcome.
func (h *Handler) CleanupPartial(ctx context.Context, installer Teardowner) error {
	if oldest, ok := h.snapshots.Oldest(); ok {
		if _, err := h.snapshots.RollbackTo(oldest.ID, true); err != nil {
			h.log.Warn().Err(err).Msg("rollback to oldest snapshot failed")
		}
	}

	var err error
	if installer != nil {
		if err = installer.Teardown(ctx); err != nil {
			h.log.Warn().Err(err).Msg("installer teardown failed")
		}
	}

	h.snapshots.Clear()
	return err
}

// History returns handled errors oldest first. With limit <= 0 the
// full history is returned; otherwise the most recent limit entries,
// still oldest first within the slice.
func (h *Handler) History(limit int) []ErrorContext {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := 0
	if limit > 0 && len(h.history) > limit {
		start = len(h.history) - limit
	}
	out := make([]ErrorContext, len(h.history)-start)
	copy(out, h.history[start:])
	return out
}

// AddCleanup registers a named cancellation cleanup hook. Hooks run in
// registration order.
func (h *Handler) AddCleanup(name string, fn CleanupFunc) {
	h.mu.Lock()
	h.cleanups = append(h.cleanups, namedCleanup{name: name, fn: fn})
	h.mu.Unlock()
}

// SetProgress registers the progress callback. The last registration
// wins.
func (h *Handler) SetProgress(fn ProgressFunc) {
	h.mu.Lock()
	h.progress = fn
	h.mu.Unlock()
}

// CreateSnapshot pushes a named checkpoint and returns its id.
func (h *Handler) CreateSnapshot(phase, step, description string, state map[string]interface{}) string {
	return h.snapshots.Create(phase, step, description, state)
}

// ActiveSnapshots returns the active snapshot ids, oldest first.
func (h *Handler) ActiveSnapshots() []string {
	return h.snapshots.Active()
}

// RollbackTo delegates to the snapshot store. See
// SnapshotStore.RollbackTo for the partialOK contract.
func (h *Handler) RollbackTo(id string, partialOK bool) (bool, error) {
	ok, err := h.snapshots.RollbackTo(id, partialOK)
	if ok {
		h.log.Info().Str("snapshot_id", id).Msg("rolled back to snapshot")
	}
	return ok, err
}

// Snapshots exposes the underlying snapshot store.
func (h *Handler) Snapshots() *SnapshotStore {
	return h.snapshots
}

func orUnknown(v string) string {
	if v == "" {
		return unknownField
	}
	return v
}
