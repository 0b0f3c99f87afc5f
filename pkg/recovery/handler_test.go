package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestHandler(cfg Config) *Handler {
	cfg.Logger = zerolog.Nop()
	return NewHandler(cfg)
}

func TestHandleTotality(t *testing.T) {
	h := newTestHandler(Config{})

	faults := []error{
		nil,
		errors.New("request timed out"),
		NewRequirementsError("disk_space", "need 10 GiB free", nil),
		fmt.Errorf("wrapped: %w", errors.New("permission denied")),
		errors.New(""),
	}

	for i, fault := range faults {
		ec := h.Handle(fault, Context{})
		if ec.ID == "" {
			t.Errorf("fault %d: empty error id", i)
		}
		if ec.Category == "" {
			t.Errorf("fault %d: empty category", i)
		}
		if len(ec.SuggestedActions) == 0 {
			t.Errorf("fault %d: no suggested actions", i)
		}
		if ec.UserMessage == "" {
			t.Errorf("fault %d: empty user message", i)
		}
		if ec.Timestamp.IsZero() {
			t.Errorf("fault %d: zero timestamp", i)
		}
	}
}

func TestHandleContextDefaults(t *testing.T) {
	h := newTestHandler(Config{})

	ec := h.Handle(errors.New("boom"), Context{})
	if ec.Phase != "unknown" || ec.Step != "unknown" || ec.Component != "unknown" || ec.Operation != "unknown" {
		t.Errorf("empty context fields not defaulted: %+v", ec)
	}

	ec = h.Handle(errors.New("boom"), Context{Phase: "services", Step: "start-qdrant"})
	if ec.Phase != "services" || ec.Step != "start-qdrant" {
		t.Errorf("supplied context fields lost: %+v", ec)
	}
}

func TestHandleScenarios(t *testing.T) {
	h := newTestHandler(Config{})

	timeout := h.Handle(errors.New("request timed out"), Context{})
	if timeout.Category != CategoryNetwork || timeout.Severity != SeverityMedium {
		t.Errorf("timeout classified as %s/%s", timeout.Category, timeout.Severity)
	}
	retryIdx, abortIdx := -1, -1
	for i, a := range timeout.SuggestedActions {
		switch a {
		case ActionRetry:
			retryIdx = i
		case ActionAbort:
			abortIdx = i
		}
	}
	if retryIdx == -1 || abortIdx == -1 || retryIdx > abortIdx {
		t.Errorf("timeout advice = %v, want retry before abort", timeout.SuggestedActions)
	}

	perm := h.Handle(NewPermissionError("/opt/setforge", "mkdir failed", nil), Context{})
	if perm.Category != CategoryPermission || perm.Severity != SeverityHigh {
		t.Errorf("permission fault classified as %s/%s", perm.Category, perm.Severity)
	}
	if perm.SuggestedActions[0] != ActionRequestPermissions {
		t.Errorf("permission advice = %v, want request_permissions first", perm.SuggestedActions)
	}

	reqs := h.Handle(NewRequirementsError("docker", "docker not installed", nil), Context{})
	if reqs.Category != CategorySystemRequirements || reqs.Severity != SeverityCritical {
		t.Errorf("requirements fault classified as %s/%s", reqs.Category, reqs.Severity)
	}
	if len(reqs.SuggestedActions) != 1 || reqs.SuggestedActions[0] != ActionAbort {
		t.Errorf("requirements advice = %v, want [abort]", reqs.SuggestedActions)
	}
}

func TestHistoryOrderingAndLimit(t *testing.T) {
	h := newTestHandler(Config{})

	var ids []string
	for i := 0; i < 5; i++ {
		ec := h.Handle(fmt.Errorf("fault %d", i), Context{})
		ids = append(ids, ec.ID)
	}

	full := h.History(0)
	if len(full) != 5 {
		t.Fatalf("History(0) returned %d entries, want 5", len(full))
	}
	for i, ec := range full {
		if ec.ID != ids[i] {
			t.Errorf("History(0)[%d] = %s, want %s", i, ec.ID, ids[i])
		}
	}

	last2 := h.History(2)
	if len(last2) != 2 || last2[0].ID != ids[3] || last2[1].ID != ids[4] {
		t.Errorf("History(2) = %v, want the last two in order", last2)
	}
}

func TestHistoryEviction(t *testing.T) {
	h := newTestHandler(Config{HistoryLimit: 3})

	for i := 0; i < 10; i++ {
		h.Handle(fmt.Errorf("fault %d", i), Context{})
	}

	hist := h.History(0)
	if len(hist) != 3 {
		t.Fatalf("history holds %d entries, want 3", len(hist))
	}
	if hist[0].ErrorMessage != "fault 7" || hist[2].ErrorMessage != "fault 9" {
		t.Errorf("eviction kept wrong entries: %v", hist)
	}
}

func TestProgressCallback(t *testing.T) {
	h := newTestHandler(Config{})

	var got []ErrorContext
	h.SetProgress(func(ec ErrorContext) { got = append(got, ec) })

	ec := h.Handle(errors.New("boom"), Context{})
	if len(got) != 1 || got[0].ID != ec.ID {
		t.Fatalf("progress callback saw %v, want the handled context", got)
	}

	// Last registration wins.
	var second int
	h.SetProgress(func(ErrorContext) { second++ })
	h.Handle(errors.New("boom again"), Context{})
	if len(got) != 1 || second != 1 {
		t.Errorf("old callback still registered: first=%d second=%d", len(got), second)
	}
}

func TestProgressCallbackPanicSwallowed(t *testing.T) {
	h := newTestHandler(Config{})
	h.SetProgress(func(ErrorContext) { panic("observer broke") })

	ec := h.Handle(errors.New("boom"), Context{})
	if ec.ID == "" {
		t.Fatal("panicking progress callback corrupted the result")
	}
	if len(h.History(0)) != 1 {
		t.Error("history lost the entry after a callback panic")
	}
}

type recordingRecorder struct {
	mu  sync.Mutex
	ecs []ErrorContext
}

func (r *recordingRecorder) ErrorHandled(ec ErrorContext) {
	r.mu.Lock()
	r.ecs = append(r.ecs, ec)
	r.mu.Unlock()
}

func TestRecorderObservesHandledErrors(t *testing.T) {
	rec := &recordingRecorder{}
	h := newTestHandler(Config{Recorder: rec})

	h.Handle(errors.New("boom"), Context{Phase: "services"})
	if len(rec.ecs) != 1 || rec.ecs[0].Phase != "services" {
		t.Errorf("recorder saw %v", rec.ecs)
	}
}

type fakeInstaller struct {
	calls int
	err   error
}

func (f *fakeInstaller) Teardown(context.Context) error {
	f.calls++
	return f.err
}

func TestHandleCancellationIdempotent(t *testing.T) {
	h := newTestHandler(Config{})

	counts := make([]int, 3)
	for i := range counts {
		i := i
		h.AddCleanup(fmt.Sprintf("cleanup-%d", i), func(context.Context) error {
			counts[i]++
			return nil
		})
	}

	inst := &fakeInstaller{}
	first := h.HandleCancellation(context.Background(), "user interrupt", inst)
	second := h.HandleCancellation(context.Background(), "user interrupt", inst)

	if len(first) != 4 {
		t.Fatalf("first cancellation reported %d results, want 4", len(first))
	}
	if second != nil {
		t.Errorf("second cancellation ran again: %v", second)
	}
	for i, c := range counts {
		if c != 1 {
			t.Errorf("cleanup %d ran %d times, want 1", i, c)
		}
	}
	if inst.calls != 1 {
		t.Errorf("teardown ran %d times, want 1", inst.calls)
	}
}

func TestHandleCancellationCollectsFailures(t *testing.T) {
	h := newTestHandler(Config{})

	var ran []string
	h.AddCleanup("first", func(context.Context) error {
		ran = append(ran, "first")
		return errors.New("first failed")
	})
	h.AddCleanup("second", func(context.Context) error {
		ran = append(ran, "second")
		panic("second exploded")
	})
	h.AddCleanup("third", func(context.Context) error {
		ran = append(ran, "third")
		return nil
	})

	results := h.HandleCancellation(context.Background(), "test", nil)

	if len(ran) != 3 {
		t.Fatalf("cleanups run = %v, want all three", ran)
	}
	if len(results) != 3 {
		t.Fatalf("results = %v, want three entries", results)
	}
	if results[0].Err == nil || results[1].Err == nil {
		t.Error("failures were not reported")
	}
	if results[2].Err != nil {
		t.Errorf("successful cleanup reported error: %v", results[2].Err)
	}
}

func TestCleanupPartial(t *testing.T) {
	h := newTestHandler(Config{})

	h.CreateSnapshot("preflight", "checks", "first", nil)
	h.CreateSnapshot("services", "qdrant", "second", nil)

	inst := &fakeInstaller{}
	if err := h.CleanupPartial(context.Background(), inst); err != nil {
		t.Errorf("CleanupPartial() = %v", err)
	}
	if inst.calls != 1 {
		t.Errorf("teardown ran %d times, want 1", inst.calls)
	}
	if len(h.ActiveSnapshots()) != 0 {
		t.Error("snapshot stack not cleared")
	}

	// No snapshots at all is fine too.
	if err := h.CleanupPartial(context.Background(), nil); err != nil {
		t.Errorf("CleanupPartial() with empty stack = %v", err)
	}
}

func TestCleanupPartialTeardownFailure(t *testing.T) {
	h := newTestHandler(Config{})
	h.CreateSnapshot("preflight", "checks", "first", nil)

	inst := &fakeInstaller{err: errors.New("containers still running")}
	if err := h.CleanupPartial(context.Background(), inst); err == nil {
		t.Error("teardown failure not surfaced")
	}
	if len(h.ActiveSnapshots()) != 0 {
		t.Error("snapshot stack not cleared after teardown failure")
	}
}

func TestHandlerConcurrentUse(t *testing.T) {
	h := newTestHandler(Config{HistoryLimit: -1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				h.Handle(fmt.Errorf("worker %d fault %d", n, j), Context{Phase: "services"})
				h.CreateSnapshot("services", "step", "churn", nil)
				h.History(10)
				h.ActiveSnapshots()
			}
		}(i)
	}
	wg.Wait()

	if got := len(h.History(0)); got != 200 {
		t.Errorf("history holds %d entries, want 200", got)
	}
	if got := len(h.ActiveSnapshots()); got != 200 {
		t.Errorf("snapshot stack holds %d entries, want 200", got)
	}
}
