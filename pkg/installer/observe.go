package installer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/setforge/setforge/pkg/recovery"
	"github.com/setforge/setforge/pkg/stores"
	"github.com/setforge/setforge/pkg/telemetry"
)

// runRecorder fans a handled error out to the metrics registry and the
// fault journal. Journal writes are best-effort: a broken journal must
// never interfere with error handling itself.
type runRecorder struct {
	runID   string
	metrics *telemetry.Metrics
	journal stores.Store
	log     *telemetry.Logger
}

func newRunRecorder(runID string, metrics *telemetry.Metrics, journal stores.Store, log *telemetry.Logger) recovery.Recorder {
	return &runRecorder{
		runID:   runID,
		metrics: metrics,
		journal: journal,
		log:     log,
	}
}

// ErrorHandled implements recovery.Recorder.
func (r *runRecorder) ErrorHandled(ec recovery.ErrorContext) {
	if r.metrics != nil {
		r.metrics.ErrorHandled(ec)
	}
	if r.journal == nil {
		return
	}

	actions, err := json.Marshal(ec.SuggestedActions)
	if err != nil {
		actions = []byte("[]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fault := &stores.Fault{
		ID:               ec.ID,
		RunID:            r.runID,
		Category:         string(ec.Category),
		Severity:         ec.Severity.String(),
		ErrorMessage:     ec.ErrorMessage,
		UserMessage:      ec.UserMessage,
		Phase:            ec.Phase,
		Step:             ec.Step,
		Component:        ec.Component,
		Operation:        ec.Operation,
		SuggestedActions: string(actions),
		Timestamp:        ec.Timestamp,
	}
	if err := r.journal.AppendFault(ctx, fault); err != nil {
		r.log.WithErrorID(ec.ID).WithError(err).Warn("failed to journal handled error")
	}
}
