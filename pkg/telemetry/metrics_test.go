package telemetry

import (
	"testing"

	"github.com/setforge/setforge/pkg/recovery"
)

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() = %v", err)
	}

	// None of these may panic on a disabled collector.
	m.ErrorHandled(recovery.ErrorContext{Category: recovery.CategoryNetwork})
	m.SnapshotCreated(1)
	m.RollbackPerformed(true, 0)
	m.CleanupFailed()
	m.StepExecuted("services", "failed")
	m.StepRetried("services")
	m.InstallStarted()
	m.InstallFinished("completed")
}

func TestMetricsErrorHandled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewMetrics() = %v", err)
	}

	m.ErrorHandled(recovery.ErrorContext{
		Category: recovery.CategoryNetwork,
		Severity: recovery.SeverityMedium,
		SuggestedActions: []recovery.RecoveryAction{
			recovery.ActionRetry, recovery.ActionAbort,
		},
	})

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() = %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	if !found["test_errors_handled_total"] {
		t.Error("errors_handled_total not collected")
	}
	if !found["test_recovery_actions_suggested_total"] {
		t.Error("recovery_actions_suggested_total not collected")
	}
}
