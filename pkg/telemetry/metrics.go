package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/setforge/setforge/pkg/recovery"
)

// Metrics collects Prometheus metrics for installer runs and handled
// errors. A disabled Metrics value is a safe no-op. Metrics implements
// recovery.Recorder so it can be plugged straight into the error
// handler.
type Metrics struct {
	config MetricsConfig

	errorsHandled    *prometheus.CounterVec
	actionsSuggested *prometheus.CounterVec
	snapshotsCreated prometheus.Counter
	snapshotsActive  prometheus.Gauge
	rollbacks        *prometheus.CounterVec
	cleanupFailures  prometheus.Counter
	stepsExecuted    *prometheus.CounterVec
	stepRetries      *prometheus.CounterVec
	phaseDuration    *prometheus.HistogramVec
	installsStarted  prometheus.Counter
	installsFinished *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	ns := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		errorsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "errors_handled_total",
				Help:      "Handled faults by category and severity",
			},
			[]string{"category", "severity"},
		),
		actionsSuggested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "recovery_actions_suggested_total",
				Help:      "Recovery actions suggested to the installer",
			},
			[]string{"action"},
		),
		snapshotsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "snapshots_created_total",
				Help:      "Snapshots pushed onto the rollback stack",
			},
		),
		snapshotsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "snapshots_active",
				Help:      "Snapshots currently on the rollback stack",
			},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "rollbacks_total",
				Help:      "Rollback attempts by outcome",
			},
			[]string{"outcome"},
		),
		cleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cleanup_failures_total",
				Help:      "Cleanup hooks that failed during cancellation",
			},
		),
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "steps_executed_total",
				Help:      "Install steps executed by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		stepRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "step_retries_total",
				Help:      "Install step retry attempts by phase",
			},
			[]string{"phase"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "phase_duration_seconds",
				Help:      "Install phase wall time",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		installsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "installs_started_total",
				Help:      "Install runs started",
			},
		),
		installsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "installs_finished_total",
				Help:      "Install runs finished by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.errorsHandled,
		m.actionsSuggested,
		m.snapshotsCreated,
		m.snapshotsActive,
		m.rollbacks,
		m.cleanupFailures,
		m.stepsExecuted,
		m.stepRetries,
		m.phaseDuration,
		m.installsStarted,
		m.installsFinished,
	)

	return m, nil
}

// ErrorHandled implements recovery.Recorder.
func (m *Metrics) ErrorHandled(ec recovery.ErrorContext) {
	if m.registry == nil {
		return
	}
	m.errorsHandled.WithLabelValues(string(ec.Category), ec.Severity.String()).Inc()
	for _, action := range ec.SuggestedActions {
		m.actionsSuggested.WithLabelValues(string(action)).Inc()
	}
}

// SnapshotCreated records a snapshot push and the new stack depth.
func (m *Metrics) SnapshotCreated(active int) {
	if m.registry == nil {
		return
	}
	m.snapshotsCreated.Inc()
	m.snapshotsActive.Set(float64(active))
}

// RollbackPerformed records a rollback attempt and the stack depth
// after it.
func (m *Metrics) RollbackPerformed(ok bool, active int) {
	if m.registry == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "missed"
	}
	m.rollbacks.WithLabelValues(outcome).Inc()
	m.snapshotsActive.Set(float64(active))
}

// CleanupFailed records a failed cancellation cleanup hook.
func (m *Metrics) CleanupFailed() {
	if m.registry == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// StepExecuted records one install step outcome (success, failed,
// skipped).
func (m *Metrics) StepExecuted(phase, outcome string) {
	if m.registry == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(phase, outcome).Inc()
}

// StepRetried records a retry attempt for a step in the given phase.
func (m *Metrics) StepRetried(phase string) {
	if m.registry == nil {
		return
	}
	m.stepRetries.WithLabelValues(phase).Inc()
}

// PhaseCompleted records the wall time of a finished phase.
func (m *Metrics) PhaseCompleted(phase string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// InstallStarted records the start of an install run.
func (m *Metrics) InstallStarted() {
	if m.registry == nil {
		return
	}
	m.installsStarted.Inc()
}

// InstallFinished records the end of an install run with its outcome
// (completed, failed, cancelled, rolled_back).
func (m *Metrics) InstallFinished(outcome string) {
	if m.registry == nil {
		return
	}
	m.installsFinished.WithLabelValues(outcome).Inc()
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on the configured listen address. It
// returns immediately; the server runs until Shutdown.
func (m *Metrics) StartServer() error {
	if m.registry == nil || m.config.ListenAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Serving is best-effort; an occupied port must not stop the run.
	go func() { _ = m.server.ListenAndServe() }()

	return nil
}

// Shutdown stops the metrics server, if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
