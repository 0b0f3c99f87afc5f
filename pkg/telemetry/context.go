package telemetry

import (
	"context"
)

// Telemetry bundles the logger, tracer, metrics and event publisher
// behind a single handle that travels with the install run.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// New creates a telemetry instance from configuration.
func New(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  NewEventPublisher(cfg.Events),
		Config:  cfg,
	}, nil
}

// WithContext attaches the telemetry handle to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, telemetryContextKey{}, t)
}

// FromContext retrieves the telemetry handle from the context. If none
// is attached, a silent default is returned.
func FromContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	tracer, _ := NewTracer(TracingConfig{}, "setforge", "", "")
	return &Telemetry{
		Logger:  Nop(),
		Tracer:  tracer,
		Metrics: &Metrics{},
		Events:  NewEventPublisher(EventsConfig{}),
	}
}

// Shutdown flushes and stops all telemetry subsystems.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.Events.Close()

	var firstErr error
	if t.Metrics != nil {
		if err := t.Metrics.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if t.Tracer != nil {
		if err := t.Tracer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
