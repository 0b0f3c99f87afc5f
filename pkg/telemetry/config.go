package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for the SetForge installer.
type Config struct {
	// ServiceName identifies the service in logs, traces and metrics.
	ServiceName string

	// ServiceVersion is the installer version.
	ServiceVersion string

	// Environment is the deployment environment (dev, ci, user).
	Environment string

	// Logging configures structured logging.
	Logging LoggingConfig

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig

	// Events configures the install event publisher.
	Events EventsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string

	// Format specifies the log format (console, json).
	Format string

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool

	// Exporter selects the span exporter (stdout, otlp, none).
	Exporter string

	// Endpoint is the OTLP collector endpoint for the otlp exporter.
	Endpoint string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64

	// ExportTimeout bounds a single batch export.
	ExportTimeout time.Duration
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool

	// Namespace prefixes every metric name.
	Namespace string

	// ListenAddr, if set, serves /metrics on this address during a run.
	ListenAddr string
}

// EventsConfig configures the install event publisher.
type EventsConfig struct {
	// Enabled turns event publishing on.
	Enabled bool

	// BufferSize is the publisher's channel buffer.
	BufferSize int
}

// DefaultConfig returns a configuration suitable for an interactive
// installer run: console logs, no tracing, metrics collected but not
// served.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "setforge",
		ServiceVersion: "dev",
		Environment:    "user",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Exporter:      "none",
			SamplingRate:  1.0,
			ExportTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "setforge",
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 128,
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "none":
		case "otlp":
			if c.Tracing.Endpoint == "" {
				return fmt.Errorf("otlp exporter requires an endpoint")
			}
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return fmt.Errorf("sampling rate must be in [0, 1]: %f", c.Tracing.SamplingRate)
		}
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive: %d", c.Events.BufferSize)
	}

	return nil
}
