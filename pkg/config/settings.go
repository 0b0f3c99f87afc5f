package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Settings is the installer configuration, loaded from a YAML file.
type Settings struct {
	// DataDir is where SetForge keeps its journal and working files.
	DataDir string `yaml:"data_dir" validate:"required"`

	Telemetry TelemetrySettings `yaml:"telemetry"`
	Recovery  RecoverySettings  `yaml:"recovery"`
	Services  ServicesSettings  `yaml:"services"`
	Install   InstallSettings   `yaml:"install"`
}

// TelemetrySettings configures logging, metrics and tracing.
type TelemetrySettings struct {
	LogLevel          string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat         string `yaml:"log_format" validate:"oneof=console json"`
	MetricsListenAddr string `yaml:"metrics_listen_addr" validate:"omitempty,hostname_port"`
	TraceExporter     string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	TraceEndpoint     string `yaml:"trace_endpoint" validate:"omitempty,hostname_port"`
}

// RecoverySettings configures the error handler.
type RecoverySettings struct {
	// HistoryLimit bounds the in-memory error history. Negative means
	// unbounded; zero is rejected (use the default instead).
	HistoryLimit int `yaml:"history_limit" validate:"ne=0"`
}

// ServicesSettings locates the external services the installer sets up.
type ServicesSettings struct {
	DockerSocket   string `yaml:"docker_socket" validate:"required"`
	QdrantEndpoint string `yaml:"qdrant_endpoint" validate:"required,hostname_port"`
	OllamaEndpoint string `yaml:"ollama_endpoint" validate:"required,hostname_port"`
}

// InstallSettings tunes the install run itself.
type InstallSettings struct {
	// MaxRetries bounds retry attempts for a step whose failure
	// suggests a retry.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`

	// RetryInitialWait is the first backoff interval.
	RetryInitialWait time.Duration `yaml:"retry_initial_wait" validate:"gt=0"`

	// RetryMaxWait caps the backoff interval.
	RetryMaxWait time.Duration `yaml:"retry_max_wait" validate:"gtefield=RetryInitialWait"`

	// MinDiskSpaceGB and MinMemoryGB are the preflight thresholds.
	MinDiskSpaceGB int `yaml:"min_disk_space_gb" validate:"gt=0"`
	MinMemoryGB    int `yaml:"min_memory_gb" validate:"gt=0"`
}

// Default returns the settings used when no file overrides them.
func Default() *Settings {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Settings{
		DataDir: filepath.Join(home, ".setforge"),
		Telemetry: TelemetrySettings{
			LogLevel:      "info",
			LogFormat:     "console",
			TraceExporter: "none",
		},
		Recovery: RecoverySettings{
			HistoryLimit: 100,
		},
		Services: ServicesSettings{
			DockerSocket:   "/var/run/docker.sock",
			QdrantEndpoint: "localhost:6333",
			OllamaEndpoint: "localhost:11434",
		},
		Install: InstallSettings{
			MaxRetries:       3,
			RetryInitialWait: 500 * time.Millisecond,
			RetryMaxWait:     10 * time.Second,
			MinDiskSpaceGB:   10,
			MinMemoryGB:      4,
		},
	}
}

// Load reads settings from the given YAML file, layered over the
// defaults, and validates the result. An empty path returns the
// validated defaults.
func Load(path string) (*Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks the settings against their constraints.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid setting %s: failed %q constraint", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("settings validation failed: %w", err)
	}
	if s.Telemetry.TraceExporter == "otlp" && s.Telemetry.TraceEndpoint == "" {
		return fmt.Errorf("invalid setting Telemetry.TraceEndpoint: required with the otlp exporter")
	}
	return nil
}

// JournalPath returns the location of the fault journal database.
func (s *Settings) JournalPath() string {
	return filepath.Join(s.DataDir, "journal.db")
}

var validate = validator.New()
