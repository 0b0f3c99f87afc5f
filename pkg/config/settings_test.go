package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettingsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") = %v", err)
	}
	if s.Services.QdrantEndpoint != "localhost:6333" {
		t.Errorf("default qdrant endpoint = %s", s.Services.QdrantEndpoint)
	}
	if s.Recovery.HistoryLimit != 100 {
		t.Errorf("default history limit = %d", s.Recovery.HistoryLimit)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "setforge.yaml")
	content := `
data_dir: ` + dir + `
recovery:
  history_limit: 20
services:
  docker_socket: /var/run/docker.sock
  qdrant_endpoint: "qdrant.internal:6333"
  ollama_endpoint: "localhost:11434"
install:
  max_retries: 5
  retry_initial_wait: 1s
  retry_max_wait: 30s
  min_disk_space_gb: 10
  min_memory_gb: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if s.Recovery.HistoryLimit != 20 {
		t.Errorf("history limit = %d, want 20", s.Recovery.HistoryLimit)
	}
	if s.Services.QdrantEndpoint != "qdrant.internal:6333" {
		t.Errorf("qdrant endpoint = %s", s.Services.QdrantEndpoint)
	}
	if s.Install.MaxRetries != 5 || s.Install.RetryInitialWait != time.Second {
		t.Errorf("install settings = %+v", s.Install)
	}
	// Untouched fields keep their defaults.
	if s.Telemetry.LogLevel != "info" {
		t.Errorf("log level = %s, want info", s.Telemetry.LogLevel)
	}
	if s.JournalPath() != filepath.Join(dir, "journal.db") {
		t.Errorf("journal path = %s", s.JournalPath())
	}
}

func TestValidateAllowsUnboundedHistory(t *testing.T) {
	s := Default()
	s.Recovery.HistoryLimit = -1
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() rejected unbounded history: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty data dir", func(s *Settings) { s.DataDir = "" }},
		{"bad log level", func(s *Settings) { s.Telemetry.LogLevel = "loud" }},
		{"zero history limit", func(s *Settings) { s.Recovery.HistoryLimit = 0 }},
		{"bad endpoint", func(s *Settings) { s.Services.QdrantEndpoint = "not a host port" }},
		{"negative retries", func(s *Settings) { s.Install.MaxRetries = -1 }},
		{"max wait below initial", func(s *Settings) {
			s.Install.RetryInitialWait = 10 * time.Second
			s.Install.RetryMaxWait = time.Second
		}},
		{"otlp without endpoint", func(s *Settings) {
			s.Telemetry.TraceExporter = "otlp"
			s.Telemetry.TraceEndpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			if err := s.Validate(); err == nil {
				t.Error("Validate() accepted invalid settings")
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("data_dir: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted malformed YAML")
	}
}
