package installer

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/setforge/setforge/pkg/config"
	"github.com/setforge/setforge/pkg/recovery"
)

func TestCheckDataDirCreatesAndProbes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if err := checkDataDir(dir); err != nil {
		t.Fatalf("checkDataDir() error = %v", err)
	}
}

func TestCheckDockerSocketMissing(t *testing.T) {
	err := checkDockerSocket(filepath.Join(t.TempDir(), "missing.sock"))
	if err == nil {
		t.Fatal("checkDockerSocket() error = nil, want requirements error")
	}
	var reqErr *recovery.RequirementsError
	if !errors.As(err, &reqErr) {
		t.Fatalf("checkDockerSocket() error = %T, want *recovery.RequirementsError", err)
	}
	if reqErr.Requirement != "docker" {
		t.Errorf("Requirement = %q, want %q", reqErr.Requirement, "docker")
	}
}

func TestCheckEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()

	if err := checkEndpoint(context.Background(), "qdrant", ln.Addr().String()); err != nil {
		t.Errorf("checkEndpoint() against live listener: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close()
	err = checkEndpoint(context.Background(), "qdrant", addr)
	if err == nil {
		t.Fatal("checkEndpoint() error = nil against closed listener")
	}
	var connErr *recovery.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("checkEndpoint() error = %T, want *recovery.ConnectivityError", err)
	}
	if connErr.Endpoint != addr {
		t.Errorf("Endpoint = %q, want %q", connErr.Endpoint, addr)
	}
}

func TestRunChecksCollectsAllResults(t *testing.T) {
	probeErr := errors.New("probe failed")
	checks := []Check{
		{Name: "ok", Probe: func(ctx context.Context) error { return nil }},
		{Name: "bad", Probe: func(ctx context.Context) error { return probeErr }},
		{Name: "also-ok", Probe: func(ctx context.Context) error { return nil }},
	}

	results := RunChecks(context.Background(), checks)
	if len(results) != 3 {
		t.Fatalf("RunChecks() returned %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("passing checks reported errors")
	}
	if !errors.Is(results[1].Err, probeErr) {
		t.Errorf("results[1].Err = %v, want %v", results[1].Err, probeErr)
	}
}

func TestPreflightPhaseWrapsChecks(t *testing.T) {
	settings := config.Default()
	phase := PreflightPhase(settings)

	if phase.Name != "preflight" {
		t.Errorf("Name = %q, want %q", phase.Name, "preflight")
	}
	if len(phase.Steps) != len(Preflight(settings)) {
		t.Errorf("Steps = %d, want %d", len(phase.Steps), len(Preflight(settings)))
	}
	for _, step := range phase.Steps {
		if step.Run == nil {
			t.Errorf("step %s has no run function", step.Name)
		}
	}
}

func TestCheckDisk(t *testing.T) {
	dir := t.TempDir()

	// No filesystem holds an exabyte.
	err := checkDisk(dir, 1<<30)
	if err == nil {
		t.Fatal("checkDisk() error = nil against an impossible minimum")
	}
	var reqErr *recovery.RequirementsError
	if !errors.As(err, &reqErr) {
		t.Fatalf("checkDisk() error = %T, want *recovery.RequirementsError", err)
	}
	if reqErr.Requirement != "disk_space" {
		t.Errorf("Requirement = %q, want %q", reqErr.Requirement, "disk_space")
	}

	if err := checkDisk(dir, 0); err != nil {
		t.Errorf("checkDisk() with disabled minimum: %v", err)
	}
}

func TestPreflightIncludesDiskSpace(t *testing.T) {
	names := make(map[string]bool)
	for _, check := range Preflight(config.Default()) {
		names[check.Name] = true
	}
	for _, want := range []string{"data-dir", "disk-space", "docker", "memory"} {
		if !names[want] {
			t.Errorf("Preflight() missing check %q", want)
		}
	}
}

func TestReadMemTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	content := "MemTotal:       16384000 kB\nMemFree:         8192000 kB\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	total, err := readMemTotal(path)
	if err != nil {
		t.Fatalf("readMemTotal() error = %v", err)
	}
	if total != 16384000 {
		t.Errorf("readMemTotal() = %d, want 16384000", total)
	}

	if _, err := readMemTotal(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("readMemTotal() on missing file: error = nil")
	}
}
