package installer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/setforge/setforge/pkg/config"
	"github.com/setforge/setforge/pkg/recovery"
)

// Check is a single environment probe. Probes return typed recovery
// errors so the classifier can assign the right category without
// message sniffing.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name string
	Err  error
}

// Preflight returns the checks that must pass before the install run
// touches anything: writable data dir, enough disk space, reachable
// container runtime, enough memory.
func Preflight(s *config.Settings) []Check {
	return []Check{
		{Name: "data-dir", Probe: func(ctx context.Context) error {
			return checkDataDir(s.DataDir)
		}},
		{Name: "disk-space", Probe: func(ctx context.Context) error {
			return checkDisk(s.DataDir, s.Install.MinDiskSpaceGB)
		}},
		{Name: "docker", Probe: func(ctx context.Context) error {
			return checkDockerSocket(s.Services.DockerSocket)
		}},
		{Name: "memory", Probe: func(ctx context.Context) error {
			return checkMemory(s.Install.MinMemoryGB)
		}},
	}
}

// ServiceChecks returns the probes that verify the installed services
// answer on their endpoints. They are used after the install, and by
// the check command.
func ServiceChecks(s *config.Settings) []Check {
	return []Check{
		{Name: "qdrant", Probe: func(ctx context.Context) error {
			return checkEndpoint(ctx, "qdrant", s.Services.QdrantEndpoint)
		}},
		{Name: "ollama", Probe: func(ctx context.Context) error {
			return checkEndpoint(ctx, "ollama", s.Services.OllamaEndpoint)
		}},
	}
}

// RunChecks runs every check and collects the results; it does not
// stop at the first failure, so the user sees the full picture.
func RunChecks(ctx context.Context, checks []Check) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		results = append(results, CheckResult{Name: check.Name, Err: check.Probe(ctx)})
	}
	return results
}

// PreflightPhase wraps the preflight checks into an install phase so
// failures flow through the recovery handler like any other step.
func PreflightPhase(s *config.Settings) Phase {
	checks := Preflight(s)
	steps := make([]Step, 0, len(checks))
	for _, check := range checks {
		steps = append(steps, Step{Name: "preflight:" + check.Name, Run: check.Probe})
	}
	return Phase{
		Name:        "preflight",
		Description: "verify system requirements before installing",
		Steps:       steps,
	}
}

// checkDataDir verifies the data directory exists and is writable by
// creating and removing a probe file.
func checkDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return recovery.NewPermissionError(dir, "cannot create data directory", err)
	}
	probe := filepath.Join(dir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return recovery.NewPermissionError(dir, "data directory is not writable", err)
	}
	if err := os.Remove(probe); err != nil {
		return recovery.NewPermissionError(probe, "cannot remove probe file", err)
	}
	return nil
}

// checkDockerSocket verifies the container runtime socket exists.
func checkDockerSocket(socket string) error {
	if _, err := os.Stat(socket); err != nil {
		return recovery.NewRequirementsError("docker",
			fmt.Sprintf("container runtime socket %s is not available", socket), err)
	}
	return nil
}

// checkEndpoint dials the service's TCP endpoint.
func checkEndpoint(ctx context.Context, name, endpoint string) error {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return recovery.NewConnectivityError(endpoint,
			fmt.Sprintf("%s is not reachable", name), err)
	}
	return conn.Close()
}

// checkDisk compares the free space on the data directory's filesystem
// against the configured minimum. The image pulls and model download
// land there, so a nearly full disk must stop the run before any phase
// starts.
func checkDisk(dir string, minGB int) error {
	if minGB <= 0 {
		return nil
	}
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		// The data-dir check owns missing-directory failures.
		return nil
	}
	availGB := float64(st.Bavail) * float64(st.Bsize) / (1 << 30)
	if availGB < float64(minGB) {
		return recovery.NewRequirementsError("disk_space",
			fmt.Sprintf("%.1f GB free on %s, %d GB required", availGB, dir, minGB), nil)
	}
	return nil
}

// checkMemory compares total system memory against the configured
// minimum. Only implemented for Linux; elsewhere the check passes.
func checkMemory(minGB int) error {
	if runtime.GOOS != "linux" || minGB <= 0 {
		return nil
	}
	totalKB, err := readMemTotal("/proc/meminfo")
	if err != nil {
		// Unable to read meminfo is not a requirements failure.
		return nil
	}
	totalGB := float64(totalKB) / (1024 * 1024)
	if totalGB < float64(minGB) {
		return recovery.NewRequirementsError("memory",
			fmt.Sprintf("%.1f GB of memory available, %d GB required", totalGB, minGB), nil)
	}
	return nil
}

func readMemTotal(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		return strconv.ParseUint(fields[1], 10, 64)
	}
	return 0, fmt.Errorf("MemTotal not found in %s", path)
}
