package installer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/setforge/setforge/pkg/config"
	"github.com/setforge/setforge/pkg/recovery"
)

// Container images and names used by the default workflow.
const (
	qdrantImage = "qdrant/qdrant:v1.12.4"
	ollamaImage = "ollama/ollama:0.5.7"

	qdrantContainer = "setforge-qdrant"
	ollamaContainer = "setforge-ollama"

	// embedModel is pulled into ollama so the memory stack can embed
	// documents out of the box.
	embedModel = "nomic-embed-text"
)

// Workflow builds the default install phases: preflight, service
// containers, model download, verification. Steps that apply work
// register their teardown on the installer so a rollback or abort can
// undo them.
func Workflow(inst *Installer, s *config.Settings) []Phase {
	return []Phase{
		PreflightPhase(s),
		{
			Name:        "services",
			Description: "start the qdrant and ollama containers",
			Steps: []Step{
				{
					Name: "pull-qdrant",
					Run: func(ctx context.Context) error {
						return dockerPull(ctx, qdrantImage)
					},
					// A cached image is good enough when the registry
					// is unreachable.
					Fallback: func(ctx context.Context) error {
						return dockerImageExists(ctx, qdrantImage)
					},
				},
				{
					Name: "start-qdrant",
					Run: func(ctx context.Context) error {
						return startQdrant(ctx, inst, s)
					},
				},
				{
					Name: "pull-ollama",
					Run: func(ctx context.Context) error {
						return dockerPull(ctx, ollamaImage)
					},
					Fallback: func(ctx context.Context) error {
						return dockerImageExists(ctx, ollamaImage)
					},
				},
				{
					Name: "start-ollama",
					Run: func(ctx context.Context) error {
						return startOllama(ctx, inst, s)
					},
				},
			},
		},
		{
			Name:        "models",
			Description: "download the embedding model",
			Steps: []Step{
				{
					Name: "pull-embed-model",
					Run: func(ctx context.Context) error {
						return docker(ctx, "exec", ollamaContainer, "ollama", "pull", embedModel)
					},
				},
			},
		},
		{
			Name:        "verify",
			Description: "verify the installed services answer",
			Steps:       serviceSteps(s),
		},
	}
}

func serviceSteps(s *config.Settings) []Step {
	checks := ServiceChecks(s)
	steps := make([]Step, 0, len(checks))
	for _, check := range checks {
		steps = append(steps, Step{Name: "verify:" + check.Name, Run: check.Probe})
	}
	return steps
}

func startQdrant(ctx context.Context, inst *Installer, s *config.Settings) error {
	port, err := endpointPort(s.Services.QdrantEndpoint)
	if err != nil {
		return err
	}
	storage := filepath.Join(s.DataDir, "qdrant")
	if err := docker(ctx, "run", "-d",
		"--name", qdrantContainer,
		"--restart", "unless-stopped",
		"-p", port+":6333",
		"-v", storage+":/qdrant/storage",
		qdrantImage,
	); err != nil {
		return err
	}
	inst.AddTeardown(func(ctx context.Context) error {
		return docker(ctx, "rm", "-f", qdrantContainer)
	})
	return nil
}

func startOllama(ctx context.Context, inst *Installer, s *config.Settings) error {
	port, err := endpointPort(s.Services.OllamaEndpoint)
	if err != nil {
		return err
	}
	models := filepath.Join(s.DataDir, "ollama")
	if err := docker(ctx, "run", "-d",
		"--name", ollamaContainer,
		"--restart", "unless-stopped",
		"-p", port+":11434",
		"-v", models+":/root/.ollama",
		ollamaImage,
	); err != nil {
		return err
	}
	inst.AddTeardown(func(ctx context.Context) error {
		return docker(ctx, "rm", "-f", ollamaContainer)
	})
	return nil
}

// docker runs the docker CLI and folds its output into the error. A
// missing binary surfaces as a requirements failure rather than a
// generic exec error.
func docker(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return recovery.NewRequirementsError("docker", "the docker CLI is not installed", err)
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("docker %s: %s: %w", args[0], msg, err)
}

func dockerPull(ctx context.Context, image string) error {
	return docker(ctx, "pull", image)
}

func dockerImageExists(ctx context.Context, image string) error {
	return docker(ctx, "image", "inspect", image)
}

func endpointPort(endpoint string) (string, error) {
	_, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid value for service endpoint %q: %w", endpoint, err)
	}
	return port, nil
}
