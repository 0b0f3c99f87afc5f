package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/setforge/setforge/pkg/installer"
	"github.com/setforge/setforge/pkg/recovery"
)

func newCheckCommand() *cobra.Command {
	var servicesOnly bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check system requirements and service health",
		Long: `Run the preflight checks and probe the installed services.

Preflight checks:
  - data-dir: data directory exists and is writable
  - docker:   container runtime socket is available
  - memory:   system memory meets the configured minimum

Service probes:
  - qdrant:   vector store answers on its endpoint
  - ollama:   model server answers on its endpoint`,
		Example: `  # Run all checks
  setforge check

  # Probe only the installed services
  setforge check --services

  # Machine-readable output
  setforge check --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			var checks []installer.Check
			if !servicesOnly {
				checks = installer.Preflight(settings)
			}
			checks = append(checks, installer.ServiceChecks(settings)...)

			results := installer.RunChecks(cmd.Context(), checks)
			failed := printCheckResults(results)
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&servicesOnly, "services", false, "probe services only, skip preflight")

	return cmd
}

func printCheckResults(results []installer.CheckResult) int {
	classifier := recovery.NewClassifier()
	advisor := recovery.NewAdvisor()

	type checkOut struct {
		Name     string `json:"name"`
		OK       bool   `json:"ok"`
		Category string `json:"category,omitempty"`
		Message  string `json:"message,omitempty"`
	}

	failed := 0
	out := make([]checkOut, 0, len(results))
	for _, res := range results {
		co := checkOut{Name: res.Name, OK: res.Err == nil}
		if res.Err != nil {
			failed++
			category := classifier.Categorize(res.Err)
			severity := classifier.SeverityFor(category)
			actions := advisor.Suggest(category, severity, recovery.ActionContext{})
			co.Category = string(category)
			co.Message = advisor.UserMessage(category, res.Err.Error(), actions)
		}
		out = append(out, co)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return failed
	}

	for _, co := range out {
		if co.OK {
			fmt.Printf("ok    %s\n", co.Name)
			continue
		}
		fmt.Printf("FAIL  %s (%s)\n      %s\n", co.Name, co.Category, co.Message)
	}
	return failed
}
