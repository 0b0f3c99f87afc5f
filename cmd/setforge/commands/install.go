package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/setforge/setforge/pkg/installer"
	"github.com/setforge/setforge/pkg/telemetry"
)

func newInstallCommand(version string) *cobra.Command {
	var (
		dryRun        bool
		skipPreflight bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the local AI memory stack",
		Long: `Install the local AI memory stack.

This command:
  - Runs the preflight checks (data dir, docker, memory)
  - Starts the qdrant and ollama containers
  - Downloads the embedding model
  - Verifies the services answer on their endpoints

A snapshot marks every phase boundary. When a step fails, the error
handler classifies the fault and the installer retries, falls back,
skips, rolls back or aborts depending on the suggested actions. Every
handled error is written to the journal; see 'setforge history'.`,
		Example: `  # Install with default settings
  setforge install

  # Install with a settings file
  setforge install --config setforge.yaml

  # Show the workflow without executing it
  setforge install --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			tel, err := newTelemetry(settings, version)
			if err != nil {
				return err
			}
			ctx := tel.WithContext(cmd.Context())
			defer tel.Shutdown(ctx)

			if err := tel.Metrics.StartServer(); err != nil {
				return err
			}

			journal, err := openJournal(ctx, settings)
			if err != nil {
				return err
			}
			defer journal.Close()

			inst := installer.New(installer.Options{
				Settings:  settings,
				Telemetry: tel,
				Journal:   journal,
				Version:   version,
			})

			phases := installer.Workflow(inst, settings)
			if skipPreflight {
				phases = phases[1:]
			}

			if dryRun {
				return printWorkflow(phases)
			}

			stop := renderEvents(tel)
			defer stop()

			tel.Logger.WithRunID(inst.RunID()).Info("starting install run")
			report, err := inst.Run(ctx, phases)
			printReport(report)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the workflow without executing it")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "skip the preflight checks")

	return cmd
}

// renderEvents streams install events to stderr until stopped.
func renderEvents(tel *telemetry.Telemetry) func() {
	events, unsubscribe := tel.Events.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		log := tel.Logger.Component("progress")
		for evt := range events {
			msg := evt.Message
			l := log
			if evt.Phase != "" {
				l = l.WithPhase(evt.Phase)
			}
			if evt.Step != "" {
				l = l.WithStep(evt.Step)
			}
			switch evt.Level {
			case telemetry.EventLevelError:
				l.Error(msg)
			case telemetry.EventLevelWarning:
				l.Warn(msg)
			default:
				l.Info(msg)
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

func printWorkflow(phases []installer.Phase) error {
	if jsonOutput {
		type stepOut struct {
			Name        string `json:"name"`
			HasFallback bool   `json:"has_fallback"`
		}
		type phaseOut struct {
			Name        string    `json:"name"`
			Description string    `json:"description,omitempty"`
			Steps       []stepOut `json:"steps"`
		}
		out := make([]phaseOut, 0, len(phases))
		for _, phase := range phases {
			po := phaseOut{Name: phase.Name, Description: phase.Description}
			for _, step := range phase.Steps {
				po.Steps = append(po.Steps, stepOut{Name: step.Name, HasFallback: step.Fallback != nil})
			}
			out = append(out, po)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, phase := range phases {
		fmt.Printf("phase %s", phase.Name)
		if phase.Description != "" {
			fmt.Printf("  (%s)", phase.Description)
		}
		fmt.Println()
		for _, step := range phase.Steps {
			marker := " "
			if step.Fallback != nil {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, step.Name)
		}
	}
	fmt.Println("\n* step has a fallback")
	return nil
}

func printReport(report *installer.Report) {
	if report == nil {
		return
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	fmt.Printf("run %s: %s\n", report.RunID, report.Status)
	if report.HandledErrors > 0 {
		fmt.Printf("  handled errors: %d (see 'setforge history --run %s')\n",
			report.HandledErrors, report.RunID)
	}
	for _, step := range report.SkippedSteps {
		fmt.Printf("  skipped: %s\n", step)
	}
}
