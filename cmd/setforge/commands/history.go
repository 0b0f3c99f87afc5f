package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/setforge/setforge/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past install runs and their handled errors",
		Long: `Show the journal of install runs.

Without flags the most recent runs are listed with their status. With
--run the handled errors of that run are shown, most recent first,
including the classification, the user-facing message and the recovery
actions that were suggested.`,
		Example: `  # List recent runs
  setforge history

  # Show the handled errors of one run
  setforge history --run 4f7c2d9a-...

  # Machine-readable output
  setforge history --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}

			journal, err := openJournal(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer journal.Close()

			if runID != "" {
				return printFaults(cmd, journal, runID, limit)
			}
			return printRuns(cmd, journal, limit)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show handled errors for this run id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")

	return cmd
}

func printRuns(cmd *cobra.Command, journal stores.Store, limit int) error {
	runs, err := journal.ListRuns(cmd.Context(), limit, 0)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Println("no install runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tVERSION\tERROR")
	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = *run.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Version, errMsg)
	}
	return w.Flush()
}

func printFaults(cmd *cobra.Command, journal stores.Store, runID string, limit int) error {
	faults, err := journal.ListFaults(cmd.Context(), &runID, limit, 0)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(faults)
	}

	if len(faults) == 0 {
		fmt.Printf("no handled errors recorded for run %s\n", runID)
		return nil
	}

	for _, fault := range faults {
		fmt.Printf("%s  [%s/%s]  %s/%s\n",
			fault.Timestamp.Format("15:04:05"), fault.Category, fault.Severity,
			fault.Phase, fault.Step)
		fmt.Printf("    %s\n", fault.UserMessage)
		fmt.Printf("    suggested: %s\n", fault.SuggestedActions)
	}
	return nil
}
