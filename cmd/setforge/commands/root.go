package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/setforge/setforge/pkg/config"
	"github.com/setforge/setforge/pkg/stores"
	"github.com/setforge/setforge/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "setforge",
		Short: "SetForge - Local AI memory stack installer",
		Long: `SetForge installs and manages a local AI memory stack: a Qdrant
vector store and an Ollama model server, running in containers.

Features:
  - Multi-phase install with snapshots at every phase boundary
  - Error classification with ordered recovery suggestions
  - Automatic retry, fallback, skip and rollback handling
  - Preflight and post-install verification checks
  - A persistent journal of runs and handled errors`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInstallCommand(version))
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// loadSettings reads the settings file and applies the global flag
// overrides.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		settings.Telemetry.LogLevel = "debug"
	}
	if jsonOutput {
		settings.Telemetry.LogFormat = "json"
	}
	return settings, nil
}

// newTelemetry builds the telemetry handle from the settings.
func newTelemetry(settings *config.Settings, version string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = settings.Telemetry.LogLevel
	cfg.Logging.Format = settings.Telemetry.LogFormat
	cfg.Metrics.ListenAddr = settings.Telemetry.MetricsListenAddr
	if settings.Telemetry.TraceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = settings.Telemetry.TraceExporter
		cfg.Tracing.Endpoint = settings.Telemetry.TraceEndpoint
		cfg.Tracing.Insecure = true
	}
	return telemetry.New(cfg)
}

// openJournal opens and migrates the fault journal database.
func openJournal(ctx context.Context, settings *config.Settings) (stores.Store, error) {
	if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: settings.JournalPath()})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
