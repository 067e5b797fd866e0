// Package cmd provides the CLI commands for radar.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/civicwatch/radar/internal/config"
	"github.com/civicwatch/radar/internal/logging"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the radar CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radar",
		Short: "Change detection and semantic search over civic sources",
		Long: `Radar monitors a fixed set of civic and regulatory sources, detects
meaningful content changes, and keeps the accumulated corpus semantically
searchable and diff-able.

Fetched content is fingerprinted, diffed sentence-by-sentence against the
previous snapshot, embedded, and indexed. All state lives locally under
~/.radar by default.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a radar.yaml config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.radar/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newCycleCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// setupLogging initializes structured logging for all commands. CLI runs log
// to file only so stdout stays parseable.
func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
	}
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		loggingCleanup = cleanup
	}
	return nil
}

// loadConfig loads the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
