package main

import (
	"github.com/spf13/cobra"

	apotel "github.com/aristath/autopilot/internal/otel"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Risk-aware task runner for coding agents",
	Long: `Autopilot executes a planner's task list with a coding agent. Tasks are
scored for risk, scheduled in dependency order and recovered on failure.`,
	Version:      apotel.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file to use instead of ~/.autopilot and .autopilot")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(historyCmd)
}

// execute runs the root command.
func execute() error {
	return rootCmd.Execute()
}
