package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "TradePilot - automated trading signal loop",
	Long: `TradePilot Unified CLI

Signal generation, auto-execution and position tracking against a local
venue bridge, with a feedback loop that adapts the selection gate.

Usage:
  go run ./cmd/pilot [command]

Examples:
  go run ./cmd/pilot run
  go run ./cmd/pilot cycle
  go run ./cmd/pilot status
  go run ./cmd/pilot test-db`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
