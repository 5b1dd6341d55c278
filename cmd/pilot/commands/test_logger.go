package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradepilot/backend/pkg/config"
	"github.com/tradepilot/backend/pkg/logger"
)

// testLoggerCmd represents the test-logger command
var testLoggerCmd = &cobra.Command{
	Use:   "test-logger",
	Short: "Exercise the structured logger",
	Long: `Emits log lines at every level with the configured format so the
output pipeline can be verified.

Example:
  go run ./cmd/pilot test-logger
  LOG_FORMAT=console go run ./cmd/pilot test-logger`,
	RunE: runTestLogger,
}

func init() {
	rootCmd.AddCommand(testLoggerCmd)
}

func runTestLogger(cmd *cobra.Command, args []string) error {
	fmt.Println("=== TradePilot Logger Test ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Printf("Level: %s, Format: %s\n\n", cfg.LogLevel, cfg.LogFormat)

	log := logger.New(cfg)

	log.Debug("Debug message")
	log.Info("Info message")
	log.Warn("Warn message")
	log.Error("Error message")

	log.WithField("symbol", "EURUSD").Info("Single field")
	log.WithFields(map[string]interface{}{
		"symbol":     "GBPUSD",
		"confidence": 84.2,
		"selected":   true,
	}).Info("Multiple fields")

	log.WithError(errors.New("simulated failure")).Error("Error with cause")

	log.Debugf("Formatted: %d symbols in universe", 5)

	fmt.Println("\nLogger test complete")
	return nil
}
