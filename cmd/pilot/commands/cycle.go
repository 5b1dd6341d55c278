package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// cycleCmd represents the cycle command
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one generation cycle and exit",
	Long: `Runs a single generation/selection/execution cycle outside the
scheduler. Useful for smoke-testing the configuration and the bridge
link.

Example:
  go run ./cmd/pilot cycle
  go run ./cmd/pilot cycle --execute=false`,
	RunE: runCycle,
}

var cycleExecute bool

func init() {
	rootCmd.AddCommand(cycleCmd)

	cycleCmd.Flags().BoolVar(&cycleExecute, "execute", true, "submit selected signals to the bridge")
}

func runCycle(cmd *cobra.Command, args []string) error {
	fmt.Println("=== TradePilot One-Shot Cycle ===")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	a.connectBridge(ctx)

	result, err := a.generator.RunCycle(ctx, a.params)
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}

	fmt.Printf("\nScored:    %d\n", result.Scored)
	fmt.Printf("Timed out: %d\n", result.TimedOut)
	fmt.Printf("Failed:    %d\n", result.Failed)
	fmt.Printf("Expired:   %d\n", result.Expired)
	fmt.Printf("Selected:  %d\n", len(result.Selected))

	for _, sig := range result.Selected {
		fmt.Printf("  %-8s %-5s conf=%.1f entry=%.5f stop=%.5f target=%.5f [%s]\n",
			sig.Symbol, sig.Direction, sig.Confidence, sig.Entry, sig.StopLoss, sig.TakeProfit, sig.Strategy)
	}

	if cycleExecute && len(result.Selected) > 0 {
		fmt.Println("\nExecuting selected signals...")
		a.executor.ExecuteBatch(ctx, result.Selected)

		open, err := a.records.OpenRecords(ctx)
		if err == nil {
			fmt.Printf("Open positions: %d\n", len(open))
			for _, rec := range open {
				fmt.Printf("  ticket=%d %-8s lot=%.2f entry=%.5f\n",
					rec.Ticket, rec.Symbol, rec.LotSize, rec.EntryPrice)
			}
		}
	}

	return nil
}
