package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running instance",
	Long: `Queries a running instance over its local API and prints the
bridge connection state and scheduler job statistics.

Example:
  go run ./cmd/pilot status
  go run ./cmd/pilot status --addr http://localhost:8089`,
	RunE: runStatus,
}

var statusAddr string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8089", "API base address")
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== TradePilot Status ===")

	client := &http.Client{Timeout: 5 * time.Second}

	// Health + bridge state
	var health struct {
		Status          string `json:"status"`
		BridgeState     string `json:"bridge_state"`
		BridgeConnected bool   `json:"bridge_connected"`
	}
	if err := getJSON(client, statusAddr+"/health", &health); err != nil {
		return fmt.Errorf("instance unreachable at %s: %w", statusAddr, err)
	}
	fmt.Printf("\nService:  %s\n", health.Status)
	fmt.Printf("Bridge:   %s (connected=%v)\n", health.BridgeState, health.BridgeConnected)

	// Scheduler jobs
	var jobsResp struct {
		Data map[string]struct {
			Schedule     string     `json:"schedule"`
			TotalRuns    int        `json:"total_runs"`
			SuccessCount int        `json:"success_count"`
			FailureCount int        `json:"failure_count"`
			Running      bool       `json:"running"`
			LastRun      *time.Time `json:"last_run"`
		} `json:"data"`
	}
	if err := getJSON(client, statusAddr+"/api/scheduler/jobs", &jobsResp); err != nil {
		return fmt.Errorf("failed to fetch scheduler jobs: %w", err)
	}

	fmt.Println("\nScheduler jobs:")
	for name, stats := range jobsResp.Data {
		lastRun := "never"
		if stats.LastRun != nil {
			lastRun = stats.LastRun.Format("15:04:05")
		}
		fmt.Printf("  %-22s %-12s runs=%d ok=%d fail=%d running=%v last=%s\n",
			name, stats.Schedule, stats.TotalRuns, stats.SuccessCount, stats.FailureCount, stats.Running, lastRun)
	}

	// Open positions
	var posResp struct {
		Data []struct {
			Ticket  int64   `json:"ticket"`
			Symbol  string  `json:"symbol"`
			LotSize float64 `json:"lot_size"`
		} `json:"data"`
	}
	if err := getJSON(client, statusAddr+"/api/positions", &posResp); err == nil {
		fmt.Printf("\nOpen positions: %d\n", len(posResp.Data))
		for _, p := range posResp.Data {
			fmt.Printf("  ticket=%d %-8s lot=%.2f\n", p.Ticket, p.Symbol, p.LotSize)
		}
	}

	return nil
}

func getJSON(client *http.Client, url string, dest interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
