package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradepilot/backend/internal/api"
	"github.com/tradepilot/backend/internal/api/handlers"
	"github.com/tradepilot/backend/internal/scheduler"
	"github.com/tradepilot/backend/internal/scheduler/jobs"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the full automation loop",
	Long: `Starts the complete trading automation loop:

- Bridge connection manager with heartbeat and reconnection
- Scheduled signal generation, selection and execution
- Position tracking and outcome classification
- Feedback aggregation with adaptive confidence threshold
- REST API and websocket event stream

Example:
  go run ./cmd/pilot run
  go run ./cmd/pilot run --port 8089`,
	RunE: runLoop,
}

var runPort string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runPort, "port", "", "API server port (overrides PORT)")
}

func runLoop(cmd *cobra.Command, args []string) error {
	fmt.Println("=== TradePilot ===")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if runPort != "" {
		a.cfg.Port = runPort
	}

	log := a.logger

	// Bridge: configure from the environment and start health polling.
	a.connectBridge(ctx)
	a.manager.Start(ctx)

	// Scheduler.
	sched := scheduler.New(ctx, log)
	jobList := []scheduler.Job{
		jobs.NewGenerationJob(a.generator, a.executor, log, a.cfg.Trading.GenerationInterval, a.params),
		jobs.NewTrackingJob(a.tracker, log, a.cfg.Trading.TrackerInterval),
		jobs.NewFeedbackJob(a.aggregator, log, a.cfg.Trading.FeedbackInterval),
		jobs.NewRetentionJob(a.tracker, log, a.cfg.Trading.RetentionWindow),
	}
	for _, job := range jobList {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// API server.
	h := api.Handlers{
		Signals:     handlers.NewSignalHandler(a.signals, log),
		Positions:   handlers.NewPositionHandler(a.records, log),
		Performance: handlers.NewPerformanceHandler(a.aggregator, log),
		Bridge:      handlers.NewBridgeHandler(a.manager, log),
		Scheduler:   handlers.NewSchedulerHandler(sched, log),
		Settings:    handlers.NewSettingsHandler(a.aggregator, log),
		Events:      api.NewEventStream(a.bus, log),
	}
	router := api.NewRouter(h, a.manager, log)
	server := api.New(a.cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("Automation loop started")
	fmt.Printf("\nServer running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Stopped")
	return nil
}
