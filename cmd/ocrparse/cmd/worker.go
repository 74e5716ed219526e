package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ocrparse/internal/metrics"
	"github.com/MeKo-Tech/ocrparse/internal/queue"
)

// workerCmd represents the worker command.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume parse tasks from the redis queue",
	Long: `Start a queue worker that runs document:parse and document:parse_fields
tasks and stores each outcome as the task result. Prometheus metrics are
served on --metrics-addr.

Examples:
  ocrparse worker
  ocrparse worker --concurrency 4 --metrics-addr :9100`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().String("redis-addr", "", "redis address (default from config)")
	workerCmd.Flags().String("queue", "", "queue name (default from config)")
	workerCmd.Flags().Int("concurrency", 0, "number of concurrent parses (default from config)")
	workerCmd.Flags().String("metrics-addr", "", "listen address for /metrics; empty disables it (default from config)")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	if cmd.Flags().Changed("redis-addr") {
		cfg.Queue.RedisAddr, _ = cmd.Flags().GetString("redis-addr")
	}
	if cmd.Flags().Changed("queue") {
		cfg.Queue.Name, _ = cmd.Flags().GetString("queue")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Queue.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger := slog.Default()

	p, closeParser, err := newParser(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeParser()

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	srv := queue.NewServer(cfg.Queue, queue.NewHandler(p, logger), logger)
	runErr := srv.Run()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("worker failed: %w", runErr)
	}
	logger.Info("Worker stopped")
	return nil
}
