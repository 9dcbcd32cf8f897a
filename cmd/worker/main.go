// Newsflow analysis worker: claims queued analysis jobs, runs LLM
// analysis, and records verdicts. Runs as a long-lived poller by default;
// --once processes the currently due jobs and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sentinelstream/newsflow/pkg/analysis"
	"github.com/sentinelstream/newsflow/pkg/api"
	"github.com/sentinelstream/newsflow/pkg/cleanup"
	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/pkg/queue"
	"github.com/sentinelstream/newsflow/pkg/store"
	"github.com/sentinelstream/newsflow/pkg/version"
)

// resolveWorkerID determines the lease owner identity for this process.
// Priority: --worker-id flag > "{hostname}:{pid}".
func resolveWorkerID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s:%d", hostname, os.Getpid())
}

func main() {
	// Parse command-line flags
	pollInterval := flag.Int("poll-interval", 10,
		"Seconds to sleep between empty polling ticks")
	batchSize := flag.Int("batch-size", 1,
		"Maximum jobs claimed per polling tick")
	once := flag.Bool("once", false,
		"Process the currently due jobs and exit instead of polling")
	workerIDFlag := flag.String("worker-id", "",
		"Lease owner identity (default: {hostname}:{pid})")
	flag.Parse()

	// Load .env if present, otherwise continue with the existing environment
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	config.SetupLogging()

	workerID := resolveWorkerID(*workerIDFlag)
	slog.Info("Starting newsflow worker",
		"version", version.Full(),
		"worker_id", workerID,
		"once", *once)

	ctx := context.Background()

	// 1. Load configuration (misconfiguration exits 2)
	queueCfg, err := config.LoadQueueConfigFromEnv(*pollInterval, *batchSize)
	if err != nil {
		slog.Error("Invalid worker configuration", "error", err)
		os.Exit(2)
	}
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Invalid database configuration", "error", err)
		os.Exit(2)
	}
	retentionCfg, err := config.LoadRetentionConfigFromEnv()
	if err != nil {
		slog.Error("Invalid retention configuration", "error", err)
		os.Exit(2)
	}
	llmCfg := config.LoadLLMConfigFromEnv()

	// 2. Connect to the database
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Wire the analysis service and worker pool
	service := analysis.NewService(dbClient.DB(), llmCfg)
	jobs := store.NewJobStore(dbClient.DB())
	pool := queue.NewWorkerPool(workerID, jobs, queueCfg, queue.DefaultExecutors(service))

	// --once: a single pass over the due jobs, no resident workers.
	if *once {
		processed, err := pool.RunOnce(ctx)
		if err != nil {
			slog.Error("Single pass failed", "error", err)
			if closeErr := dbClient.Close(); closeErr != nil {
				slog.Error("Error closing database client", "error", closeErr)
			}
			os.Exit(1)
		}
		slog.Info("Single pass complete", "processed", processed)
		return
	}

	// 4. Start the worker pool
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 5. Start the retention loop (resident mode only)
	cleanupSvc := cleanup.NewService(retentionCfg,
		store.NewRawStore(dbClient.DB()), store.NewRunStore(dbClient.DB()))
	cleanupSvc.Start(ctx)

	// 6. Optionally expose the operational HTTP surface
	var httpServer *api.Server
	errCh := make(chan error, 1)
	if addr := os.Getenv("WORKER_HTTP_ADDR"); addr != "" {
		httpServer = api.NewServer(dbClient, pool)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
				slog.Error("HTTP server error", "error", err)
				errCh <- err
			}
		}()
	}

	slog.Info("Worker started successfully",
		"worker_id", workerID,
		"workers", queueCfg.WorkerCount,
		"poll_interval", queueCfg.PollInterval,
		"llm_provider", llmCfg.Provider)

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	cleanupSvc.Stop()

	// 8. Graceful shutdown: wait for in-flight jobs, bounded by the timeout.
	// Abandoned leases are recovered by the visibility sweep either way.
	shutdownCtx, cancel := context.WithTimeout(ctx, queueCfg.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded; in-flight jobs will be lease-swept")
	}

	if httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
		defer httpCancel()
		if err := httpServer.Shutdown(httpCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}

	slog.Info("Shutdown complete")
}
