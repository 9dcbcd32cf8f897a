// Newsflow ingestion job — fetches company news from the upstream API,
// persists and normalizes it, and enqueues analysis jobs. Designed to run
// as a cron job or one-shot container; an advisory lock guarantees only
// one run executes at a time.
//
// Exit codes: 0 success (including a skipped run when another holds the
// lock), 1 run failure, 2 misconfiguration.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/pkg/ingest"
	"github.com/sentinelstream/newsflow/pkg/notify"
	"github.com/sentinelstream/newsflow/pkg/version"
)

// splitTickers parses the comma-separated --tickers flag value.
func splitTickers(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	// Parse command-line flags
	tickersFlag := flag.String("tickers", "",
		"Comma-separated ticker symbols to fetch (default: every active ticker)")
	minutesBack := flag.Int("minutes-back", 60,
		"Size of the fetch window ending now, in minutes")
	processLimit := flag.Int("process-limit", 200,
		"Maximum raw items to normalize in this run")
	replayOnly := flag.Bool("replay-only", false,
		"Skip the upstream fetch and only reprocess stored raw items")
	flag.Parse()

	// Load .env if present, otherwise continue with the existing environment
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	config.SetupLogging()

	slog.Info("Starting newsflow ingestion",
		"version", version.Full(),
		"minutes_back", *minutesBack,
		"process_limit", *processLimit,
		"replay_only", *replayOnly)

	tickers := splitTickers(*tickersFlag)
	if *replayOnly && len(tickers) > 0 {
		slog.Warn("Tickers are ignored in replay-only mode", "tickers", tickers)
		tickers = nil
	}

	// Cancel the run on SIGTERM/SIGINT so it fails fast and records the
	// interruption on the run row.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Load configuration (misconfiguration exits 2)
	upstreamCfg, err := config.LoadUpstreamConfigFromEnv(*replayOnly)
	if err != nil {
		slog.Error("Invalid upstream configuration", "error", err)
		os.Exit(2)
	}
	intakeCfg, err := config.LoadIntakeConfigFromEnv()
	if err != nil {
		slog.Error("Invalid intake configuration", "error", err)
		os.Exit(2)
	}
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Invalid database configuration", "error", err)
		os.Exit(2)
	}

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

	// 3. Build the runner
	var fetcher ingest.NewsFetcher
	if !*replayOnly {
		fetcher = ingest.NewFinnhubClient(upstreamCfg)
	}
	notifier := notify.NewService()

	runner, err := ingest.NewRunner(dbClient, fetcher, intakeCfg, ingest.DefaultJobName, notifier)
	if err != nil {
		slog.Error("Failed to build ingestion runner", "error", err)
		os.Exit(1)
	}

	// 4. Execute one run
	run, err := runner.Run(ctx, ingest.RunOptions{
		Tickers:      tickers,
		MinutesBack:  *minutesBack,
		ProcessLimit: *processLimit,
		ReplayOnly:   *replayOnly,
	})
	if errors.Is(err, ingest.ErrLockNotAcquired) {
		slog.Info("Skipped: another ingestion run is in progress")
		return
	}
	if err != nil {
		if run != nil {
			slog.Error("Ingestion run failed", "run_id", run.ID, "error", err)
		} else {
			slog.Error("Ingestion run failed", "error", err)
		}
		if closeErr := dbClient.Close(); closeErr != nil {
			slog.Error("Error closing database client", "error", closeErr)
		}
		os.Exit(1)
	}

	slog.Info("Ingestion run succeeded",
		"run_id", run.ID,
		"fetched", run.FetchedCount,
		"inserted", run.InsertedCount,
		"deduped", run.DedupedCount)
}
