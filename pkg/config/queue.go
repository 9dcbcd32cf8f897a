package config

import "time"

// QueueConfig controls how analysis jobs are polled, claimed, and retried.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines in this process.
	WorkerCount int

	// BatchSize is the maximum number of jobs claimed per polling tick.
	BatchSize int

	// PollInterval is the base sleep between empty polling ticks.
	PollInterval time.Duration

	// PollIntervalJitter spreads concurrent workers' ticks.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// VisibilityTimeout is how long a claimed job may stay running before
	// the sweep returns it to pending. Must exceed the worst-case job
	// duration.
	VisibilityTimeout time.Duration

	// MaxAttempts bounds leases per job; exceeding it is terminal failure.
	MaxAttempts int

	// GracefulShutdownTimeout is the max wait for in-flight jobs on stop.
	GracefulShutdownTimeout time.Duration
}

// DefaultQueueConfig returns the built-in worker defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             1,
		BatchSize:               1,
		PollInterval:            10 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		VisibilityTimeout:       300 * time.Second,
		MaxAttempts:             3,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// LoadQueueConfigFromEnv applies the WORKER_* environment contract on top of
// the defaults. pollSeconds and batchSize carry the CLI flag values;
// WORKER_POLL_SECONDS overrides the flag when set.
func LoadQueueConfigFromEnv(pollSeconds, batchSize int) (*QueueConfig, error) {
	cfg := DefaultQueueConfig()
	cfg.BatchSize = batchSize

	poll, err := IntFromEnv("WORKER_POLL_SECONDS", pollSeconds)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = time.Duration(poll) * time.Second

	visibility, err := IntFromEnv("WORKER_VISIBILITY_TIMEOUT_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.VisibilityTimeout = time.Duration(visibility) * time.Second

	if cfg.MaxAttempts, err = IntFromEnv("WORKER_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = IntFromEnv("WORKER_COUNT", cfg.WorkerCount); err != nil {
		return nil, err
	}
	return cfg, nil
}
