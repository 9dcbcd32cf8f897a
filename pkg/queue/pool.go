package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/store"
)

// WorkerPool manages a pool of queue workers sharing one process identity.
// Individual workers lease jobs as "<worker_id>-worker-<n>", which keeps the
// startup requeue able to find every lease this identity ever held.
type WorkerPool struct {
	workerID  string
	jobs      *store.JobStore
	config    *config.QueueConfig
	executors map[string]Executor
	workers   []*Worker
	sweeps    sweepState
	started   bool
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(workerID string, jobs *store.JobStore, cfg *config.QueueConfig, executors map[string]Executor) *WorkerPool {
	return &WorkerPool{
		workerID:  workerID,
		jobs:      jobs,
		config:    cfg,
		executors: executors,
		workers:   make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the worker goroutines. It is safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "worker_id", p.workerID)
		return nil
	}

	// Probe the schema before any worker claims so a broken schema fails
	// startup instead of every poll.
	if _, err := p.jobs.ResolveScheduleColumn(ctx); err != nil {
		return fmt.Errorf("starting worker pool: %w", err)
	}
	p.started = true

	p.requeuePreviousRun(ctx)

	slog.Info("Starting worker pool",
		"worker_id", p.workerID,
		"worker_count", p.config.WorkerCount,
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.workerID, i)
		worker := NewWorker(workerID, p.jobs, p.executors, p.config, &p.sweeps)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish. Workers
// complete their in-flight jobs before exiting; every worker is signalled
// before any is drained so none keeps claiming while the others wind down.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully", "worker_id", p.workerID)
	for _, worker := range p.workers {
		worker.signalStop()
	}
	for _, worker := range p.workers {
		worker.wait()
	}
	slog.Info("Worker pool stopped gracefully", "worker_id", p.workerID)
}

// RunOnce performs one tick on a single worker instead of starting the pool:
// requeue leases from a previous run, sweep, claim one batch, and process it.
// An empty queue is not an error. The worker command's --once flag uses this
// for cron-style driving.
func (p *WorkerPool) RunOnce(ctx context.Context) (int, error) {
	if _, err := p.jobs.ResolveScheduleColumn(ctx); err != nil {
		return 0, err
	}
	p.requeuePreviousRun(ctx)

	worker := NewWorker(p.workerID, p.jobs, p.executors, p.config, &p.sweeps)
	processed, err := worker.RunOnce(ctx)
	if errors.Is(err, ErrNoJobsAvailable) {
		return 0, nil
	}
	return processed, err
}

// requeuePreviousRun is the one-time startup requeue: running jobs still
// leased by this worker identity belong to a previous incarnation of the
// process and become claimable immediately instead of waiting out the
// visibility timeout. Failure is logged, not fatal; the sweep recovers the
// same leases later.
func (p *WorkerPool) requeuePreviousRun(ctx context.Context) {
	requeued, err := p.jobs.RequeueByOwner(ctx, p.workerID)
	if err != nil {
		slog.Error("Failed to requeue jobs from previous run", "worker_id", p.workerID, "error", err)
		return
	}
	if requeued > 0 {
		slog.Info("Requeued jobs from previous run", "worker_id", p.workerID, "count", requeued)
	}
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	queueDepth, errQ := p.jobs.CountsByStatus(ctx)
	if errQ != nil {
		slog.Error("Failed to query queue depth for health check",
			"worker_id", p.workerID,
			"error", errQ)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	dbHealthy := errQ == nil
	var dbError string
	if errQ != nil {
		dbError = fmt.Sprintf("queue depth query failed: %v", errQ)
	}

	lastSweepAt, jobsRecovered := p.sweeps.snapshot()
	var lastSweep *time.Time
	if !lastSweepAt.IsZero() {
		lastSweep = &lastSweepAt
	}

	return &PoolHealth{
		IsHealthy:     dbHealthy && len(p.workers) > 0,
		DBReachable:   dbHealthy,
		DBError:       dbError,
		WorkerID:      p.workerID,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		QueueDepth:    queueDepth,
		WorkerStats:   workerStats,
		LastSweepAt:   lastSweep,
		JobsRecovered: jobsRecovered,
	}
}
