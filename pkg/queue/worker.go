package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/models"
	"github.com/sentinelstream/newsflow/pkg/store"
)

// Worker is a single queue worker that polls for and processes analysis jobs.
type Worker struct {
	id        string
	jobs      *store.JobStore
	executors map[string]Executor
	config    *config.QueueConfig
	sweeps    *sweepState
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  int64
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker. executors maps job_type to the
// Executor that handles it. sweeps may be shared across a pool so recovery
// counters aggregate; nil gets a private one.
func NewWorker(id string, jobs *store.JobStore, executors map[string]Executor, cfg *config.QueueConfig, sweeps *sweepState) *Worker {
	if sweeps == nil {
		sweeps = &sweepState{}
	}
	return &Worker{
		id:           id,
		jobs:         jobs,
		executors:    executors,
		config:       cfg,
		sweeps:       sweeps,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight job to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.signalStop()
	w.wg.Wait()
}

// signalStop asks the run loop to exit without waiting. The pool uses it to
// stop every worker before draining any of them.
func (w *Worker) signalStop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// wait blocks until the run loop has exited.
func (w *Worker) wait() {
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop. A tick that processed at least one job polls
// again immediately; an empty tick sleeps out the jittered poll interval.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if _, err := w.RunOnce(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing jobs", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// RunOnce performs a single tick: requeue expired leases, claim a batch, and
// drive every claimed job to a terminal write. It returns the number of jobs
// processed, or ErrNoJobsAvailable when the claim came back empty. The worker
// command's --once mode calls this directly.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	w.sweepExpired(ctx)

	jobs, err := w.jobs.Claim(ctx, w.id, w.config.BatchSize, w.config.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("claiming jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, ErrNoJobsAvailable
	}

	// The batch is processed to completion even when stop has been
	// signalled: this worker holds the leases, and finishing now is cheaper
	// than making another worker wait out the visibility timeout.
	for i := range jobs {
		w.processJob(ctx, &jobs[i])
	}
	return len(jobs), nil
}

// sweepExpired returns expired leases to pending before claiming. A sweep
// failure is logged and skipped; a worker that cannot sweep can usually
// still claim.
func (w *Worker) sweepExpired(ctx context.Context) {
	swept, err := w.jobs.Sweep(ctx, w.config.VisibilityTimeout)
	if err != nil {
		slog.Error("Failed to sweep expired job leases", "worker_id", w.id, "error", err)
		return
	}
	if swept > 0 {
		slog.Info("Recovered jobs with expired leases", "worker_id", w.id, "count", swept)
	}
	w.sweeps.record(swept)
}

// processJob executes one claimed job and writes its terminal state. The
// terminal writes use a background context so a cancelled run context cannot
// strand a finished job in running.
func (w *Worker) processJob(ctx context.Context, job *models.AnalysisJob) {
	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, 0)

	log := slog.With("worker_id", w.id, "job_id", job.ID, "news_event_id", job.NewsEventID)

	start := time.Now()
	result := w.execute(ctx, job)
	durationMS := time.Since(start).Milliseconds()

	if result.Succeeded {
		if err := w.jobs.MarkDone(context.Background(), job.ID); err != nil {
			log.Error("Failed to finalize job", "error", err)
			return
		}
		log.Info("Job completed",
			"attempts", job.Attempts,
			"provider", result.Provider,
			"model", result.Model,
			"duration_ms", durationMS)
		w.countProcessed()
		return
	}

	retryable := IsRetryableError(result.ErrorMessage)
	var err error
	if retryable {
		err = w.jobs.Fail(context.Background(), job.ID, result.ErrorMessage, w.config.MaxAttempts)
	} else {
		err = w.jobs.FailPermanently(context.Background(), job.ID, result.ErrorMessage)
	}
	if err != nil {
		log.Error("Failed to finalize job", "error", err)
		return
	}
	log.Warn("Job failed",
		"attempts", job.Attempts+1,
		"retryable", retryable,
		"error", result.ErrorMessage,
		"duration_ms", durationMS)
	w.countProcessed()
}

// execute dispatches the job to its executor. A job type with no registered
// executor is a permanent failure: the message carries no retryable token,
// so classification routes it to FailPermanently.
func (w *Worker) execute(ctx context.Context, job *models.AnalysisJob) ExecutionResult {
	executor, ok := w.executors[job.JobType]
	if !ok {
		return ExecutionResult{ErrorMessage: fmt.Sprintf("unknown_job_type: %s", job.JobType)}
	}
	return executor.Execute(ctx, job)
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int63n(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}

func (w *Worker) countProcessed() {
	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
}
