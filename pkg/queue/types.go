// Package queue drains the analysis job table: leased claims with
// skip-locked semantics, a visibility-timeout sweep, and bounded retries
// with exponential backoff. Coordination between workers is entirely via
// the database.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/sentinelstream/newsflow/pkg/models"
)

// ErrNoJobsAvailable indicates an empty claim cycle.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Executor processes one claimed job. The job row is already leased when
// Execute runs; the worker owns marking the terminal state afterwards.
type Executor interface {
	Execute(ctx context.Context, job *models.AnalysisJob) ExecutionResult
}

// ExecutionResult is the outcome of one job execution. A failed result is
// classified by the retry predicate before it is recorded.
type ExecutionResult struct {
	Succeeded    bool
	ErrorMessage string

	// Provider and Model identify the LLM that served the attempt, when the
	// job type has one. They feed the worker's completion logs.
	Provider string
	Model    string
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  int64        `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	DBReachable   bool           `json:"db_reachable"`
	DBError       string         `json:"db_error,omitempty"`
	WorkerID      string         `json:"worker_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    map[string]int `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
	LastSweepAt   *time.Time     `json:"last_sweep_at,omitempty"`
	JobsRecovered int64          `json:"jobs_recovered"`
}
