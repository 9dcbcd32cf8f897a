package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

// Job status constants.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// JobTypeLLMAnalysis is the job type dispatched to the LLM analysis executor.
const JobTypeLLMAnalysis = "llm_analysis"

// AnalysisJob is a unit of queued work, keyed by (news_event_id, job_type).
// While status is running, (locked_at, locked_by) form the lease held by
// exactly one worker.
type AnalysisJob struct {
	ID          int64      `json:"id"`
	JobUUID     uuid.UUID  `json:"job_uuid"`
	NewsEventID int64      `json:"news_event_id"`
	JobType     string     `json:"job_type"`
	TraceID     uuid.UUID  `json:"trace_id"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	RunAfter    time.Time  `json:"run_after"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	LockedBy    *string    `json:"locked_by,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
