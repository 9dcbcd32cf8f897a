package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IngestionRun is the bookkeeping record for one orchestrator invocation.
// Meta carries free-form counters (fetch errors, drop counts, enqueue counts).
type IngestionRun struct {
	ID            int64          `json:"id"`
	RunUUID       uuid.UUID      `json:"run_uuid"`
	JobName       string         `json:"job_name"`
	TraceID       uuid.UUID      `json:"trace_id"`
	Status        RunStatus      `json:"status"`
	Tickers       []string       `json:"tickers"`
	WindowFrom    time.Time      `json:"window_from"`
	WindowTo      time.Time      `json:"window_to"`
	FetchedCount  int            `json:"fetched_count"`
	InsertedCount int            `json:"inserted_count"`
	DedupedCount  int            `json:"deduped_count"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}
