package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus is the lifecycle state of an LLM analysis row.
type AnalysisStatus string

// Analysis status constants.
const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusSucceeded AnalysisStatus = "succeeded"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// LLMAnalysis is the audited verdict for one event, keyed by
// (news_event_id, provider, model). Re-attempts reset the row to pending and
// overwrite the non-audit fields; Request and RawOutput keep the full
// request/response trail.
type LLMAnalysis struct {
	ID           int64          `json:"id"`
	AnalysisUUID uuid.UUID      `json:"analysis_uuid"`
	NewsEventID  int64          `json:"news_event_id"`
	TraceID      uuid.UUID      `json:"trace_id"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	Status       AnalysisStatus `json:"status"`
	Sentiment    *string        `json:"sentiment,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Summary      *string        `json:"summary,omitempty"`
	Entities     []string       `json:"entities,omitempty"`
	Request      map[string]any `json:"request,omitempty"`
	RawOutput    any            `json:"raw_output,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
