package queue

import (
	"context"
	"fmt"

	"github.com/sentinelstream/newsflow/pkg/analysis"
	"github.com/sentinelstream/newsflow/pkg/models"
)

// AnalysisExecutor handles llm_analysis jobs by delegating to the analysis
// service. The service owns all llm_analyses bookkeeping; the executor only
// translates its outcome into the queue's retry decision.
type AnalysisExecutor struct {
	service *analysis.Service
}

// NewAnalysisExecutor creates the executor for llm_analysis jobs.
func NewAnalysisExecutor(service *analysis.Service) *AnalysisExecutor {
	return &AnalysisExecutor{service: service}
}

// DefaultExecutors returns the job_type dispatch table for this binary.
func DefaultExecutors(service *analysis.Service) map[string]Executor {
	return map[string]Executor{
		models.JobTypeLLMAnalysis: NewAnalysisExecutor(service),
	}
}

// Execute implements Executor. A job referencing a vanished event fails with
// a message that carries no retryable token, so it will not be offered again.
func (e *AnalysisExecutor) Execute(ctx context.Context, job *models.AnalysisJob) ExecutionResult {
	summary, err := e.service.Analyze(ctx, job.NewsEventID)
	if err != nil {
		return ExecutionResult{ErrorMessage: err.Error()}
	}

	result := ExecutionResult{Provider: summary.Provider, Model: summary.Model}
	switch summary.Status {
	case analysis.StatusSucceeded:
		result.Succeeded = true
	case analysis.StatusNotFound:
		result.ErrorMessage = fmt.Sprintf("news_event_not_found: id=%d", job.NewsEventID)
	default:
		result.ErrorMessage = summary.ErrorMessage
	}
	return result
}
