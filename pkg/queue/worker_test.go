package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/models"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		BatchSize:               1,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		VisibilityTimeout:       300 * time.Second,
		MaxAttempts:             3,
		GracefulShutdownTimeout: 15 * time.Second,
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		retryable bool
	}{
		{"provider timeout", "provider_error: request timeout", true},
		{"uppercase timeout", "provider_error: TIMEOUT waiting for response", true},
		{"malformed json", "json_error: invalid character '<' looking for beginning of value", true},
		{"schema violation", "validation_error: Key: 'AnalysisResult.Sentiment' Error:Field validation for 'Sentiment' failed on the 'oneof' tag", true},
		{"quota exhausted", "provider_error: code=insufficient_quota you exceeded your current quota", false},
		{"auth 401", "provider_error: status=401 unauthorized", false},
		{"auth 403", "provider_error: status=403 forbidden", false},
		{"quota wins over retryable token", "validation timeout after insufficient_quota", false},
		{"unknown message", "something unexpected went wrong", false},
		{"unknown job type", "unknown_job_type: mystery_job", false},
		{"missing event", "news_event_not_found: id=42", false},
		{"empty message", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryableError(tt.message))
		})
	}
}

func TestWorkerPollInterval(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("test-worker", nil, nil, cfg, nil)

	// Poll interval should be within [base - jitter, base + jitter]
	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond, "poll interval below minimum")
		assert.LessOrEqual(t, d, 1500*time.Millisecond, "poll interval above maximum")
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := testQueueConfig()
	cfg.PollIntervalJitter = 0
	w := NewWorker("test-worker", nil, nil, cfg, nil)

	for i := 0; i < 10; i++ {
		d := w.pollInterval()
		assert.Equal(t, 1*time.Second, d, "poll interval should equal base when jitter is 0")
	}
}

func TestWorkerHealth(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("worker-1", nil, nil, cfg, nil)

	h := w.Health()
	assert.Equal(t, "worker-1", h.ID)
	assert.Equal(t, WorkerStatusIdle, h.Status)
	assert.Zero(t, h.CurrentJobID)
	assert.Equal(t, 0, h.JobsProcessed)

	// Simulate working state
	w.setStatus(WorkerStatusWorking, 42)
	h = w.Health()
	assert.Equal(t, WorkerStatusWorking, h.Status)
	assert.Equal(t, int64(42), h.CurrentJobID)

	// Back to idle
	w.setStatus(WorkerStatusIdle, 0)
	h = w.Health()
	assert.Equal(t, WorkerStatusIdle, h.Status)
	assert.Zero(t, h.CurrentJobID)
}

func TestWorkerExecuteUnknownJobType(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("worker-1", nil, map[string]Executor{}, cfg, nil)

	result := w.execute(context.Background(), &models.AnalysisJob{ID: 1, JobType: "mystery_job"})
	assert.False(t, result.Succeeded)
	assert.Equal(t, "unknown_job_type: mystery_job", result.ErrorMessage)
	assert.False(t, IsRetryableError(result.ErrorMessage), "unknown job types must not be retried")
}

func TestSweepStateAggregates(t *testing.T) {
	var s sweepState

	lastSweepAt, recovered := s.snapshot()
	assert.True(t, lastSweepAt.IsZero())
	assert.Zero(t, recovered)

	s.record(2)
	s.record(0)
	s.record(3)

	lastSweepAt, recovered = s.snapshot()
	assert.False(t, lastSweepAt.IsZero())
	assert.Equal(t, int64(5), recovered)
}
