package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstream/newsflow/pkg/models"
)

// JobStore manages the analysis job queue.
type JobStore struct {
	db *sql.DB

	scheduleOnce sync.Once
	scheduleCol  string
	scheduleErr  error
}

// NewJobStore creates a JobStore. The db parameter should be the *sql.DB
// from database.Client.DB().
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// ResolveScheduleColumn probes the schema for the job scheduling column and
// caches the answer for the life of the store. Deployments that predate the
// rename still carry next_run_at; everything else uses run_after. Callers
// run this at startup so a broken schema fails fast instead of on the first
// claim. The result feeds fmt.Sprintf in the queue statements, which is safe
// because it is constrained to these two identifiers.
func (s *JobStore) ResolveScheduleColumn(ctx context.Context) (string, error) {
	s.scheduleOnce.Do(func() {
		var name string
		err := s.db.QueryRowContext(ctx, `
			SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema()
			  AND table_name = 'analysis_jobs'
			  AND column_name IN ('run_after', 'next_run_at')
			ORDER BY column_name DESC
			LIMIT 1`).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			s.scheduleErr = errors.New("analysis_jobs has no run_after or next_run_at column")
			return
		}
		if err != nil {
			s.scheduleErr = fmt.Errorf("failed to resolve schedule column: %w", err)
			return
		}
		s.scheduleCol = name
	})
	return s.scheduleCol, s.scheduleErr
}

// Publish enqueues an analysis job for an event. Safe to call repeatedly:
// (news_event_id, job_type) is unique and conflicts are ignored. Reports
// whether a new job row was created.
func (s *JobStore) Publish(ctx context.Context, newsEventID int64, traceID uuid.UUID, jobType string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO analysis_jobs (news_event_id, job_type, trace_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (news_event_id, job_type) DO NOTHING
		RETURNING id`,
		newsEventID, jobType, traceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to publish analysis job: %w", err)
	}
	return true, nil
}

// Claim atomically leases up to limit due jobs for workerID. FOR UPDATE
// SKIP LOCKED guarantees concurrent workers never claim the same row; the
// lease is the (locked_at, locked_by) pair set here.
func (s *JobStore) Claim(ctx context.Context, workerID string, limit, maxAttempts int) ([]models.AnalysisJob, error) {
	col, err := s.ResolveScheduleColumn(ctx)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		WITH due AS (
			SELECT id FROM analysis_jobs
			WHERE status = 'pending' AND %[1]s <= NOW() AND attempts < $1
			ORDER BY %[1]s ASC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE analysis_jobs
		SET status = 'running', locked_at = NOW(), locked_by = $3, updated_at = NOW()
		FROM due
		WHERE analysis_jobs.id = due.id
		RETURNING analysis_jobs.id, analysis_jobs.job_uuid, analysis_jobs.news_event_id,
		          analysis_jobs.job_type, analysis_jobs.trace_id, analysis_jobs.status,
		          analysis_jobs.attempts, analysis_jobs.%[1]s, analysis_jobs.locked_at,
		          analysis_jobs.locked_by, analysis_jobs.last_error,
		          analysis_jobs.created_at, analysis_jobs.updated_at`, col)

	rows, err := s.db.QueryContext(ctx, query, maxAttempts, limit, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed jobs: %w", err)
	}
	return jobs, nil
}

// Sweep requeues running jobs whose lease expired, returning how many were
// reset. Jobs abandoned by crashed workers become claimable again once the
// visibility timeout passes.
func (s *JobStore) Sweep(ctx context.Context, visibilityTimeout time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'pending', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE status = 'running' AND locked_at < NOW() - make_interval(secs => $1)`,
		visibilityTimeout.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired leases: %w", err)
	}
	swept, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept jobs: %w", err)
	}
	return swept, nil
}

// RequeueByOwner resets running jobs whose lease is held by workerID or any
// of its pool members (locked_by is "workerID-n" for pooled workers). A
// restarted process calls this before claiming so jobs orphaned by its
// previous incarnation do not wait out the visibility timeout.
func (s *JobStore) RequeueByOwner(ctx context.Context, workerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'pending', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE status = 'running' AND (locked_by = $1 OR locked_by LIKE $1 || '-%')`,
		workerID)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue jobs for %s: %w", workerID, err)
	}
	requeued, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued jobs: %w", err)
	}
	return requeued, nil
}

// MarkDone finishes a job successfully, clearing the lease and any error left
// by earlier attempts. attempts stays put: it counts failed leases, and the
// claim gate attempts < max reads it as "failures so far".
func (s *JobStore) MarkDone(ctx context.Context, jobID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'done',
		    locked_at = NULL, locked_by = NULL, last_error = NULL, updated_at = NOW()
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job done: %w", err)
	}
	return nil
}

// Fail records a retryable attempt failure. The job returns to pending with
// exponential backoff until the attempt budget is exhausted, at which point
// it lands in failed. The backoff reads the pre-increment attempt count, so
// the first retry waits 2s, then 4s, then 8s.
func (s *JobStore) Fail(ctx context.Context, jobID int64, errMsg string, maxAttempts int) error {
	col, err := s.ResolveScheduleColumn(ctx)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE analysis_jobs
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END,
		    %s = NOW() + make_interval(secs => power(2, attempts + 1)),
		    locked_at = NULL, locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1`, col)
	_, err = s.db.ExecContext(ctx, query, jobID, maxAttempts, truncateError(errMsg))
	if err != nil {
		return fmt.Errorf("failed to mark job for retry: %w", err)
	}
	return nil
}

// FailPermanently records a non-retryable failure; the job will not be
// offered again.
func (s *JobStore) FailPermanently(ctx context.Context, jobID int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET attempts = attempts + 1, status = 'failed',
		    locked_at = NULL, locked_by = NULL, last_error = $2, updated_at = NOW()
		WHERE id = $1`, jobID, truncateError(errMsg))
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// GetByID fetches one job.
func (s *JobStore) GetByID(ctx context.Context, jobID int64) (*models.AnalysisJob, error) {
	col, err := s.ResolveScheduleColumn(ctx)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, job_uuid, news_event_id, job_type, trace_id, status, attempts,
		       %s, locked_at, locked_by, last_error, created_at, updated_at
		FROM analysis_jobs
		WHERE id = $1`, col)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis job %d: %w", jobID, ErrNotFound)
	}
	return job, err
}

// CountsByStatus returns queue depth per status for health reporting.
func (s *JobStore) CountsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job counts: %w", err)
	}
	return counts, nil
}

func scanJob(row rowScanner) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	var lockedAt sql.NullTime
	var lockedBy, lastError sql.NullString

	err := row.Scan(&job.ID, &job.JobUUID, &job.NewsEventID, &job.JobType, &job.TraceID,
		&job.Status, &job.Attempts, &job.RunAfter, &lockedAt, &lockedBy, &lastError,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.LockedAt = timePtr(lockedAt)
	job.LockedBy = stringPtr(lockedBy)
	job.LastError = stringPtr(lastError)
	return &job, nil
}
