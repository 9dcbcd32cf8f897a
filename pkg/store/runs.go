package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstream/newsflow/pkg/models"
)

// RunStore records ingestion run bookkeeping.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore. The db parameter should be the *sql.DB
// from database.Client.DB().
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// RunCounts aggregates the counters finalized onto a run row.
type RunCounts struct {
	Fetched  int
	Inserted int
	Deduped  int
	Meta     map[string]any
}

// Begin inserts a running row for this invocation and returns it.
func (s *RunStore) Begin(ctx context.Context, jobName string, traceID uuid.UUID, tickers []string, windowFrom, windowTo time.Time) (*models.IngestionRun, error) {
	tickersJSON, err := stringsJSON(tickers)
	if err != nil {
		return nil, err
	}

	run := &models.IngestionRun{
		JobName:    jobName,
		TraceID:    traceID,
		Status:     models.RunStatusRunning,
		Tickers:    tickers,
		WindowFrom: windowFrom,
		WindowTo:   windowTo,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO ingestion_runs (job_name, trace_id, tickers, window_from, window_to)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, run_uuid, started_at`,
		jobName, traceID, tickersJSON, windowFrom, windowTo,
	).Scan(&run.ID, &run.RunUUID, &run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ingestion run: %w", err)
	}
	return run, nil
}

// Complete finalizes a run as succeeded with its counters.
func (s *RunStore) Complete(ctx context.Context, runID int64, counts RunCounts) error {
	metaJSON, err := mapJSON(counts.Meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET status = 'succeeded', fetched_count = $2, inserted_count = $3,
		    deduped_count = $4, meta = $5, finished_at = NOW()
		WHERE id = $1`,
		runID, counts.Fetched, counts.Inserted, counts.Deduped, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to complete ingestion run: %w", err)
	}
	return nil
}

// Fail finalizes a run as failed, keeping whatever counters were reached
// before the error.
func (s *RunStore) Fail(ctx context.Context, runID int64, errMsg string, counts RunCounts) error {
	metaJSON, err := mapJSON(counts.Meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET status = 'failed', error_message = $2, fetched_count = $3,
		    inserted_count = $4, deduped_count = $5, meta = $6, finished_at = NOW()
		WHERE id = $1`,
		runID, truncateError(errMsg), counts.Fetched, counts.Inserted, counts.Deduped, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to fail ingestion run: %w", err)
	}
	return nil
}

// DeleteFinishedBefore purges finished runs older than cutoff. Runs still in
// flight have no finished_at and are never touched.
func (s *RunStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ingestion_runs
		WHERE finished_at IS NOT NULL AND finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old ingestion runs: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted ingestion runs: %w", err)
	}
	return count, nil
}

// GetByID fetches one run.
func (s *RunStore) GetByID(ctx context.Context, runID int64) (*models.IngestionRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_uuid, job_name, trace_id, status, tickers, window_from, window_to,
		       fetched_count, inserted_count, deduped_count, error_message, meta,
		       started_at, finished_at
		FROM ingestion_runs
		WHERE id = $1`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingestion run %d: %w", runID, ErrNotFound)
	}
	return run, err
}

// Latest returns the most recently started run for a job name.
func (s *RunStore) Latest(ctx context.Context, jobName string) (*models.IngestionRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_uuid, job_name, trace_id, status, tickers, window_from, window_to,
		       fetched_count, inserted_count, deduped_count, error_message, meta,
		       started_at, finished_at
		FROM ingestion_runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT 1`, jobName)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingestion run for %s: %w", jobName, ErrNotFound)
	}
	return run, err
}

func scanRun(row rowScanner) (*models.IngestionRun, error) {
	var run models.IngestionRun
	var errorMessage sql.NullString
	var finishedAt sql.NullTime
	var tickers, meta []byte

	err := row.Scan(&run.ID, &run.RunUUID, &run.JobName, &run.TraceID, &run.Status,
		&tickers, &run.WindowFrom, &run.WindowTo, &run.FetchedCount, &run.InsertedCount,
		&run.DedupedCount, &errorMessage, &meta, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.ErrorMessage = stringPtr(errorMessage)
	run.FinishedAt = timePtr(finishedAt)
	if err := json.Unmarshal(tickers, &run.Tickers); err != nil {
		return nil, fmt.Errorf("failed to decode run tickers: %w", err)
	}
	if err := json.Unmarshal(meta, &run.Meta); err != nil {
		return nil, fmt.Errorf("failed to decode run meta: %w", err)
	}
	return &run, nil
}
