package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelstream/newsflow/pkg/models"
)

// AnalysisStore persists LLM verdicts and their audit trail.
type AnalysisStore struct {
	db *sql.DB
}

// NewAnalysisStore creates an AnalysisStore. The db parameter should be the
// *sql.DB from database.Client.DB().
func NewAnalysisStore(db *sql.DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// UpsertPending creates or resets the (news_event_id, provider, model) row
// before an attempt. A re-run adopts the new trace and clears the previous
// error while keeping the audit columns until they are overwritten.
func (s *AnalysisStore) UpsertPending(ctx context.Context, newsEventID int64, traceID uuid.UUID, provider, model string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO llm_analyses (news_event_id, trace_id, provider, model, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (news_event_id, provider, model) DO UPDATE SET
			status = 'pending',
			trace_id = EXCLUDED.trace_id,
			error_message = NULL,
			updated_at = NOW()
		RETURNING id`,
		newsEventID, traceID, provider, model).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert pending analysis: %w", err)
	}
	return id, nil
}

// SucceededFields carries everything persisted on a successful analysis.
type SucceededFields struct {
	Sentiment  string
	Confidence float64
	Summary    string
	Tickers    []string
	Request    map[string]any
	RawOutput  map[string]any
}

// MarkSucceeded stores the validated verdict plus the request/response audit
// fields, and replaces the per-ticker projection rows in the same
// transaction so readers never observe a half-updated set.
func (s *AnalysisStore) MarkSucceeded(ctx context.Context, analysisID int64, fields SucceededFields) error {
	entitiesJSON, err := stringsJSON(fields.Tickers)
	if err != nil {
		return err
	}
	requestJSON, err := mapJSON(fields.Request)
	if err != nil {
		return err
	}
	rawJSON, err := mapJSON(fields.RawOutput)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE llm_analyses
		SET status = 'succeeded', sentiment = $2, confidence = $3, summary = $4,
		    entities = $5, request = $6, raw_output = $7, error_message = NULL,
		    updated_at = NOW()
		WHERE id = $1`,
		analysisID, fields.Sentiment, fields.Confidence, fields.Summary,
		entitiesJSON, requestJSON, rawJSON)
	if err != nil {
		return fmt.Errorf("failed to store analysis verdict: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM analysis_tickers WHERE analysis_id = $1`, analysisID); err != nil {
		return fmt.Errorf("failed to clear analysis tickers: %w", err)
	}
	if len(fields.Tickers) > 0 {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO analysis_tickers (analysis_id, ticker) VALUES `)
		args := make([]any, 0, len(fields.Tickers)+1)
		args = append(args, analysisID)
		for i, ticker := range fields.Tickers {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "($1,$%d)", i+2)
			args = append(args, ticker)
		}
		sb.WriteString(` ON CONFLICT (analysis_id, ticker) DO NOTHING`)
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to insert analysis tickers: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis result: %w", err)
	}
	return nil
}

// MarkFailed stores a failure together with its attempt audit trail.
// rawOutput is the per-attempt record list from the LLM client, or a
// placeholder object when no attempt ever ran.
func (s *AnalysisStore) MarkFailed(ctx context.Context, analysisID int64, errMsg string, rawOutput any) error {
	rawJSON, err := jsonValue(rawOutput)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE llm_analyses
		SET status = 'failed', error_message = $2, raw_output = $3,
		    updated_at = NOW()
		WHERE id = $1`,
		analysisID, errMsg, rawJSON)
	if err != nil {
		return fmt.Errorf("failed to store analysis failure: %w", err)
	}
	return nil
}

// GetByEvent fetches the analysis row for one (event, provider, model) triple.
func (s *AnalysisStore) GetByEvent(ctx context.Context, newsEventID int64, provider, model string) (*models.LLMAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, analysis_uuid, news_event_id, trace_id, provider, model, status,
		       sentiment, confidence, summary, entities, request, raw_output,
		       error_message, created_at, updated_at
		FROM llm_analyses
		WHERE news_event_id = $1 AND provider = $2 AND model = $3`,
		newsEventID, provider, model)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis for event %d (%s/%s): %w", newsEventID, provider, model, ErrNotFound)
	}
	return analysis, err
}

// ListTickers returns the per-ticker projection rows for an analysis,
// ordered by ticker.
func (s *AnalysisStore) ListTickers(ctx context.Context, analysisID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker FROM analysis_tickers WHERE analysis_id = $1 ORDER BY ticker`,
		analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan analysis ticker: %w", err)
		}
		tickers = append(tickers, ticker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analysis tickers: %w", err)
	}
	return tickers, nil
}

func scanAnalysis(row rowScanner) (*models.LLMAnalysis, error) {
	var a models.LLMAnalysis
	var sentiment, summary, errorMessage sql.NullString
	var confidence sql.NullFloat64
	var entities, request, rawOutput []byte

	err := row.Scan(&a.ID, &a.AnalysisUUID, &a.NewsEventID, &a.TraceID, &a.Provider,
		&a.Model, &a.Status, &sentiment, &confidence, &summary, &entities, &request,
		&rawOutput, &errorMessage, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Sentiment = stringPtr(sentiment)
	a.Confidence = float64Ptr(confidence)
	a.Summary = stringPtr(summary)
	a.ErrorMessage = stringPtr(errorMessage)
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &a.Entities); err != nil {
			return nil, fmt.Errorf("failed to decode analysis entities: %w", err)
		}
	}
	if len(request) > 0 {
		if err := json.Unmarshal(request, &a.Request); err != nil {
			return nil, fmt.Errorf("failed to decode analysis request: %w", err)
		}
	}
	if len(rawOutput) > 0 {
		if err := json.Unmarshal(rawOutput, &a.RawOutput); err != nil {
			return nil, fmt.Errorf("failed to decode analysis raw output: %w", err)
		}
	}
	return &a, nil
}
