package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstream/newsflow/pkg/canon"
	"github.com/sentinelstream/newsflow/pkg/models"
)

// insertBatchSize caps rows per multi-VALUES statement to stay well under
// PostgreSQL's bind parameter limit.
const insertBatchSize = 500

// RawStore persists raw upstream payloads keyed by (source, dedup_key).
type RawStore struct {
	db *sql.DB
}

// NewRawStore creates a RawStore. The db parameter should be the *sql.DB
// from database.Client.DB().
func NewRawStore(db *sql.DB) *RawStore {
	return &RawStore{db: db}
}

type rawCandidate struct {
	dedupKey    string
	url         *string
	title       *string
	publishedAt *time.Time
	payload     map[string]any
}

// InsertBatch upserts fetched payloads. In-batch duplicates are collapsed by
// dedup key before the statement runs (last occurrence wins, first-seen
// position), since a single INSERT may not touch the same row twice. Returns
// how many rows were newly inserted vs refreshed.
func (s *RawStore) InsertBatch(ctx context.Context, source string, traceID uuid.UUID, fetchedAt time.Time, items []map[string]any) (inserted, updated int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}
	candidates := collapseByDedupKey(source, items)
	for start := 0; start < len(candidates); start += insertBatchSize {
		end := min(start+insertBatchSize, len(candidates))
		ins, upd, err := s.insertChunk(ctx, source, traceID, fetchedAt, candidates[start:end])
		if err != nil {
			return inserted, updated, err
		}
		inserted += ins
		updated += upd
	}
	return inserted, updated, nil
}

func (s *RawStore) insertChunk(ctx context.Context, source string, traceID uuid.UUID, fetchedAt time.Time, chunk []rawCandidate) (int, int, error) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO raw_news_items
		(source, trace_id, fetched_at, published_at, url, title, dedup_key, raw_payload)
	VALUES `)

	args := make([]any, 0, len(chunk)*8)
	for i, c := range chunk {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		payloadJSON, err := mapJSON(c.payload)
		if err != nil {
			return 0, 0, err
		}
		args = append(args, source, traceID, fetchedAt, c.publishedAt, c.url, c.title, c.dedupKey, payloadJSON)
	}

	sb.WriteString(`
	ON CONFLICT (source, dedup_key) DO UPDATE SET
		fetched_at = EXCLUDED.fetched_at,
		trace_id = EXCLUDED.trace_id,
		raw_payload = EXCLUDED.raw_payload,
		updated_at = NOW()
	RETURNING (xmax = 0) AS inserted`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to insert raw items: %w", err)
	}
	defer rows.Close()

	var inserted, updated int
	for rows.Next() {
		var isInsert bool
		if err := rows.Scan(&isInsert); err != nil {
			return inserted, updated, fmt.Errorf("failed to scan insert flag: %w", err)
		}
		if isInsert {
			inserted++
		} else {
			updated++
		}
	}
	if err := rows.Err(); err != nil {
		return inserted, updated, fmt.Errorf("failed to read insert results: %w", err)
	}
	return inserted, updated, nil
}

// SelectBatch returns raw rows still eligible for normalization: status
// fetched or failed with attempts below the retry budget, newest first.
func (s *RawStore) SelectBatch(ctx context.Context, source string, limit int) ([]models.RawItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT raw_id, source, trace_id, fetched_at, published_at, url, title,
		       dedup_key, raw_payload, status, attempts, last_error, created_at, updated_at
		FROM raw_news_items
		WHERE source = $1 AND status IN ('fetched', 'failed') AND attempts < $2
		ORDER BY fetched_at DESC
		LIMIT $3`,
		source, models.MaxRawAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select raw items: %w", err)
	}
	defer rows.Close()

	var items []models.RawItem
	for rows.Next() {
		item, err := scanRawItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read raw items: %w", err)
	}
	return items, nil
}

// MarkNormalized transitions a raw row after its event has been upserted and
// its job published.
func (s *RawStore) MarkNormalized(ctx context.Context, rawID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_news_items
		SET status = 'normalized', attempts = attempts + 1, last_error = NULL, updated_at = NOW()
		WHERE raw_id = $1`, rawID)
	if err != nil {
		return fmt.Errorf("failed to mark raw item normalized: %w", err)
	}
	return nil
}

// MarkFailed records a normalization failure. The row stays eligible for
// later batches until its attempt budget runs out.
func (s *RawStore) MarkFailed(ctx context.Context, rawID uuid.UUID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_news_items
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE raw_id = $1`, rawID, truncateError(errMsg))
	if err != nil {
		return fmt.Errorf("failed to mark raw item failed: %w", err)
	}
	return nil
}

// DeleteNormalizedBefore purges normalized staging rows last touched before
// cutoff. Fetched and failed rows are kept regardless of age so their retry
// budget and error trail survive.
func (s *RawStore) DeleteNormalizedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM raw_news_items
		WHERE status = 'normalized' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete normalized raw items: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted raw items: %w", err)
	}
	return count, nil
}

// GetByID fetches one raw row.
func (s *RawStore) GetByID(ctx context.Context, rawID uuid.UUID) (*models.RawItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT raw_id, source, trace_id, fetched_at, published_at, url, title,
		       dedup_key, raw_payload, status, attempts, last_error, created_at, updated_at
		FROM raw_news_items
		WHERE raw_id = $1`, rawID)
	item, err := scanRawItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raw item %s: %w", rawID, ErrNotFound)
	}
	return item, err
}

func scanRawItem(row rowScanner) (*models.RawItem, error) {
	var item models.RawItem
	var publishedAt sql.NullTime
	var url, title, lastError sql.NullString
	var payload []byte

	err := row.Scan(&item.RawID, &item.Source, &item.TraceID, &item.FetchedAt, &publishedAt,
		&url, &title, &item.DedupKey, &payload, &item.Status, &item.Attempts, &lastError,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.PublishedAt = timePtr(publishedAt)
	item.URL = stringPtr(url)
	item.Title = stringPtr(title)
	item.LastError = stringPtr(lastError)
	if err := json.Unmarshal(payload, &item.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode raw payload: %w", err)
	}
	return &item, nil
}

// collapseByDedupKey keeps one candidate per dedup key: the last occurrence
// in fetch order wins, placed at the key's first-seen position.
func collapseByDedupKey(source string, items []map[string]any) []rawCandidate {
	index := make(map[string]int, len(items))
	out := make([]rawCandidate, 0, len(items))
	for _, item := range items {
		c := newRawCandidate(source, item)
		if pos, seen := index[c.dedupKey]; seen {
			out[pos] = c
			continue
		}
		index[c.dedupKey] = len(out)
		out = append(out, c)
	}
	return out
}

func newRawCandidate(source string, item map[string]any) rawCandidate {
	c := rawCandidate{payload: item}
	if u := canon.PayloadString(item, "url"); u != "" {
		c.url = &u
	}
	if t := canon.PayloadString(item, "headline", "title"); t != "" {
		c.title = &t
	}
	if ts, ok := canon.PayloadTime(item); ok {
		c.publishedAt = &ts
	}
	c.dedupKey = computeDedupKey(source, c.url, c.title, c.publishedAt)
	return c
}

// computeDedupKey derives the batch identity of a payload: sha256 of
// "source|canonical_url" when a URL is present (the raw URL when it cannot
// be canonicalized), else sha256 of "source|title|published_at".
func computeDedupKey(source string, url, title *string, publishedAt *time.Time) string {
	if url != nil && *url != "" {
		target := *url
		if canonical, err := canon.CanonicalizeURL(target); err == nil {
			target = canonical
		}
		return sha256Hex(source + "|" + target)
	}
	var titleStr, published string
	if title != nil {
		titleStr = *title
	}
	if publishedAt != nil {
		published = publishedAt.UTC().Format(time.RFC3339)
	}
	return sha256Hex(source + "|" + titleStr + "|" + published)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
