package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sentinelstream/newsflow/pkg/models"
)

// EventStore persists canonical news events.
type EventStore struct {
	db *sql.DB
}

// NewEventStore creates an EventStore. The db parameter should be the
// *sql.DB from database.Client.DB().
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Upsert inserts the event or, when (source, url) already exists, refreshes
// news_id and returns the existing row id. Reports whether a new row was
// created. The event's ID field is filled in either way.
func (s *EventStore) Upsert(ctx context.Context, event *models.NewsEvent) (int64, bool, error) {
	tickersJSON, err := stringsJSON(event.Tickers)
	if err != nil {
		return 0, false, err
	}
	payloadJSON, err := mapJSON(event.Payload)
	if err != nil {
		return 0, false, err
	}

	var id int64
	var inserted bool
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO news_events
			(news_id, trace_id, source, request_ticker, published_at, ingested_at,
			 title, url, content, tickers, raw_payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (source, url) DO UPDATE SET news_id = EXCLUDED.news_id
		RETURNING id, (xmax = 0) AS inserted`,
		event.NewsID, event.TraceID, event.Source, event.RequestTicker,
		event.PublishedAt, event.IngestedAt, event.Title, event.URL, event.Content,
		tickersJSON, payloadJSON,
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("failed to upsert news event: %w", err)
	}
	event.ID = id
	return id, inserted, nil
}

// GetByID fetches one event. Wraps ErrNotFound when the row is absent.
func (s *EventStore) GetByID(ctx context.Context, id int64) (*models.NewsEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, news_id, trace_id, source, request_ticker, published_at, ingested_at,
		       title, url, content, tickers, raw_payload, created_at
		FROM news_events
		WHERE id = $1`, id)
	event, err := scanNewsEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("news event %d: %w", id, ErrNotFound)
	}
	return event, err
}

// GetByNewsID fetches one event by its content-addressed identity.
func (s *EventStore) GetByNewsID(ctx context.Context, newsID string) (*models.NewsEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, news_id, trace_id, source, request_ticker, published_at, ingested_at,
		       title, url, content, tickers, raw_payload, created_at
		FROM news_events
		WHERE news_id = $1`, newsID)
	event, err := scanNewsEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("news event %s: %w", newsID, ErrNotFound)
	}
	return event, err
}

func scanNewsEvent(row rowScanner) (*models.NewsEvent, error) {
	var event models.NewsEvent
	var requestTicker, content sql.NullString
	var tickers, payload []byte

	err := row.Scan(&event.ID, &event.NewsID, &event.TraceID, &event.Source, &requestTicker,
		&event.PublishedAt, &event.IngestedAt, &event.Title, &event.URL, &content,
		&tickers, &payload, &event.CreatedAt)
	if err != nil {
		return nil, err
	}
	event.RequestTicker = stringPtr(requestTicker)
	event.Content = stringPtr(content)
	if err := json.Unmarshal(tickers, &event.Tickers); err != nil {
		return nil, fmt.Errorf("failed to decode event tickers: %w", err)
	}
	if err := json.Unmarshal(payload, &event.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return &event, nil
}
