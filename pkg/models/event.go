package models

import (
	"time"

	"github.com/google/uuid"
)

// NewsEvent is a canonical, deduplicated article. Identity is
// (source, canonical URL); news_id is a content-addressed hash of that pair.
// Events are immutable after creation — re-ingesting the same article is a
// no-op upsert.
type NewsEvent struct {
	ID            int64          `json:"id"`
	NewsID        string         `json:"news_id"`
	TraceID       uuid.UUID      `json:"trace_id"`
	Source        string         `json:"source"`
	RequestTicker *string        `json:"request_ticker,omitempty"`
	PublishedAt   time.Time      `json:"published_at"`
	IngestedAt    time.Time      `json:"ingested_at"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	Content       *string        `json:"content,omitempty"`
	Tickers       []string       `json:"tickers"`
	Payload       map[string]any `json:"raw_payload"`
	CreatedAt     time.Time      `json:"created_at"`
}
