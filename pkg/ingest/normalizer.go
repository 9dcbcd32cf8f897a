// Package ingest fetches company news, shapes it, and orchestrates one
// advisory-locked ingestion run: persist raw payloads, normalize them into
// canonical events, and publish analysis jobs.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstream/newsflow/pkg/canon"
	"github.com/sentinelstream/newsflow/pkg/models"
)

// DefaultSource labels rows from the company-news feed.
const DefaultSource = "finnhub"

// NormalizationError reports a payload that cannot become a news event.
// These are domain failures: the raw row is marked failed and stays eligible
// for later batches until its attempt budget runs out.
type NormalizationError struct {
	Field string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization error: missing or invalid %q", e.Field)
}

// Normalize converts one raw payload into a canonical news event. The
// returned event carries no database id yet. requestTicker overrides the
// payload's request_ticker annotation when non-empty.
func Normalize(payload map[string]any, traceID uuid.UUID, ingestedAt time.Time, requestTicker string) (*models.NewsEvent, error) {
	rawURL := canon.PayloadString(payload, "url")
	if rawURL == "" {
		return nil, &NormalizationError{Field: "url"}
	}
	title := canon.PayloadString(payload, "headline", "title")
	if title == "" {
		return nil, &NormalizationError{Field: "headline"}
	}
	publishedAt, ok := canon.PayloadTime(payload)
	if !ok {
		return nil, &NormalizationError{Field: "datetime"}
	}

	canonicalURL, err := canon.CanonicalizeURL(rawURL)
	if err != nil {
		return nil, &NormalizationError{Field: "url"}
	}

	source := canon.PayloadString(payload, "source")
	if source == "" {
		source = DefaultSource
	}

	newsID, err := canon.NewsID(source, canonicalURL)
	if err != nil {
		return nil, &NormalizationError{Field: "url"}
	}

	event := &models.NewsEvent{
		NewsID:      newsID,
		TraceID:     traceID,
		Source:      source,
		PublishedAt: publishedAt,
		IngestedAt:  ingestedAt.UTC(),
		Title:       title,
		URL:         canonicalURL,
		Tickers:     relatedTickers(payload),
		Payload:     payload,
	}
	if requestTicker == "" {
		requestTicker = canon.PayloadString(payload, "request_ticker")
	}
	if requestTicker != "" {
		event.RequestTicker = &requestTicker
	}
	if content := canon.PayloadString(payload, "summary", "content"); content != "" {
		event.Content = &content
	}
	return event, nil
}

// relatedTickers splits the comma-separated "related" field into uppercased,
// trimmed, deduplicated symbols, preserving order.
func relatedTickers(payload map[string]any) []string {
	related, _ := payload["related"].(string)
	if related == "" {
		return nil
	}
	return canon.CleanSymbols(strings.Split(related, ","))
}
