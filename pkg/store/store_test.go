package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/pkg/models"
	testdb "github.com/sentinelstream/newsflow/test/database"
)

// storeFixture bundles every store against one isolated test schema.
type storeFixture struct {
	client   *database.Client
	raw      *RawStore
	events   *EventStore
	jobs     *JobStore
	analyses *AnalysisStore
	runs     *RunStore
	tickers  *TickerStore
}

func newStoreFixture(t *testing.T) *storeFixture {
	client := testdb.NewTestClient(t)
	db := client.DB()
	return &storeFixture{
		client:   client,
		raw:      NewRawStore(db),
		events:   NewEventStore(db),
		jobs:     NewJobStore(db),
		analyses: NewAnalysisStore(db),
		runs:     NewRunStore(db),
		tickers:  NewTickerStore(db),
	}
}

// rawPayload shapes a payload the way the upstream company-news API does.
func rawPayload(url, headline string, published time.Time) map[string]any {
	return map[string]any{
		"url":      url,
		"headline": headline,
		"datetime": published.Unix(),
		"source":   "MarketWatch",
		"related":  "AAPL",
	}
}

// insertEvent creates one news event with a unique URL and returns its id.
func (f *storeFixture) insertEvent(ctx context.Context, t *testing.T) int64 {
	t.Helper()
	event := &models.NewsEvent{
		NewsID:      uuid.New().String(),
		TraceID:     uuid.New(),
		Source:      "finnhub",
		PublishedAt: time.Now().Add(-time.Hour),
		IngestedAt:  time.Now(),
		Title:       "Chipmaker guides above consensus",
		URL:         fmt.Sprintf("https://example.com/news/%s", uuid.New().String()),
		Tickers:     []string{"NVDA"},
	}
	id, inserted, err := f.events.Upsert(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)
	return id
}

// jobIDFor looks up the queue row created by Publish.
func (f *storeFixture) jobIDFor(ctx context.Context, t *testing.T, eventID int64, jobType string) int64 {
	t.Helper()
	var id int64
	err := f.client.DB().QueryRowContext(ctx,
		`SELECT id FROM analysis_jobs WHERE news_event_id = $1 AND job_type = $2`,
		eventID, jobType).Scan(&id)
	require.NoError(t, err)
	return id
}
