package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/ingest"
	"github.com/sentinelstream/newsflow/pkg/models"
	testdb "github.com/sentinelstream/newsflow/test/database"
)

// TestConcurrentIngestionMutualExclusion races two ingestion processes with
// identical inputs over one schema. The second starts while the first is
// mid-fetch: it must observe the held advisory lock and exit without writing
// a run row.
func TestConcurrentIngestionMutualExclusion(t *testing.T) {
	shared := testdb.NewSharedTestDB(t)
	jobName := uniqueJobName()
	appA := NewTestApp(t, WithDBClient(shared.NewClient(t)), WithJobName(jobName))
	appB := NewTestApp(t, WithDBClient(shared.NewClient(t)), WithJobName(jobName))
	ctx := context.Background()

	appA.SeedTicker(ctx, "AAPL", "Apple Inc")
	item := newsItem("Margin expansion", "https://news.example.com/margins",
		time.Now().Add(-10*time.Minute).Unix(), "AAPL")
	appA.Upstream.SetItems("AAPL", item)
	appB.Upstream.SetItems("AAPL", item)

	gate := appA.Upstream.Hold("AAPL")
	opts := ingest.RunOptions{Tickers: []string{"AAPL"}, MinutesBack: 60, ProcessLimit: 50}

	type runResult struct {
		run *models.IngestionRun
		err error
	}
	resultA := make(chan runResult, 1)
	go func() {
		run, err := appA.NewRunner().Run(ctx, opts)
		resultA <- runResult{run, err}
	}()

	// A holds the advisory lock once its fetch request arrives.
	select {
	case <-gate.Entered:
	case <-time.After(10 * time.Second):
		t.Fatal("run A never reached the upstream fetch")
	}

	runB, errB := appB.NewRunner().Run(ctx, opts)
	require.ErrorIs(t, errB, ingest.ErrLockNotAcquired)
	assert.Nil(t, runB, "the losing run must not create a run row")

	gate.Release()
	a := <-resultA
	require.NoError(t, a.err)
	require.NotNil(t, a.run)
	assert.Equal(t, models.RunStatusSucceeded, a.run.Status)
	assert.Equal(t, 1, a.run.InsertedCount)

	// Exactly one run row and one copy of the work.
	assert.Equal(t, 1, appA.CountRows(ctx, "ingestion_runs"))
	assert.Equal(t, 1, appA.CountRows(ctx, "news_events"))
	assert.Equal(t, 1, appA.CountRows(ctx, "analysis_jobs"))
}
