// Package e2e exercises the whole pipeline against real PostgreSQL and fake
// upstream/provider HTTP servers: an ingestion run feeding the job queue, a
// worker pool draining it, and the audit rows both leave behind.
package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/analysis"
	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/pkg/ingest"
	"github.com/sentinelstream/newsflow/pkg/models"
	"github.com/sentinelstream/newsflow/pkg/queue"
	"github.com/sentinelstream/newsflow/pkg/store"
	testdb "github.com/sentinelstream/newsflow/test/database"
)

// TestApp wires one complete pipeline instance for e2e testing: a database
// schema, a fake Finnhub server, a scripted LLM provider server, and the
// stores the assertions read through.
type TestApp struct {
	DB       *database.Client
	Jobs     *store.JobStore
	Events   *store.EventStore
	Analyses *store.AnalysisStore
	Runs     *store.RunStore
	Tickers  *store.TickerStore

	Upstream *FakeUpstream
	Provider *ScriptedProvider

	LLMConfig   config.LLMConfig
	QueueConfig *config.QueueConfig

	// JobName is the advisory-lock identity of this app's ingestion runs.
	// Advisory locks are database-global, not schema-scoped, so every app
	// gets a unique name unless a test shares one on purpose.
	JobName string

	WorkerID string

	pool *queue.WorkerPool
	t    *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	dbClient          *database.Client
	jobName           string
	workerID          string
	workerCount       int
	visibilityTimeout time.Duration
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithDBClient injects a pre-created database client, skipping the default
// per-test schema creation. Used for multi-process tests where several
// TestApp instances share one schema.
func WithDBClient(client *database.Client) TestAppOption {
	return func(c *testAppConfig) { c.dbClient = client }
}

// WithJobName overrides the auto-generated ingestion job name. Required when
// two apps must contend for the same advisory lock.
func WithJobName(name string) TestAppOption {
	return func(c *testAppConfig) { c.jobName = name }
}

// WithWorkerID overrides the auto-generated worker pool identity.
func WithWorkerID(id string) TestAppOption {
	return func(c *testAppConfig) { c.workerID = id }
}

// WithWorkerCount sets the number of worker pool goroutines.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// WithVisibilityTimeout sets how long a lease may sit before the sweep
// reclaims it.
func WithVisibilityTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.visibilityTimeout = d }
}

// NewTestApp creates a pipeline test instance. Workers are not started;
// tests that drain the queue call StartWorkers explicitly so they control
// what is in the queue first.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		workerCount:       1,
		visibilityTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.jobName == "" {
		tc.jobName = uniqueJobName()
	}
	if tc.workerID == "" {
		tc.workerID = fmt.Sprintf("e2e-%s", uuid.New().String()[:8])
	}

	dbClient := tc.dbClient
	if dbClient == nil {
		dbClient = testdb.NewTestClient(t)
	}
	db := dbClient.DB()

	upstream := NewFakeUpstream(t)
	provider := NewScriptedProvider(t)

	llmCfg := config.LLMConfig{
		Provider:      config.ProviderOpenAI,
		Timeout:       10 * time.Second,
		MaxRetries:    2,
		OpenAIAPIKey:  "e2e-test-key",
		OpenAIModel:   config.DefaultOpenAIModel,
		GeminiModel:   config.DefaultGeminiModel,
		OpenAIBaseURL: provider.URL(),
	}

	queueCfg := &config.QueueConfig{
		WorkerCount:             tc.workerCount,
		BatchSize:               1,
		PollInterval:            100 * time.Millisecond,
		PollIntervalJitter:      50 * time.Millisecond,
		VisibilityTimeout:       tc.visibilityTimeout,
		MaxAttempts:             3,
		GracefulShutdownTimeout: 10 * time.Second,
	}

	return &TestApp{
		DB:          dbClient,
		Jobs:        store.NewJobStore(db),
		Events:      store.NewEventStore(db),
		Analyses:    store.NewAnalysisStore(db),
		Runs:        store.NewRunStore(db),
		Tickers:     store.NewTickerStore(db),
		Upstream:    upstream,
		Provider:    provider,
		LLMConfig:   llmCfg,
		QueueConfig: queueCfg,
		JobName:     tc.jobName,
		WorkerID:    tc.workerID,
		t:           t,
	}
}

func uniqueJobName() string {
	return fmt.Sprintf("company_news_%s", uuid.New().String()[:8])
}

// NewRunner builds an ingestion runner fetching from the fake upstream under
// this app's job name.
func (app *TestApp) NewRunner() *ingest.Runner {
	app.t.Helper()

	upstreamCfg := config.DefaultUpstreamConfig()
	upstreamCfg.Token = "e2e-test-token"
	upstreamCfg.BaseURL = app.Upstream.URL()
	fetcher := ingest.NewFinnhubClient(upstreamCfg)

	intake := config.IntakeConfig{LatestPerRun: 50, DailyMax: 500}
	runner, err := ingest.NewRunner(app.DB, fetcher, intake, app.JobName, nil)
	require.NoError(app.t, err)
	return runner
}

// RunIngestion executes one ingestion run against the fake upstream and
// requires it to succeed.
func (app *TestApp) RunIngestion(ctx context.Context, opts ingest.RunOptions) *models.IngestionRun {
	app.t.Helper()

	run, err := app.NewRunner().Run(ctx, opts)
	require.NoError(app.t, err)
	require.NotNil(app.t, run)
	return run
}

// StartWorkers boots the worker pool draining this app's queue. Stop is
// registered via t.Cleanup.
func (app *TestApp) StartWorkers(ctx context.Context) {
	app.t.Helper()
	require.Nil(app.t, app.pool, "workers already started")

	service := analysis.NewService(app.DB.DB(), app.LLMConfig)
	app.pool = queue.NewWorkerPool(app.WorkerID, app.Jobs, app.QueueConfig, queue.DefaultExecutors(service))
	require.NoError(app.t, app.pool.Start(ctx))
	app.t.Cleanup(app.pool.Stop)
}

// SeedTicker inserts an active ticker row.
func (app *TestApp) SeedTicker(ctx context.Context, symbol, companyName string) {
	app.t.Helper()
	require.NoError(app.t, app.Tickers.Upsert(ctx, symbol, &companyName))
}

// SeedAnalysisJob ingests one article end to end and returns the resulting
// event and its pending llm_analysis job, ready for a worker to claim.
func (app *TestApp) SeedAnalysisJob(ctx context.Context) (*models.NewsEvent, *models.AnalysisJob) {
	app.t.Helper()

	url := fmt.Sprintf("https://news.example.com/%s", uuid.New().String()[:8])
	app.SeedTicker(ctx, "AAPL", "Apple Inc")
	app.Upstream.SetItems("AAPL",
		newsItem("Quarterly results beat expectations", url, time.Now().Add(-15*time.Minute).Unix(), "AAPL"))

	run := app.RunIngestion(ctx, ingest.RunOptions{
		Tickers: []string{"AAPL"}, MinutesBack: 60, ProcessLimit: 50,
	})
	require.Equal(app.t, models.RunStatusSucceeded, run.Status)
	require.Equal(app.t, 1, run.InsertedCount)

	event := app.EventByURL(ctx, url)
	job := app.JobForEvent(ctx, event.ID)
	require.Equal(app.t, models.JobStatusPending, job.Status)
	return event, job
}

// JobForEvent returns the llm_analysis job row for a news event.
func (app *TestApp) JobForEvent(ctx context.Context, eventID int64) *models.AnalysisJob {
	app.t.Helper()

	var jobID int64
	err := app.DB.DB().QueryRowContext(ctx,
		`SELECT id FROM analysis_jobs WHERE news_event_id = $1 AND job_type = $2`,
		eventID, models.JobTypeLLMAnalysis).Scan(&jobID)
	require.NoError(app.t, err)

	job, err := app.Jobs.GetByID(ctx, jobID)
	require.NoError(app.t, err)
	return job
}

// EventByURL returns the single news event whose stored URL matches.
func (app *TestApp) EventByURL(ctx context.Context, url string) *models.NewsEvent {
	app.t.Helper()

	var eventID int64
	err := app.DB.DB().QueryRowContext(ctx,
		`SELECT id FROM news_events WHERE url = $1`, url).Scan(&eventID)
	require.NoError(app.t, err)

	event, err := app.Events.GetByID(ctx, eventID)
	require.NoError(app.t, err)
	return event
}

// CountRows returns the row count of a table in this app's schema.
func (app *TestApp) CountRows(ctx context.Context, table string) int {
	app.t.Helper()
	var n int
	err := app.DB.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	require.NoError(app.t, err)
	return n
}

// AwaitJobStatus polls until the job reaches the wanted status and returns
// the final row.
func (app *TestApp) AwaitJobStatus(ctx context.Context, jobID int64, want models.JobStatus, timeout time.Duration) *models.AnalysisJob {
	app.t.Helper()

	var job *models.AnalysisJob
	awaitCondition(app.t, timeout, 100*time.Millisecond,
		fmt.Sprintf("job %d to reach status %s", jobID, want),
		func() bool {
			var err error
			job, err = app.Jobs.GetByID(ctx, jobID)
			require.NoError(app.t, err)
			return job.Status == want
		})
	return job
}

// awaitCondition polls until condition returns true or the timeout elapses.
func awaitCondition(t *testing.T, timeout, interval time.Duration, msg string, condition func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out: %s", msg)
		default:
			if condition() {
				return
			}
			time.Sleep(interval)
		}
	}
}
