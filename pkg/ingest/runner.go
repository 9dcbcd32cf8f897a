package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata" // market timezone lookups must work in minimal containers

	"github.com/google/uuid"

	"github.com/sentinelstream/newsflow/pkg/canon"
	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/pkg/models"
	"github.com/sentinelstream/newsflow/pkg/store"
)

// DefaultJobName identifies the company-news ingestion job. It doubles as
// the advisory lock name, so only one run per name executes at a time.
const DefaultJobName = "finnhub_company_news"

// marketTimezone anchors the upstream API's calendar-date windows and the
// daily intake caps.
const marketTimezone = "America/New_York"

// ErrLockNotAcquired is returned when another run already holds the
// ingestion advisory lock. Callers treat it as a clean no-op exit; no run
// row is written.
var ErrLockNotAcquired = errors.New("ingestion lock not acquired")

// NewsFetcher pulls one ticker's articles for an inclusive date window.
type NewsFetcher interface {
	CompanyNews(ctx context.Context, symbol, from, to string) ([]map[string]any, error)
}

// RunNotifier posts best-effort run summaries to an operator channel.
type RunNotifier interface {
	NotifyRunFinished(ctx context.Context, run *models.IngestionRun)
}

// RunOptions are the per-invocation controls from the CLI.
type RunOptions struct {
	// Tickers restricts the run to these symbols. Empty means every active
	// symbol in the ticker table.
	Tickers []string
	// MinutesBack sets the fetch window ending now.
	MinutesBack int
	// ProcessLimit bounds how many raw rows one run normalizes.
	ProcessLimit int
	// ReplayOnly skips the upstream fetch and only reprocesses stored raw
	// rows.
	ReplayOnly bool
}

// Runner executes one advisory-locked ingestion run end to end: fetch,
// shape, persist raw payloads, normalize into events, publish analysis jobs,
// finalize bookkeeping.
type Runner struct {
	client   *database.Client
	raw      *store.RawStore
	events   *store.EventStore
	jobs     *store.JobStore
	runs     *store.RunStore
	tickers  *store.TickerStore
	fetcher  NewsFetcher
	intake   config.IntakeConfig
	notifier RunNotifier
	jobName  string
	source   string
	loc      *time.Location
	now      func() time.Time
}

// NewRunner wires a runner against the database. fetcher may be nil only
// for replay-only runs; notifier may be nil. An empty jobName selects
// DefaultJobName.
func NewRunner(client *database.Client, fetcher NewsFetcher, intake config.IntakeConfig, jobName string, notifier RunNotifier) (*Runner, error) {
	loc, err := time.LoadLocation(marketTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone: %w", err)
	}
	if jobName == "" {
		jobName = DefaultJobName
	}
	db := client.DB()
	return &Runner{
		client:   client,
		raw:      store.NewRawStore(db),
		events:   store.NewEventStore(db),
		jobs:     store.NewJobStore(db),
		runs:     store.NewRunStore(db),
		tickers:  store.NewTickerStore(db),
		fetcher:  fetcher,
		intake:   intake,
		notifier: notifier,
		jobName:  jobName,
		source:   DefaultSource,
		loc:      loc,
		now:      time.Now,
	}, nil
}

type runStats struct {
	fetched             int
	inserted            int
	deduped             int
	fetchErrors         int
	droppedDaily        int
	droppedLatest       int
	rawBatch            int
	normalized          int
	normalizationFailed int
	jobsEnqueued        int
	jobsDuplicate       int
	missingTickers      []string
}

func (st *runStats) counts() store.RunCounts {
	missing := st.missingTickers
	if missing == nil {
		missing = []string{}
	}
	return store.RunCounts{
		Fetched:  st.fetched,
		Inserted: st.inserted,
		Deduped:  st.deduped,
		Meta: map[string]any{
			"fetch_errors":         st.fetchErrors,
			"dropped_daily_cap":    st.droppedDaily,
			"dropped_latest_cap":   st.droppedLatest,
			"raw_batch":            st.rawBatch,
			"normalized":           st.normalized,
			"normalization_failed": st.normalizationFailed,
			"jobs_enqueued":        st.jobsEnqueued,
			"jobs_duplicate":       st.jobsDuplicate,
			"missing_tickers":      missing,
		},
	}
}

// Run executes one ingestion run. It returns ErrLockNotAcquired without
// writing any bookkeeping when another run holds the lock. Any later
// failure is recorded on the run row before it is returned.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*models.IngestionRun, error) {
	traceID := uuid.New()
	log := slog.With("job_name", r.jobName, "trace_id", traceID.String())

	lock, acquired, err := r.client.TryAdvisoryLock(ctx, r.jobName)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingestion lock: %w", err)
	}
	if !acquired {
		log.Info("Another run holds the ingestion lock, skipping")
		return nil, ErrLockNotAcquired
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			log.Warn("Failed to release ingestion lock", "error", err)
		}
	}()

	windowTo := r.now().UTC()
	windowFrom := windowTo.Add(-time.Duration(opts.MinutesBack) * time.Minute)

	stats := &runStats{}
	var symbols []string
	if !opts.ReplayOnly {
		symbols, err = r.resolveSymbols(ctx, opts.Tickers, stats, log)
		if err != nil {
			return nil, err
		}
	}

	run, err := r.runs.Begin(ctx, r.jobName, traceID, symbols, windowFrom, windowTo)
	if err != nil {
		return nil, err
	}
	log = log.With("run_id", run.ID)
	log.Info("Ingestion run started",
		"window_from", windowFrom, "window_to", windowTo,
		"tickers", len(symbols), "replay_only", opts.ReplayOnly)

	if runErr := r.execute(ctx, opts, traceID, symbols, windowFrom, windowTo, stats, log); runErr != nil {
		log.Error("Ingestion run failed", "error", runErr)
		if err := r.runs.Fail(ctx, run.ID, runErr.Error(), stats.counts()); err != nil {
			log.Error("Failed to record run failure", "error", err)
		}
		r.finishRun(ctx, run, models.RunStatusFailed, stats, runErr)
		return run, runErr
	}

	if err := r.runs.Complete(ctx, run.ID, stats.counts()); err != nil {
		return run, fmt.Errorf("failed to finalize run: %w", err)
	}
	log.Info("Ingestion run succeeded",
		"fetched", stats.fetched, "inserted", stats.inserted, "deduped", stats.deduped,
		"normalized", stats.normalized, "jobs_enqueued", stats.jobsEnqueued)
	r.finishRun(ctx, run, models.RunStatusSucceeded, stats, nil)
	return run, nil
}

func (r *Runner) resolveSymbols(ctx context.Context, requested []string, stats *runStats, log *slog.Logger) ([]string, error) {
	resolved, missing, err := r.tickers.Resolve(ctx, canon.CleanSymbols(requested))
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		stats.missingTickers = missing
		log.Warn("Requested tickers missing from ticker table", "missing", missing)
	}
	return resolved, nil
}

func (r *Runner) execute(ctx context.Context, opts RunOptions, traceID uuid.UUID, symbols []string, windowFrom, windowTo time.Time, stats *runStats, log *slog.Logger) error {
	if !opts.ReplayOnly {
		if r.fetcher == nil {
			return errors.New("no upstream fetcher configured")
		}
		if err := r.fetchAndPersist(ctx, traceID, symbols, windowFrom, windowTo, stats, log); err != nil {
			return err
		}
	}

	rows, err := r.raw.SelectBatch(ctx, r.source, opts.ProcessLimit)
	if err != nil {
		return err
	}
	stats.rawBatch = len(rows)
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.processRawItem(ctx, &rows[i], stats, log)
	}
	return nil
}

// fetchAndPersist pulls each ticker in isolation: one symbol failing does
// not abort the run, it only counts as a fetch error.
func (r *Runner) fetchAndPersist(ctx context.Context, traceID uuid.UUID, symbols []string, windowFrom, windowTo time.Time, stats *runStats, log *slog.Logger) error {
	// The upstream API filters by calendar date in the exchange's local
	// time, so the minute window widens to its date bounds.
	dateFrom := windowFrom.In(r.loc).Format("2006-01-02")
	dateTo := windowTo.In(r.loc).Format("2006-01-02")

	var kept []map[string]any
	for _, symbol := range symbols {
		items, err := r.fetcher.CompanyNews(ctx, symbol, dateFrom, dateTo)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.fetchErrors++
			log.Error("Ticker fetch failed", "symbol", symbol, "error", err)
			continue
		}
		stats.fetched += len(items)

		shaped := shapeTickerItems(items, symbol, r.intake, r.loc)
		stats.droppedDaily += shaped.DroppedDaily
		stats.droppedLatest += shaped.DroppedLatest
		if shaped.DroppedDaily > 0 || shaped.DroppedLatest > 0 {
			log.Info("Rate shaping dropped items",
				"symbol", symbol, "daily", shaped.DroppedDaily, "latest", shaped.DroppedLatest)
		}
		kept = append(kept, shaped.Kept...)
	}

	inserted, updated, err := r.raw.InsertBatch(ctx, r.source, traceID, r.now().UTC(), kept)
	if err != nil {
		return err
	}
	stats.inserted = inserted
	stats.deduped = updated
	return nil
}

// processRawItem normalizes one raw row in isolation: a failure marks that
// row failed and the loop moves on.
func (r *Runner) processRawItem(ctx context.Context, row *models.RawItem, stats *runStats, log *slog.Logger) {
	event, err := Normalize(row.Payload, row.TraceID, r.now().UTC(), "")
	if err != nil {
		stats.normalizationFailed++
		msg := err.Error()
		var normErr *NormalizationError
		if !errors.As(err, &normErr) {
			msg = "unexpected_error: " + msg
		}
		log.Warn("Raw item failed normalization", "raw_id", row.RawID, "error", err)
		if markErr := r.raw.MarkFailed(ctx, row.RawID, msg); markErr != nil {
			log.Error("Failed to mark raw item failed", "raw_id", row.RawID, "error", markErr)
		}
		return
	}

	eventID, _, err := r.events.Upsert(ctx, event)
	if err != nil {
		stats.normalizationFailed++
		log.Error("Failed to upsert news event", "raw_id", row.RawID, "error", err)
		if markErr := r.raw.MarkFailed(ctx, row.RawID, "unexpected_error: "+err.Error()); markErr != nil {
			log.Error("Failed to mark raw item failed", "raw_id", row.RawID, "error", markErr)
		}
		return
	}

	created, err := r.jobs.Publish(ctx, eventID, row.TraceID, models.JobTypeLLMAnalysis)
	if err != nil {
		stats.normalizationFailed++
		log.Error("Failed to publish analysis job", "raw_id", row.RawID, "error", err)
		if markErr := r.raw.MarkFailed(ctx, row.RawID, "unexpected_error: "+err.Error()); markErr != nil {
			log.Error("Failed to mark raw item failed", "raw_id", row.RawID, "error", markErr)
		}
		return
	}
	if created {
		stats.jobsEnqueued++
	} else {
		stats.jobsDuplicate++
	}

	stats.normalized++
	if err := r.raw.MarkNormalized(ctx, row.RawID); err != nil {
		log.Error("Failed to mark raw item normalized", "raw_id", row.RawID, "error", err)
	}
}

// finishRun mirrors the final DB state onto the in-memory run and fires the
// notifier.
func (r *Runner) finishRun(ctx context.Context, run *models.IngestionRun, status models.RunStatus, stats *runStats, runErr error) {
	now := r.now().UTC()
	counts := stats.counts()
	run.Status = status
	run.FetchedCount = counts.Fetched
	run.InsertedCount = counts.Inserted
	run.DedupedCount = counts.Deduped
	run.Meta = counts.Meta
	run.FinishedAt = &now
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg
	}
	if r.notifier != nil {
		r.notifier.NotifyRunFinished(ctx, run)
	}
}
