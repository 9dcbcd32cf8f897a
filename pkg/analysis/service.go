// Package analysis runs the LLM verdict pipeline for a single news event:
// load, prompt, validate, and persist the outcome with a full audit trail.
package analysis

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/llm"
	"github.com/sentinelstream/newsflow/pkg/store"
)

// Analysis outcome statuses reported to callers.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusNotFound  = "not_found"
)

// Summary is the caller-facing outcome of one Analyze call. Everything worth
// auditing is already written to llm_analyses by the time it is returned.
type Summary struct {
	AnalysisID   int64
	Status       string
	ErrorMessage string
	Provider     string
	Model        string
	Tickers      []string
}

// analyzer is the attempt loop around one provider, satisfied by llm.Client.
type analyzer interface {
	Analyze(ctx context.Context, inputText string) (*llm.Analysis, error)
}

// Service orchestrates analyses. Provider construction failures do not stop
// the worker: they are written to the analysis row like any other failure.
type Service struct {
	events   *store.EventStore
	analyses *store.AnalysisStore
	cfg      config.LLMConfig
	logger   *slog.Logger

	// Factory hooks, swapped out in tests.
	newProvider func(config.LLMConfig) (llm.Provider, error)
	newAnalyzer func(llm.Provider, config.LLMConfig) analyzer
}

// NewService creates an analysis Service. The db parameter should be the
// *sql.DB from database.Client.DB().
func NewService(db *sql.DB, cfg config.LLMConfig) *Service {
	return &Service{
		events:      store.NewEventStore(db),
		analyses:    store.NewAnalysisStore(db),
		cfg:         cfg,
		logger:      slog.Default(),
		newProvider: llm.NewProvider,
		newAnalyzer: func(p llm.Provider, cfg config.LLMConfig) analyzer {
			return llm.NewClient(p, cfg)
		},
	}
}

// Analyze runs the full pipeline for one news event and reports the outcome.
// A missing event returns not_found without writing anything. Analysis
// failures are persisted and reported in the summary; only infrastructure
// errors (the database going away mid-write) surface as a returned error.
func (s *Service) Analyze(ctx context.Context, newsEventID int64) (*Summary, error) {
	traceID := uuid.New()

	event, err := s.events.GetByID(ctx, newsEventID)
	if errors.Is(err, store.ErrNotFound) {
		return &Summary{Status: StatusNotFound, ErrorMessage: "news_event_not_found"}, nil
	}
	if err != nil {
		return nil, err
	}

	provider, err := s.newProvider(s.cfg)
	if err != nil {
		return s.failInit(ctx, newsEventID, traceID, err)
	}

	analysisID, err := s.analyses.UpsertPending(ctx, newsEventID, traceID, provider.Name(), provider.Model())
	if err != nil {
		return nil, err
	}

	content := ""
	if event.Content != nil {
		content = *event.Content
	}
	inputText := llm.BuildInputText(event.Title, event.URL, content)

	analysis, err := s.newAnalyzer(provider, s.cfg).Analyze(ctx, inputText)
	if err != nil {
		return s.failAnalysis(ctx, analysisID, provider, newsEventID, err)
	}

	fields := store.SucceededFields{
		Sentiment:  analysis.Result.Sentiment,
		Confidence: *analysis.Result.Confidence,
		Summary:    analysis.Result.ReasoningSummary,
		Tickers:    analysis.Result.Tickers,
		Request:    analysis.Request,
		RawOutput:  analysis.RawOutput,
	}
	if err := s.analyses.MarkSucceeded(ctx, analysisID, fields); err != nil {
		return nil, err
	}

	s.logger.Info("Analysis succeeded",
		"news_event_id", newsEventID, "analysis_id", analysisID,
		"provider", provider.Name(), "model", provider.Model(),
		"sentiment", analysis.Result.Sentiment, "tickers", analysis.Result.Tickers)

	return &Summary{
		AnalysisID: analysisID,
		Status:     StatusSucceeded,
		Provider:   provider.Name(),
		Model:      provider.Model(),
		Tickers:    analysis.Result.Tickers,
	}, nil
}

// failInit audits a provider construction failure. The row is written under
// the gemini fallback identity because no provider exists to name itself.
func (s *Service) failInit(ctx context.Context, newsEventID int64, traceID uuid.UUID, initErr error) (*Summary, error) {
	providerName := config.ProviderGemini
	model := s.cfg.GeminiModel

	analysisID, err := s.analyses.UpsertPending(ctx, newsEventID, traceID, providerName, model)
	if err != nil {
		return nil, err
	}
	if err := s.analyses.MarkFailed(ctx, analysisID, "llm_init_error: "+initErr.Error(), []llm.Attempt{}); err != nil {
		return nil, err
	}

	s.logger.Error("LLM provider init failed", "news_event_id", newsEventID, "error", initErr)

	return &Summary{
		AnalysisID:   analysisID,
		Status:       StatusFailed,
		ErrorMessage: initErr.Error(),
		Provider:     providerName,
		Model:        model,
	}, nil
}

// failAnalysis persists a failed attempt loop. Domain failures keep their
// full attempt trail; anything else is recorded as unexpected with a
// placeholder raw output.
func (s *Service) failAnalysis(ctx context.Context, analysisID int64, provider llm.Provider, newsEventID int64, analyzeErr error) (*Summary, error) {
	var message, summaryMessage string
	var rawOutput any

	var analysisErr *llm.AnalysisError
	if errors.As(analyzeErr, &analysisErr) {
		message = analysisErr.Error()
		if last := analysisErr.LastError(); last != "" {
			message += ": " + last
		}
		summaryMessage = message
		attempts := analysisErr.Attempts
		if attempts == nil {
			attempts = []llm.Attempt{}
		}
		rawOutput = attempts
	} else {
		message = "unexpected_error: " + analyzeErr.Error()
		summaryMessage = analyzeErr.Error()
		rawOutput = map[string]any{"error": "no_attempts"}
	}

	s.logger.Error("Analysis failed",
		"news_event_id", newsEventID, "analysis_id", analysisID,
		"provider", provider.Name(), "model", provider.Model(), "error", message)

	if err := s.analyses.MarkFailed(ctx, analysisID, message, rawOutput); err != nil {
		return nil, err
	}
	return &Summary{
		AnalysisID:   analysisID,
		Status:       StatusFailed,
		ErrorMessage: summaryMessage,
		Provider:     provider.Name(),
		Model:        provider.Model(),
	}, nil
}
