package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/config"
	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/pkg/llm"
	"github.com/sentinelstream/newsflow/pkg/models"
	"github.com/sentinelstream/newsflow/pkg/store"
	testdb "github.com/sentinelstream/newsflow/test/database"
)

type fakeProvider struct {
	name  string
	model string
}

func (p *fakeProvider) Name() string  { return p.name }
func (p *fakeProvider) Model() string { return p.model }
func (p *fakeProvider) Generate(context.Context, string) (*llm.GenerateResponse, error) {
	return nil, errors.New("generate must not be called through the fake analyzer")
}

// fakeAnalyzer replaces the attempt loop with a canned outcome.
type fakeAnalyzer struct {
	analysis *llm.Analysis
	err      error
	inputs   []string
}

func (a *fakeAnalyzer) Analyze(_ context.Context, inputText string) (*llm.Analysis, error) {
	a.inputs = append(a.inputs, inputText)
	if a.err != nil {
		return nil, a.err
	}
	return a.analysis, nil
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:    config.ProviderOpenAI,
		OpenAIModel: config.DefaultOpenAIModel,
		GeminiModel: config.DefaultGeminiModel,
		Timeout:     20 * time.Second,
		MaxRetries:  2,
	}
}

// newTestService wires a service against an isolated schema with the
// provider factory and attempt loop stubbed out.
func newTestService(t *testing.T, fake *fakeAnalyzer) (*Service, *database.Client) {
	t.Helper()
	client := testdb.NewTestClient(t)
	svc := NewService(client.DB(), testLLMConfig())
	svc.newProvider = func(config.LLMConfig) (llm.Provider, error) {
		return &fakeProvider{name: "openai", model: "gpt-4o-mini"}, nil
	}
	svc.newAnalyzer = func(llm.Provider, config.LLMConfig) analyzer { return fake }
	return svc, client
}

func insertTestEvent(ctx context.Context, t *testing.T, client *database.Client, content string) *models.NewsEvent {
	t.Helper()
	event := &models.NewsEvent{
		NewsID:      uuid.New().String(),
		TraceID:     uuid.New(),
		Source:      "finnhub",
		PublishedAt: time.Now().Add(-time.Hour),
		IngestedAt:  time.Now(),
		Title:       "Apple beats estimates",
		URL:         fmt.Sprintf("https://example.com/news/%s", uuid.New().String()),
		Tickers:     []string{"AAPL"},
	}
	if content != "" {
		event.Content = &content
	}
	_, inserted, err := store.NewEventStore(client.DB()).Upsert(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)
	return event
}

func successfulAnalysis() *llm.Analysis {
	confidence := 0.9
	text := `{"tickers":["AAPL"],"sentiment":"positive","confidence":0.9,"reasoning_summary":"Strong quarter."}`
	return &llm.Analysis{
		Result: &llm.AnalysisResult{
			Tickers:          []string{"AAPL"},
			Sentiment:        "positive",
			Confidence:       &confidence,
			ReasoningSummary: "Strong quarter.",
		},
		Attempts: []llm.Attempt{{Prompt: "p", OutputText: &text}},
		Request: map[string]any{
			"prompt": "p", "provider": "openai", "model": "gpt-4o-mini",
		},
		RawOutput: map[string]any{"output_text": text},
	}
}

func TestAnalyzeSuccessPersistsVerdict(t *testing.T) {
	fake := &fakeAnalyzer{analysis: successfulAnalysis()}
	svc, client := newTestService(t, fake)
	ctx := context.Background()

	event := insertTestEvent(ctx, t, client, "Record revenue across segments.")

	summary, err := svc.Analyze(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, summary.Status)
	assert.Equal(t, "openai", summary.Provider)
	assert.Equal(t, "gpt-4o-mini", summary.Model)
	assert.Equal(t, []string{"AAPL"}, summary.Tickers)
	assert.Empty(t, summary.ErrorMessage)

	// The analyzer sees the composed event text.
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, llm.BuildInputText(event.Title, event.URL, "Record revenue across segments."),
		fake.inputs[0])

	analyses := store.NewAnalysisStore(client.DB())
	row, err := analyses.GetByEvent(ctx, event.ID, "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusSucceeded, row.Status)
	assert.Equal(t, "positive", *row.Sentiment)
	assert.Equal(t, 0.9, *row.Confidence)
	assert.Equal(t, "Strong quarter.", *row.Summary)
	assert.Equal(t, []string{"AAPL"}, row.Entities)
	assert.Equal(t, "openai", row.Request["provider"])
	assert.Nil(t, row.ErrorMessage)

	tickers, err := analyses.ListTickers(ctx, summary.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, tickers)
}

func TestAnalyzeDomainFailureKeepsAttemptTrail(t *testing.T) {
	firstErr := "json_error: unexpected end of JSON input"
	lastErr := "validation_error: Sentiment must be one of positive neutral negative"
	fake := &fakeAnalyzer{err: &llm.AnalysisError{Attempts: []llm.Attempt{
		{Prompt: "standard", Error: &firstErr},
		{Prompt: "strict", Error: &lastErr},
	}}}
	svc, client := newTestService(t, fake)
	ctx := context.Background()

	event := insertTestEvent(ctx, t, client, "")

	summary, err := svc.Analyze(ctx, event.ID)
	require.NoError(t, err, "domain failures are persisted, not returned")
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, "LLM analysis failed: "+lastErr, summary.ErrorMessage)

	row, err := store.NewAnalysisStore(client.DB()).GetByEvent(ctx, event.ID, "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, row.Status)
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "LLM analysis failed: "+lastErr, *row.ErrorMessage)

	trail, ok := row.RawOutput.([]any)
	require.True(t, ok, "raw_output must carry the attempt list")
	require.Len(t, trail, 2)
	first, ok := trail[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "standard", first["prompt"])
	assert.Equal(t, firstErr, first["error"])
}

func TestAnalyzeUnexpectedFailure(t *testing.T) {
	fake := &fakeAnalyzer{err: errors.New("connection reset by peer")}
	svc, client := newTestService(t, fake)
	ctx := context.Background()

	event := insertTestEvent(ctx, t, client, "")

	summary, err := svc.Analyze(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, "connection reset by peer", summary.ErrorMessage)

	row, err := store.NewAnalysisStore(client.DB()).GetByEvent(ctx, event.ID, "openai", "gpt-4o-mini")
	require.NoError(t, err)
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "unexpected_error: connection reset by peer", *row.ErrorMessage)

	placeholder, ok := row.RawOutput.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "no_attempts", placeholder["error"])
}

func TestAnalyzeInitFailureUsesFallbackIdentity(t *testing.T) {
	fake := &fakeAnalyzer{analysis: successfulAnalysis()}
	svc, client := newTestService(t, fake)
	svc.newProvider = func(config.LLMConfig) (llm.Provider, error) {
		return nil, errors.New("OPENAI_API_KEY environment variable is required")
	}
	ctx := context.Background()

	event := insertTestEvent(ctx, t, client, "")

	summary, err := svc.Analyze(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, "OPENAI_API_KEY environment variable is required", summary.ErrorMessage)
	// No provider exists to name itself, so the row lands under the
	// fallback identity.
	assert.Equal(t, config.ProviderGemini, summary.Provider)
	assert.Equal(t, config.DefaultGeminiModel, summary.Model)

	row, err := store.NewAnalysisStore(client.DB()).GetByEvent(
		ctx, event.ID, config.ProviderGemini, config.DefaultGeminiModel)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusFailed, row.Status)
	require.NotNil(t, row.ErrorMessage)
	assert.Equal(t, "llm_init_error: OPENAI_API_KEY environment variable is required", *row.ErrorMessage)

	trail, ok := row.RawOutput.([]any)
	require.True(t, ok)
	assert.Empty(t, trail, "no attempts ever ran")

	require.Len(t, fake.inputs, 0, "the analyzer must never run without a provider")
}

func TestAnalyzeMissingEventWritesNothing(t *testing.T) {
	fake := &fakeAnalyzer{analysis: successfulAnalysis()}
	svc, client := newTestService(t, fake)
	ctx := context.Background()

	summary, err := svc.Analyze(ctx, 999999)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, summary.Status)
	assert.Equal(t, "news_event_not_found", summary.ErrorMessage)
	assert.Zero(t, summary.AnalysisID)

	var count int
	require.NoError(t, client.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM llm_analyses`).Scan(&count))
	assert.Zero(t, count)
}

func TestAnalyzeReRunReusesVerdictRow(t *testing.T) {
	fake := &fakeAnalyzer{err: &llm.AnalysisError{}}
	svc, client := newTestService(t, fake)
	ctx := context.Background()

	event := insertTestEvent(ctx, t, client, "")

	failed, err := svc.Analyze(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)

	// The retry lands on the same (event, provider, model) row.
	fake.err = nil
	fake.analysis = successfulAnalysis()
	succeeded, err := svc.Analyze(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, succeeded.Status)
	assert.Equal(t, failed.AnalysisID, succeeded.AnalysisID)

	var count int
	require.NoError(t, client.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM llm_analyses`).Scan(&count))
	assert.Equal(t, 1, count)
}
