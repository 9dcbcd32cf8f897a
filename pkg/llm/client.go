package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelstream/newsflow/pkg/config"
)

// retryDelay is the pause before every re-prompt attempt.
const retryDelay = 2 * time.Second

// Attempt is one audited exchange with the provider. The JSON field names
// are the raw_output audit schema; pointers keep absent values as null.
type Attempt struct {
	Prompt     string         `json:"prompt"`
	OutputText *string        `json:"output_text"`
	OutputJSON map[string]any `json:"output_json"`
	Response   map[string]any `json:"response"`
	Error      *string        `json:"error"`
}

// Analysis is a successful outcome: the validated result plus the audit
// artifacts the caller persists alongside it.
type Analysis struct {
	Result    *AnalysisResult
	Attempts  []Attempt
	Request   map[string]any
	RawOutput map[string]any
}

// AnalysisError is the domain failure raised when no attempt produced a
// valid result. It carries the full attempt trail for the audit columns.
type AnalysisError struct {
	Attempts []Attempt
}

func (e *AnalysisError) Error() string { return "LLM analysis failed" }

// LastError returns the error recorded on the final attempt, or "" when
// nothing was attempted.
func (e *AnalysisError) LastError() string {
	if len(e.Attempts) == 0 {
		return ""
	}
	if last := e.Attempts[len(e.Attempts)-1].Error; last != nil {
		return *last
	}
	return ""
}

// Client drives the attempt loop around a provider: prompt, call, parse,
// validate, and re-prompt in strict mode until the retry budget runs out.
// The provider timeout bounds each call; the client never retries past an
// insufficient_quota failure.
type Client struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger

	// sleep is swapped out in tests to avoid real inter-attempt pauses.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient wraps a provider with the retry policy from cfg.
func NewClient(provider Provider, cfg config.LLMConfig) *Client {
	return &Client{
		provider:   provider,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
}

// Analyze runs up to maxRetries+1 attempts against the provider and returns
// either the validated result or an AnalysisError carrying every attempt.
// The first attempt uses the standard prompt; later ones the strict
// re-prompt. Attempts are separated by a 2 second pause.
func (c *Client) Analyze(ctx context.Context, inputText string) (*Analysis, error) {
	standardPrompt := BuildPrompt(inputText)
	retryPrompt := BuildRetryPrompt(inputText)

	var attempts []Attempt
	for k := 0; k <= c.maxRetries; k++ {
		if k > 0 {
			if err := c.sleep(ctx, retryDelay); err != nil {
				return nil, &AnalysisError{Attempts: attempts}
			}
		}
		prompt := standardPrompt
		if k > 0 {
			prompt = retryPrompt
		}
		request := map[string]any{
			"prompt":          prompt,
			"provider":        c.provider.Name(),
			"model":           c.provider.Model(),
			"timeout_seconds": int(c.timeout / time.Second),
			"max_retries":     c.maxRetries,
			"temperature":     nil,
			"max_tokens":      nil,
		}

		c.logger.Info("LLM attempt",
			"provider", c.provider.Name(), "model", c.provider.Model(), "attempt", k+1)

		resp, err := c.provider.Generate(ctx, prompt)
		if err != nil {
			msg := "provider_error: " + err.Error()
			attempts = append(attempts, Attempt{Prompt: prompt, Error: &msg})
			c.logger.Warn("LLM attempt failed",
				"provider", c.provider.Name(), "model", c.provider.Model(),
				"attempt", k+1, "error", msg)
			if IsInsufficientQuota(err) {
				return nil, &AnalysisError{Attempts: attempts}
			}
			continue
		}

		result, outputJSON, parseErr := ParseAnalysisResult(resp.OutputText)
		if parseErr != nil {
			msg := classifyParseError(parseErr)
			attempts = append(attempts, Attempt{
				Prompt:     prompt,
				OutputText: &resp.OutputText,
				Response:   resp.Response,
				Error:      &msg,
			})
			c.logger.Warn("LLM attempt failed",
				"provider", c.provider.Name(), "model", c.provider.Model(),
				"attempt", k+1, "error", msg, "output_snippet", snippet(resp.OutputText))
			continue
		}

		attempts = append(attempts, Attempt{
			Prompt:     prompt,
			OutputText: &resp.OutputText,
			OutputJSON: outputJSON,
			Response:   resp.Response,
		})
		c.logger.Info("LLM attempt succeeded",
			"provider", c.provider.Name(), "model", c.provider.Model(), "attempt", k+1)
		return &Analysis{
			Result:   result,
			Attempts: attempts,
			Request:  request,
			RawOutput: map[string]any{
				"error":       nil,
				"response":    resp.Response,
				"output_text": resp.OutputText,
				"output_json": outputJSON,
			},
		}, nil
	}
	return nil, &AnalysisError{Attempts: attempts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func snippet(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
