// Package llm turns news events into schema-validated sentiment verdicts.
// Provider adapters make exactly one HTTP call per generate; the client
// owns the retry-with-reprompt loop and the per-attempt audit trail.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// CodeInsufficientQuota marks quota or billing exhaustion. The analysis loop
// stops immediately on it because re-prompting cannot help.
const CodeInsufficientQuota = "insufficient_quota"

// maxResponseBytes caps how much of a provider response is buffered.
const maxResponseBytes = 4 << 20

// GenerateResponse is one raw provider exchange.
type GenerateResponse struct {
	// OutputText is the extracted text content.
	OutputText string
	// Response is the decoded response body, kept verbatim for the audit
	// trail.
	Response map[string]any
}

// Provider is a single hosted-model API. Implementations perform exactly one
// HTTP call per Generate; retries belong to the orchestration loop.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string) (*GenerateResponse, error)
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// IsInsufficientQuota reports whether err is a quota/billing failure.
func IsInsufficientQuota(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr) && provErr.Code == CodeInsufficientQuota
}

// readProviderBody buffers and best-effort-decodes a response body. Error
// bodies are not always JSON, so a decode failure leaves the map nil rather
// than failing the call.
func readProviderBody(resp *http.Response) ([]byte, map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read provider response: %w", err)
	}
	var decoded map[string]any
	if len(data) > 0 {
		_ = json.Unmarshal(data, &decoded)
	}
	return data, decoded, nil
}
