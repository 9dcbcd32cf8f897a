package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sentinelstream/newsflow/pkg/config"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider calls the Gemini generateContent API.
type GeminiProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewGeminiProvider builds an adapter from the shared LLM config. baseURL
// overrides the hosted endpoint; pass "" outside tests.
func NewGeminiProvider(cfg config.LLMConfig, baseURL string) *GeminiProvider {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiProvider{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.GoogleAPIKey,
		model:      cfg.GeminiModel,
	}
}

func (p *GeminiProvider) Name() string { return config.ProviderGemini }

func (p *GeminiProvider) Model() string { return p.model }

// Generate performs a single generateContent call. HTTP 429 and the
// RESOURCE_EXHAUSTED status both indicate quota exhaustion.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (*GenerateResponse, error) {
	body, err := json.Marshal(map[string]any{
		"contents": []any{
			map[string]any{"parts": []any{map[string]any{"text": prompt}}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, decoded, err := readProviderBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyGeminiError(resp.StatusCode, raw, decoded)
	}

	text := extractGeminiText(decoded)
	if text == "" {
		return nil, &ProviderError{Message: "gemini response missing output text"}
	}
	return &GenerateResponse{OutputText: text, Response: decoded}, nil
}

func classifyGeminiError(status int, body []byte, decoded map[string]any) *ProviderError {
	var grpcStatus, message string
	if errObj, ok := decoded["error"].(map[string]any); ok {
		grpcStatus, _ = errObj["status"].(string)
		message, _ = errObj["message"].(string)
	}
	if message == "" {
		message = fallbackErrorMessage(body, status)
	}
	provErr := &ProviderError{
		Message: fmt.Sprintf("gemini returned HTTP %d: %s", status, message),
	}
	if status == http.StatusTooManyRequests || grpcStatus == "RESOURCE_EXHAUSTED" {
		provErr.Code = CodeInsufficientQuota
	}
	return provErr
}

// extractGeminiText concatenates the text parts of the first candidate.
func extractGeminiText(decoded map[string]any) string {
	candidates, _ := decoded["candidates"].([]any)
	if len(candidates) == 0 {
		return ""
	}
	first, ok := candidates[0].(map[string]any)
	if !ok {
		return ""
	}
	content, ok := first["content"].(map[string]any)
	if !ok {
		return ""
	}
	parts, _ := content["parts"].([]any)
	var sb strings.Builder
	for _, part := range parts {
		block, ok := part.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := block["text"].(string); ok {
			sb.WriteString(text)
		}
	}
	return sb.String()
}
