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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls the OpenAI Responses API.
type OpenAIProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAIProvider builds an adapter from the shared LLM config. baseURL
// overrides the hosted endpoint; pass "" outside tests.
func NewOpenAIProvider(cfg config.LLMConfig, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
	}
}

func (p *OpenAIProvider) Name() string { return config.ProviderOpenAI }

func (p *OpenAIProvider) Model() string { return p.model }

// Generate performs a single completion call. Quota and billing failures come
// back as a ProviderError with the insufficient_quota code; every other
// non-200 status is a plain ProviderError carrying the upstream message.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (*GenerateResponse, error) {
	body, err := json.Marshal(map[string]any{
		"model": p.model,
		"input": prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, decoded, err := readProviderBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyOpenAIError(resp.StatusCode, raw, decoded)
	}

	text := extractOpenAIText(decoded)
	if text == "" {
		return nil, &ProviderError{Message: "openai response missing output text"}
	}
	return &GenerateResponse{OutputText: text, Response: decoded}, nil
}

// classifyOpenAIError maps a non-200 response onto a ProviderError. The
// insufficient_quota code is recognized from either error.code or error.type.
func classifyOpenAIError(status int, body []byte, decoded map[string]any) *ProviderError {
	code, typ, message := openAIErrorFields(decoded)
	if message == "" {
		message = fallbackErrorMessage(body, status)
	}
	provErr := &ProviderError{
		Code:    code,
		Message: fmt.Sprintf("openai returned HTTP %d: %s", status, message),
	}
	if code == CodeInsufficientQuota || typ == CodeInsufficientQuota {
		provErr.Code = CodeInsufficientQuota
	}
	return provErr
}

func openAIErrorFields(decoded map[string]any) (code, typ, message string) {
	errObj, ok := decoded["error"].(map[string]any)
	if !ok {
		return "", "", ""
	}
	code, _ = errObj["code"].(string)
	typ, _ = errObj["type"].(string)
	message, _ = errObj["message"].(string)
	return code, typ, message
}

// extractOpenAIText pulls the generated text out of a Responses API payload:
// the output_text parts of every output message, concatenated.
func extractOpenAIText(decoded map[string]any) string {
	if text, ok := decoded["output_text"].(string); ok && text != "" {
		return text
	}
	output, _ := decoded["output"].([]any)
	var sb strings.Builder
	for _, item := range output {
		msg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		content, _ := msg["content"].([]any)
		for _, part := range content {
			block, ok := part.(map[string]any)
			if !ok || block["type"] != "output_text" {
				continue
			}
			if text, ok := block["text"].(string); ok {
				sb.WriteString(text)
			}
		}
	}
	return sb.String()
}

// fallbackErrorMessage substitutes a readable message when the error body has
// no structured error object.
func fallbackErrorMessage(body []byte, status int) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return http.StatusText(status)
	}
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
