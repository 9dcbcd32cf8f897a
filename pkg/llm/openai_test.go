package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/config"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:     config.ProviderOpenAI,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		OpenAIAPIKey: "sk-test",
		OpenAIModel:  "gpt-4o-mini",
		GoogleAPIKey: "g-test",
		GeminiModel:  "gemini-3-flash-preview",
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	t.Run("extracts output text", func(t *testing.T) {
		var gotAuth, gotPath string
		var gotBody map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotPath = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "resp_1",
				"output": [
					{"type": "message", "content": [
						{"type": "output_text", "text": "first "},
						{"type": "output_text", "text": "second"}
					]}
				]
			}`))
		}))
		defer server.Close()

		provider := NewOpenAIProvider(testLLMConfig(), server.URL)
		resp, err := provider.Generate(context.Background(), "analyze this")
		require.NoError(t, err)
		assert.Equal(t, "first second", resp.OutputText)
		assert.Equal(t, "resp_1", resp.Response["id"])
		assert.Equal(t, "Bearer sk-test", gotAuth)
		assert.Equal(t, "/responses", gotPath)
		assert.Equal(t, "gpt-4o-mini", gotBody["model"])
		assert.Equal(t, "analyze this", gotBody["input"])
	})

	t.Run("prefers top-level output_text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"output_text": "aggregated", "output": []}`))
		}))
		defer server.Close()

		provider := NewOpenAIProvider(testLLMConfig(), server.URL)
		resp, err := provider.Generate(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "aggregated", resp.OutputText)
	})

	t.Run("quota exhaustion maps to insufficient_quota", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`))
		}))
		defer server.Close()

		provider := NewOpenAIProvider(testLLMConfig(), server.URL)
		_, err := provider.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.True(t, IsInsufficientQuota(err))
		assert.Contains(t, err.Error(), "openai returned HTTP 429")
		assert.Contains(t, err.Error(), "You exceeded your current quota")
	})

	t.Run("quota recognized from error type alone", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "quota", "type": "insufficient_quota"}}`))
		}))
		defer server.Close()

		provider := NewOpenAIProvider(testLLMConfig(), server.URL)
		_, err := provider.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.True(t, IsInsufficientQuota(err))
	})

	t.Run("auth failure carries the status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`))
		}))
		defer server.Close()

		provider := NewOpenAIProvider(testLLMConfig(), server.URL)
		_, err := provider.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.False(t, IsInsufficientQuota(err))
		assert.Contains(t, err.Error(), "401")
		assert.Contains(t, err.Error(), "Incorrect API key provided")
	})

	t.Run("non-JSON error body falls back to raw text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("upstream unavailable"))
		}))
		defer server.Close()

		provider := NewOpenAIProvider(testLLMConfig(), server.URL)
		_, err := provider.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai returned HTTP 503: upstream unavailable")
	})

	t.Run("missing output text is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "resp_2", "output": []}`))
		}))
		defer server.Close()

		provider := NewOpenAIProvider(testLLMConfig(), server.URL)
		_, err := provider.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing output text")
	})
}
