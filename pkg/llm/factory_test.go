package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelstream/newsflow/pkg/config"
)

func TestNewProvider(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		cfg := testLLMConfig()
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		assert.Equal(t, "openai", provider.Name())
		assert.Equal(t, "gpt-4o-mini", provider.Model())
	})

	t.Run("openai without key", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.OpenAIAPIKey = ""
		_, err := NewProvider(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OPENAI_API_KEY is required")
	})

	t.Run("gemini", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.Provider = config.ProviderGemini
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		assert.Equal(t, "gemini", provider.Name())
		assert.Equal(t, "gemini-3-flash-preview", provider.Model())
	})

	t.Run("gemini without key", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.Provider = config.ProviderGemini
		cfg.GoogleAPIKey = ""
		_, err := NewProvider(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GOOGLE_API_KEY is required")
	})

	t.Run("openai with custom endpoint", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.OpenAIBaseURL = "http://127.0.0.1:9090/v1/"
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:9090/v1", provider.(*OpenAIProvider).baseURL)
	})
}

func TestBuildInputText(t *testing.T) {
	assert.Equal(t, "Title: A\nURL: https://x.com/a\nContent: body",
		BuildInputText("A", "https://x.com/a", "body"))
	assert.Equal(t, "Title: A\nContent: body", BuildInputText("A", "", "body"))
	assert.Equal(t, "Title: A", BuildInputText("A", "", ""))
}
