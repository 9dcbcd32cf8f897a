package llm

import (
	"errors"

	"github.com/sentinelstream/newsflow/pkg/config"
)

// NewProvider builds the provider selected by cfg.Provider. A missing API key
// is an error here so callers can audit it per analysis instead of crashing
// the process.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required")
		}
		return NewOpenAIProvider(cfg, cfg.OpenAIBaseURL), nil
	default:
		if cfg.GoogleAPIKey == "" {
			return nil, errors.New("GOOGLE_API_KEY is required")
		}
		return NewGeminiProvider(cfg, cfg.GeminiBaseURL), nil
	}
}
