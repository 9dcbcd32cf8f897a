package config

import (
	"os"
	"strings"
	"time"
)

// Provider names understood by the LLM factory.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default model identifiers per provider. DefaultGeminiModel doubles as the
// identity recorded on an analysis row when provider construction fails
// before any provider exists.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-3-flash-preview"
)

// LLMConfig selects and parameterizes the analysis provider.
type LLMConfig struct {
	// Provider is "openai" or "gemini". Anything else coerces to gemini.
	Provider string

	// Timeout bounds a single provider call.
	Timeout time.Duration

	// MaxRetries is the number of re-prompts after the first attempt, so the
	// orchestrator makes MaxRetries+1 attempts in total.
	MaxRetries int

	OpenAIAPIKey string
	OpenAIModel  string
	GoogleAPIKey string
	GeminiModel  string

	// Optional custom endpoints for proxies and gateways. Empty means the
	// provider's hosted API.
	OpenAIBaseURL string
	GeminiBaseURL string
}

// LoadLLMConfigFromEnv reads the LLM_* and provider-key variables. Numeric
// values are forgiving: unparseable input falls back to the default, and a
// non-positive timeout is replaced by the default. Missing API keys are not
// an error here; the factory reports them per analysis so the failure lands
// on the audit row instead of killing the worker.
func LoadLLMConfigFromEnv() LLMConfig {
	provider := strings.ToLower(strings.TrimSpace(GetEnvOrDefault("LLM_PROVIDER", ProviderOpenAI)))
	if provider != ProviderOpenAI {
		provider = ProviderGemini
	}

	timeoutSeconds := lenientIntFromEnv("LLM_TIMEOUT_SECONDS", 20)
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}

	return LLMConfig{
		Provider:      provider,
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
		MaxRetries:    lenientIntFromEnv("LLM_MAX_RETRIES", 2),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   GetEnvOrDefault("OPENAI_MODEL", DefaultOpenAIModel),
		GoogleAPIKey:  os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:   GetEnvOrDefault("GEMINI_MODEL", DefaultGeminiModel),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),
	}
}
