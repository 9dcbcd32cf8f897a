package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("NEWSFLOW_TEST_VAR", "")
	assert.Equal(t, "fallback", GetEnvOrDefault("NEWSFLOW_TEST_VAR", "fallback"))

	t.Setenv("NEWSFLOW_TEST_VAR", "set")
	assert.Equal(t, "set", GetEnvOrDefault("NEWSFLOW_TEST_VAR", "fallback"))
}

func TestIntFromEnv(t *testing.T) {
	t.Setenv("NEWSFLOW_TEST_INT", "")
	n, err := IntFromEnv("NEWSFLOW_TEST_INT", 42)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	t.Setenv("NEWSFLOW_TEST_INT", "7")
	n, err = IntFromEnv("NEWSFLOW_TEST_INT", 42)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	t.Setenv("NEWSFLOW_TEST_INT", "seven")
	_, err = IntFromEnv("NEWSFLOW_TEST_INT", 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEnv)
	assert.Contains(t, err.Error(), "NEWSFLOW_TEST_INT")
}

func TestMissingEnvError(t *testing.T) {
	var err error = &MissingEnvError{Names: []string{"POSTGRES_HOST", "POSTGRES_USER"}}
	assert.Equal(t, "missing required environment variables: POSTGRES_HOST, POSTGRES_USER", err.Error())
	assert.ErrorIs(t, err, ErrMissingEnv)

	var missing *MissingEnvError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"POSTGRES_HOST", "POSTGRES_USER"}, missing.Names)
}

func TestLoadLLMConfigDefaults(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "LLM_TIMEOUT_SECONDS", "LLM_MAX_RETRIES",
		"OPENAI_API_KEY", "OPENAI_MODEL", "GOOGLE_API_KEY", "GEMINI_MODEL",
		"OPENAI_BASE_URL", "GEMINI_BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg := LoadLLMConfigFromEnv()
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, DefaultOpenAIModel, cfg.OpenAIModel)
	assert.Equal(t, DefaultGeminiModel, cfg.GeminiModel)
	assert.Empty(t, cfg.OpenAIAPIKey)
	assert.Empty(t, cfg.OpenAIBaseURL)
}

func TestLoadLLMConfigReadsBaseURLOverrides(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "http://127.0.0.1:9090/v1")
	t.Setenv("GEMINI_BASE_URL", "http://127.0.0.1:9091/v1beta")

	cfg := LoadLLMConfigFromEnv()
	assert.Equal(t, "http://127.0.0.1:9090/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, "http://127.0.0.1:9091/v1beta", cfg.GeminiBaseURL)
}

func TestLoadLLMConfigCoercesUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	assert.Equal(t, ProviderGemini, LoadLLMConfigFromEnv().Provider)

	t.Setenv("LLM_PROVIDER", " OpenAI ")
	assert.Equal(t, ProviderOpenAI, LoadLLMConfigFromEnv().Provider)

	t.Setenv("LLM_PROVIDER", "GEMINI")
	assert.Equal(t, ProviderGemini, LoadLLMConfigFromEnv().Provider)
}

func TestLoadLLMConfigForgivesBadNumerics(t *testing.T) {
	t.Setenv("LLM_TIMEOUT_SECONDS", "soon")
	t.Setenv("LLM_MAX_RETRIES", "")
	cfg := LoadLLMConfigFromEnv()
	assert.Equal(t, 20*time.Second, cfg.Timeout)

	t.Setenv("LLM_TIMEOUT_SECONDS", "-5")
	cfg = LoadLLMConfigFromEnv()
	assert.Equal(t, 20*time.Second, cfg.Timeout, "non-positive timeouts fall back to the default")

	t.Setenv("LLM_TIMEOUT_SECONDS", "45")
	t.Setenv("LLM_MAX_RETRIES", "1")
	cfg = LoadLLMConfigFromEnv()
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
}

func TestLoadQueueConfigFromEnv(t *testing.T) {
	for _, key := range []string{"WORKER_POLL_SECONDS", "WORKER_VISIBILITY_TIMEOUT_SECONDS",
		"WORKER_MAX_ATTEMPTS", "WORKER_COUNT"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadQueueConfigFromEnv(10, 1)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 1, cfg.BatchSize)
	assert.Equal(t, 300*time.Second, cfg.VisibilityTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1, cfg.WorkerCount)

	// Environment overrides win over the flag values.
	t.Setenv("WORKER_POLL_SECONDS", "3")
	t.Setenv("WORKER_VISIBILITY_TIMEOUT_SECONDS", "120")
	t.Setenv("WORKER_MAX_ATTEMPTS", "5")
	t.Setenv("WORKER_COUNT", "4")
	cfg, err = LoadQueueConfigFromEnv(10, 2)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 2, cfg.BatchSize)
	assert.Equal(t, 120*time.Second, cfg.VisibilityTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 4, cfg.WorkerCount)

	t.Setenv("WORKER_MAX_ATTEMPTS", "many")
	_, err = LoadQueueConfigFromEnv(10, 1)
	assert.ErrorIs(t, err, ErrInvalidEnv)
}

func TestLoadIntakeConfigFromEnv(t *testing.T) {
	t.Setenv("INTAKE_LATEST_PER_RUN_PER_TICKER", "")
	t.Setenv("INTAKE_DAILY_MAX_PER_TICKER", "")

	cfg, err := LoadIntakeConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.LatestPerRun)
	assert.Equal(t, 100, cfg.DailyMax)

	t.Setenv("INTAKE_LATEST_PER_RUN_PER_TICKER", "5")
	t.Setenv("INTAKE_DAILY_MAX_PER_TICKER", "50")
	cfg, err = LoadIntakeConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.LatestPerRun)
	assert.Equal(t, 50, cfg.DailyMax)

	t.Setenv("INTAKE_DAILY_MAX_PER_TICKER", "lots")
	_, err = LoadIntakeConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidEnv)
}

func TestLoadUpstreamConfigFromEnv(t *testing.T) {
	t.Setenv("FINNHUB_TOKEN", "")

	// A fetching run without a token is a misconfiguration.
	_, err := LoadUpstreamConfigFromEnv(false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingEnv)
	var missing *MissingEnvError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"FINNHUB_TOKEN"}, missing.Names)

	// Replay never fetches, so the token is optional.
	cfg, err := LoadUpstreamConfigFromEnv(true)
	require.NoError(t, err)
	assert.Empty(t, cfg.Token)
	assert.Equal(t, "https://finnhub.io/api/v1", cfg.BaseURL)
	assert.Equal(t, 3, cfg.MaxAttempts)

	t.Setenv("FINNHUB_TOKEN", "sandbox-token")
	cfg, err = LoadUpstreamConfigFromEnv(false)
	require.NoError(t, err)
	assert.Equal(t, "sandbox-token", cfg.Token)
}

func TestLoadRetentionConfigFromEnv(t *testing.T) {
	for _, key := range []string{"RETENTION_RAW_DAYS", "RETENTION_RUNS_DAYS",
		"RETENTION_INTERVAL_HOURS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadRetentionConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, cfg.RawRetention)
	assert.Equal(t, 90*24*time.Hour, cfg.RunRetention)
	assert.Equal(t, 12*time.Hour, cfg.Interval)

	t.Setenv("RETENTION_RAW_DAYS", "7")
	t.Setenv("RETENTION_RUNS_DAYS", "0")
	t.Setenv("RETENTION_INTERVAL_HOURS", "-1")
	cfg, err = LoadRetentionConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.RawRetention)
	assert.Zero(t, cfg.RunRetention, "zero disables the policy")
	assert.Equal(t, 12*time.Hour, cfg.Interval, "non-positive interval falls back to the default")

	t.Setenv("RETENTION_RAW_DAYS", "month")
	_, err = LoadRetentionConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidEnv)
}
