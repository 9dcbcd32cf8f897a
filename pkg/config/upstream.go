package config

import (
	"os"
	"time"
)

// UpstreamConfig parameterizes the Finnhub company-news client.
type UpstreamConfig struct {
	// Token authenticates every upstream request.
	Token string

	// BaseURL is the API root, overridable for tests.
	BaseURL string

	// RequestTimeout bounds one HTTP exchange end to end.
	RequestTimeout time.Duration

	// ConnectTimeout bounds TCP/TLS establishment inside RequestTimeout.
	ConnectTimeout time.Duration

	// MaxAttempts is the total call budget per request (first try included).
	MaxAttempts int
}

// DefaultUpstreamConfig returns the built-in upstream settings.
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:        "https://finnhub.io/api/v1",
		RequestTimeout: 10 * time.Second,
		ConnectTimeout: 5 * time.Second,
		MaxAttempts:    3,
	}
}

// LoadUpstreamConfigFromEnv reads FINNHUB_TOKEN. The token is optional when
// replayOnly is set because a replay run never fetches.
func LoadUpstreamConfigFromEnv(replayOnly bool) (UpstreamConfig, error) {
	cfg := DefaultUpstreamConfig()
	cfg.Token = os.Getenv("FINNHUB_TOKEN")
	if cfg.Token == "" && !replayOnly {
		return UpstreamConfig{}, &MissingEnvError{Names: []string{"FINNHUB_TOKEN"}}
	}
	return cfg, nil
}
