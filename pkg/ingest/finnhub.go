package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelstream/newsflow/pkg/config"
)

// UpstreamError describes a non-2xx response from the news API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
}

// Retryable reports whether the status is worth another attempt: 429 and
// 5xx are, other 4xx are not.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// FinnhubClient fetches company news from the Finnhub REST API.
type FinnhubClient struct {
	cfg        config.UpstreamConfig
	httpClient *http.Client
	backoff    func(attempt int, retryAfter time.Duration) time.Duration
}

// NewFinnhubClient builds a client with separate connect and overall request
// timeouts.
func NewFinnhubClient(cfg config.UpstreamConfig) *FinnhubClient {
	return &FinnhubClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
		backoff: backoffDelay,
	}
}

// CompanyNews fetches articles for symbol between from and to, inclusive
// calendar dates in YYYY-MM-DD form. Transport errors, 429, and 5xx are
// retried up to the configured attempt budget; a numeric Retry-After header
// overrides the exponential backoff. Other 4xx fail immediately.
func (c *FinnhubClient) CompanyNews(ctx context.Context, symbol, from, to string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", from)
	params.Set("to", to)
	params.Set("token", c.cfg.Token)
	endpoint := fmt.Sprintf("%s/company-news?%s", strings.TrimRight(c.cfg.BaseURL, "/"), params.Encode())

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		items, retryAfter, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return items, nil
		}
		lastErr = err

		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) && !upstreamErr.Retryable() {
			return nil, err
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.backoff(attempt, retryAfter)
		slog.Warn("Upstream fetch failed, retrying",
			"symbol", symbol, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("company news fetch for %s failed after %d attempts: %w",
		symbol, c.cfg.MaxAttempts, lastErr)
}

// fetchOnce performs a single request. The returned duration is the parsed
// Retry-After hint, zero when absent.
func (c *FinnhubClient) fetchOnce(ctx context.Context, endpoint string) ([]map[string]any, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build upstream request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, 0, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return items, 0, nil
}

// parseRetryAfter understands only the numeric seconds form of the header.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// backoffDelay doubles per attempt: 1s, 2s, 4s. A Retry-After hint wins.
func backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}
