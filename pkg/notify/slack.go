// Package notify delivers best-effort operator notifications to Slack via an
// incoming webhook. Delivery failures are logged, never returned: a missing
// or broken webhook must not affect pipeline outcomes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/sentinelstream/newsflow/pkg/models"
)

const webhookTimeout = 10 * time.Second

// Service posts notifications to a Slack incoming webhook.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewService builds a Service from the SLACK_WEBHOOK_URL environment
// variable. Returns nil when it is unset, which disables notifications.
func NewService() *Service {
	url := os.Getenv("SLACK_WEBHOOK_URL")
	if url == "" {
		slog.Warn("SLACK_WEBHOOK_URL not configured, Slack notifications disabled")
		return nil
	}
	return NewServiceWithWebhook(url)
}

// NewServiceWithWebhook creates a Service for an explicit webhook URL.
// Useful for testing with a mock webhook server.
func NewServiceWithWebhook(url string) *Service {
	return &Service{
		webhookURL: url,
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     slog.Default().With("component", "slack-notifier"),
	}
}

// SendAlert posts a formatted alert. level selects the emoji: info, warning,
// error, or success. Fail-open: the error is logged and swallowed.
func (s *Service) SendAlert(ctx context.Context, title, message, level string) {
	if s == nil {
		return
	}

	text, blocks := buildAlert(title, message, level)
	msg := &goslack.WebhookMessage{
		Text:   text,
		Blocks: &goslack.Blocks{BlockSet: blocks},
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	if err := goslack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
		s.logger.Error("Failed to send Slack notification", "title", title, "error", err)
		return
	}
	s.logger.Info("Slack notification sent", "title", title)
}

// NotifyRunFinished posts a one-line ingestion run summary. It satisfies the
// runner's notifier interface.
func (s *Service) NotifyRunFinished(ctx context.Context, run *models.IngestionRun) {
	if s == nil || run == nil {
		return
	}

	level := "success"
	if run.Status != models.RunStatusSucceeded {
		level = "error"
	}

	title := fmt.Sprintf("Ingestion run %s: %s", run.Status, run.JobName)
	s.SendAlert(ctx, title, buildRunSummary(run), level)
}
