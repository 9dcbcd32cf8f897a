package notify

import (
	"fmt"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/sentinelstream/newsflow/pkg/models"
)

const maxBlockTextLength = 2900

var levelEmoji = map[string]string{
	"info":    ":information_source:",
	"warning": ":warning:",
	"error":   ":rotating_light:",
	"success": ":white_check_mark:",
}

// buildAlert creates the fallback text plus Block Kit blocks for an alert:
// a plain-text header and a markdown section.
func buildAlert(title, message, level string) (string, []goslack.Block) {
	emoji := levelEmoji[level]
	if emoji == "" {
		emoji = ":loudspeaker:"
	}

	text := fmt.Sprintf("%s %s: %s", emoji, title, firstLine(message))

	blocks := []goslack.Block{
		goslack.NewHeaderBlock(
			goslack.NewTextBlockObject(goslack.PlainTextType, fmt.Sprintf("%s %s", emoji, title), true, false),
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(message), false, false),
			nil, nil,
		),
	}
	return text, blocks
}

// buildRunSummary renders the counters of a finished ingestion run as
// markdown lines.
func buildRunSummary(run *models.IngestionRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Tickers:* %d  *Fetched:* %d  *Inserted:* %d  *Deduped:* %d",
		len(run.Tickers), run.FetchedCount, run.InsertedCount, run.DedupedCount)
	fmt.Fprintf(&b, "\n*Window:* %s → %s",
		run.WindowFrom.UTC().Format(time.RFC3339), run.WindowTo.UTC().Format(time.RFC3339))
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		fmt.Fprintf(&b, "\n*Error:* %s", *run.ErrorMessage)
	}
	return b.String()
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
