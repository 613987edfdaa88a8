// Package slack sends HIGH priority triage notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/triage"
)

const (
	maxPreviewLen = 500
	httpTimeout   = 10 * time.Second
)

// Notifier posts triage records to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify posts rec, routed to destination, to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, rec *triage.EnrichedRecord, destination string) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(rec, destination))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "source_key", rec.SourceKey, "destination", destination)
	return nil
}

func buildMessage(rec *triage.EnrichedRecord, destination string) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(rec),
			fieldsBlock(rec, destination),
			{"type": "divider"},
			previewBlock(rec),
			contextBlock(rec),
		},
	}
}

func headerBlock(rec *triage.EnrichedRecord) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("\U0001f534 %s priority: %s", rec.Priority, rec.SourceKey),
		},
	}
}

func fieldsBlock(rec *triage.EnrichedRecord, destination string) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Sentiment:* %s", rec.Sentiment.Label),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Negative score:* %.2f", rec.Sentiment.Scores.Negative),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Destination:* %s", destination),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func previewBlock(rec *triage.EnrichedRecord) map[string]any {
	text := truncate(rec.Text, maxPreviewLen)
	if text == "" {
		text = "_Empty message._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Message*\n\n%s", text),
		},
	}
}

func contextBlock(rec *triage.EnrichedRecord) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("sift • %s • %s", rec.ArchiveKey, rec.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

// truncate cuts s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-3]) + "..."
}
