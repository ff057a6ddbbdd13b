package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts notifications to a chat webhook (Slack-compatible
// payload shape).
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook channel with the given per-delivery
// timeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies this channel in dispatch logs.
func (w *WebhookNotifier) Name() string { return "webhook" }

type webhookPayload struct {
	Text string `json:"text"`
}

// Notify posts the notification as a single-line message.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	text := fmt.Sprintf("[%s] %s", n.Severity, n.Title)
	if n.Region != "" {
		text += fmt.Sprintf(" (region=%s generation=%d)", n.Region, n.Generation)
	}
	if n.Detail != "" {
		text += ": " + n.Detail
	}

	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Ensure WebhookNotifier implements Notifier.
var _ Notifier = (*WebhookNotifier)(nil)
