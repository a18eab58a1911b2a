package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// WebhookSender posts alerts to a Discord-compatible webhook
// ({"content": "..."}; Slack accepts the same body under "text").
type WebhookSender struct {
	url    string
	field  string
	client *http.Client
}

// NewDiscordSender creates a sender for a Discord webhook.
func NewDiscordSender(url string) *WebhookSender {
	return &WebhookSender{url: url, field: "content", client: &http.Client{Timeout: 10 * time.Second}}
}

// NewSlackSender creates a sender for a Slack incoming webhook.
func NewSlackSender(url string) *WebhookSender {
	return &WebhookSender{url: url, field: "text", client: &http.Client{Timeout: 10 * time.Second}}
}

// Send posts one alert.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(map[string]string{
		w.field: fmt.Sprintf("**%s**\n%s", title, message),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name implements Sender.
func (w *WebhookSender) Name() string {
	if w.field == "text" {
		return "slack"
	}
	return "discord"
}
