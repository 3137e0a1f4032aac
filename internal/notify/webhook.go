package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Webhook posts alerts as JSON to a fixed URL.
type Webhook struct {
	url    string
	client *http.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewWebhook creates a Webhook notifier. Pass nil logger to use the default logger.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		logger: logger,
	}
}

type webhookPayload struct {
	Recipient int64  `json:"recipient"`
	Text      string `json:"text"`
	SentAt    string `json:"sent_at"`
	Source    string `json:"source"`
}

func (w *Webhook) Send(ctx context.Context, recipient int64, text string) error {
	body, err := json.Marshal(webhookPayload{
		Recipient: recipient,
		Text:      text,
		SentAt:    w.now().UTC().Format(time.RFC3339),
		Source:    "uptimebot",
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook returned non-2xx status", "url", w.url, "status", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
