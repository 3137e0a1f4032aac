// Package notify delivers operator messages over a configured channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazz-dev/uptimebot/internal/config"
	"github.com/hazz-dev/uptimebot/internal/telegram"
)

// Notifier delivers a text message to a recipient. Delivery is best effort;
// callers log the error and move on.
type Notifier interface {
	Send(ctx context.Context, recipient int64, text string) error
}

// New builds the notifier selected by cfg.Notify.Type. The telegram
// notifier shares client with the bot poller.
func New(cfg *config.Config, client *telegram.Client, logger *slog.Logger) (Notifier, error) {
	switch cfg.Notify.Type {
	case config.NotifyTelegram:
		if client == nil {
			return nil, fmt.Errorf("telegram notifier requires a client")
		}
		return NewTelegram(client), nil
	case config.NotifyWebhook:
		return NewWebhook(cfg.Notify.WebhookURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier type %q", cfg.Notify.Type)
	}
}
