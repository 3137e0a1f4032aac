package notify

import (
	"context"
	"fmt"
)

// MessageSender is the subset of the Telegram client the notifier uses.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Telegram sends alerts as direct bot messages; the recipient is a chat id.
type Telegram struct {
	sender MessageSender
}

func NewTelegram(sender MessageSender) *Telegram {
	return &Telegram{sender: sender}
}

func (t *Telegram) Send(ctx context.Context, recipient int64, text string) error {
	if err := t.sender.SendMessage(ctx, recipient, text); err != nil {
		return fmt.Errorf("telegram notify %d: %w", recipient, err)
	}
	return nil
}
