package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/uptimebot/internal/escalation"
	"github.com/hazz-dev/uptimebot/internal/telegram"
)

const (
	defaultPollTimeout = 30 * time.Second
	errorBackoff       = 5 * time.Second
	replyTimeout       = 10 * time.Second
)

// Transport is the subset of the Telegram client the poller uses.
type Transport interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Bot long-polls for messages and answers them through a Handler.
type Bot struct {
	transport   Transport
	handler     *Handler
	pollTimeout time.Duration
	sleep       escalation.SleepFunc
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// New creates a Bot. Pass nil logger to use the default logger.
func New(transport Transport, handler *Handler, pollTimeout time.Duration, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Bot{
		transport:   transport,
		handler:     handler,
		pollTimeout: pollTimeout,
		sleep:       escalation.Sleep,
		logger:      logger,
	}
}

// Start polls in a new goroutine until ctx is cancelled. It is non-blocking.
func (b *Bot) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

// Wait blocks until the polling goroutine has exited.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) run(ctx context.Context) {
	defer b.wg.Done()
	b.logger.Info("bot polling started")

	var offset int64
	for {
		updates, err := b.transport.GetUpdates(ctx, offset, b.pollTimeout)
		if ctx.Err() != nil {
			b.logger.Info("bot polling stopped")
			return
		}
		if err != nil {
			b.logger.Warn("polling updates", "error", err)
			if b.sleep(ctx, errorBackoff) != nil {
				return
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.dispatch(ctx, u)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, u telegram.Update) {
	m := u.Message
	if m == nil || m.From == nil || m.Text == "" {
		return
	}
	reply, ok := b.handler.Handle(ctx, m.From.ID, m.Text)
	if !ok {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	if err := b.transport.SendMessage(sendCtx, m.Chat.ID, reply); err != nil {
		b.logger.Warn("sending reply", "chat", m.Chat.ID, "error", err)
	}
}
