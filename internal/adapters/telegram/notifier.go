package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"polyEdgeBot/internal/ports"
)

const (
	maxMessageLength = 4096
	// Telegram allows about one message per second to a single chat.
	sendInterval = time.Second
	sendBurst    = 3
)

// sender is the part of *tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes operator alerts to a Telegram chat.
type Notifier struct {
	api     sender
	chatID  int64
	limiter *rate.Limiter
	logger  ports.Logger
}

// NewNotifier authorizes the bot token and returns a notifier bound to chatID.
func NewNotifier(token string, chatID int64, logger ports.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info(context.Background(), "Telegram bot authorized", map[string]interface{}{"username": api.Self.UserName})
	return newNotifier(api, chatID, logger), nil
}

func newNotifier(api sender, chatID int64, logger ports.Logger) *Notifier {
	return &Notifier{
		api:     api,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(sendInterval), sendBurst),
		logger:  logger,
	}
}

// Notify sends the message, split into Telegram-sized chunks.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	for _, part := range splitMessage(message, maxMessageLength) {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram send throttled: %w", err)
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		if _, err := n.api.Send(msg); err != nil {
			n.logger.Error(ctx, err, "Failed to send telegram message")
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// splitMessage breaks text into chunks of at most maxLength bytes on rune boundaries.
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}
	var parts []string
	start, last := 0, 0
	for i := range text {
		if i-start > maxLength {
			parts = append(parts, text[start:last])
			start = last
		}
		last = i
	}
	if len(text)-start > maxLength {
		parts = append(parts, text[start:last])
		start = last
	}
	return append(parts, text[start:])
}

// Nop discards alerts. Used when no bot token is configured.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string) error { return nil }
