package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes payment anomalies to an ops Telegram chat. Settlement
// ambiguities need a human to reconcile against the gateway dashboard, so
// they go somewhere people actually look.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// New returns a disabled notifier when token or chat ID are unset; Alert
// calls then only log.
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	n := &Notifier{chatID: chatID, log: log}
	if token == "" || chatID == 0 {
		return n, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	n.bot = bot
	return n, nil
}

func (n *Notifier) Alert(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if n.log != nil {
		n.log.Warn("ops alert", "text", text)
	}
	if n.bot == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil && n.log != nil {
		n.log.Error("send ops alert", "err", err)
	}
}
