// internal/notify/telegram.go
package notify

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxTelegramMessage = 4096

// TelegramNotifier sends completion notifications to Telegram chats.
// Targets look like "telegram:<chat-id>".
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier creates a notifier with the given bot token.
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramNotifier{bot: bot}, nil
}

// Handler returns the registry handler for "telegram:" targets.
func (t *TelegramNotifier) Handler() Handler {
	return func(target string, n Notification) error {
		chatID, err := parseChatID(target)
		if err != nil {
			return err
		}

		text := n.Summary
		if n.Failed {
			text = "❌ " + text
		} else {
			text = "✅ " + text
		}
		return t.send(chatID, text)
	}
}

func (t *TelegramNotifier) send(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := t.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := t.bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			slog.Debug("sent notification without markdown", "chat", chatID)
		}
	}
	return nil
}

func parseChatID(target string) (int64, error) {
	raw, ok := strings.CutPrefix(target, "telegram:")
	if !ok {
		return 0, fmt.Errorf("invalid telegram target: %s", target)
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", raw, err)
	}
	return chatID, nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		// Never split a multibyte character across parts.
		for end < len(text) && end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == 0 {
			// Not valid UTF-8; fall back to a byte split.
			end = maxTelegramMessage
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
