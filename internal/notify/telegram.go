package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramChannel posts alert notifications to a Telegram chat via the Bot API.
// Messages use HTML parse mode; RenderHTML escapes untrusted fields.
type TelegramChannel struct {
	client *tgbot.Bot
	chatID any
}

// NewTelegramChannel builds the telegram channel. Incomplete credentials are
// rejected at startup.
func NewTelegramChannel(botToken, chatID string) (*TelegramChannel, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, fmt.Errorf("telegram_bot_token is required")
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("telegram_chat_id is required")
	}

	client, err := tgbot.New(botToken, tgbot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramChannel{client: client, chatID: normalizeChatID(chatID)}, nil
}

// Name implements Channel.
func (c *TelegramChannel) Name() string { return "telegram" }

// Send posts one message to the configured chat.
func (c *TelegramChannel) Send(ctx context.Context, ev Event) error {
	_, err := c.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    c.chatID,
		Text:      RenderHTML(ev),
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps channel
// usernames as strings, matching the Bot API's chat_id union.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
