package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"MineSafetyAPI/internal/models"
)

type telegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramSender posts alert text to chats through a bot.
type TelegramSender struct {
	api telegramAPI
}

// NewTelegramSender creates the bot without calling getMe, so startup does
// not depend on Telegram being reachable.
func NewTelegramSender(token string) (*TelegramSender, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return &TelegramSender{api: b}, nil
}

func (t *TelegramSender) Send(ctx context.Context, r models.Recipient, message string) models.DeliveryResult {
	chatID, err := strconv.ParseInt(r.Address, 10, 64)
	if err != nil {
		return models.DeliveryResult{Reason: fmt.Sprintf("invalid telegram chat id %q", r.Address), Permanent: true}
	}

	_, err = t.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   message,
	})
	if err == nil {
		return models.DeliveryResult{Delivered: true}
	}

	reason := fmt.Sprintf("telegram send to chat %d failed: %v", chatID, err)
	msg := strings.ToLower(err.Error())
	// blocked bot, deleted chat, malformed request
	if strings.Contains(msg, "forbidden") || strings.Contains(msg, "chat not found") || strings.Contains(msg, "bad request") {
		return models.DeliveryResult{Reason: reason, Permanent: true}
	}
	return models.DeliveryResult{Reason: reason}
}
