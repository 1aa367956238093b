package notifier

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/logger"
)

// TelegramNotifier pushes operator notifications about paid invoices to a
// fixed chat.
type TelegramNotifier struct {
	logger *logger.Logger
	bot    *bot.Bot
	chatID string
}

func NewTelegramNotifier(logger *logger.Logger, token, chatID string) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{logger: logger, bot: b, chatID: chatID}, nil
}

func (t *TelegramNotifier) NotifyPaid(invoice *models.Invoice) {
	text := fmt.Sprintf("Invoice %s is %s: %d of %d units received",
		invoice.Number, invoice.Status, invoice.AmountPaid, invoice.Amount)
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}
	if _, err := t.bot.SendMessage(context.Background(), params); err != nil {
		t.logger.Error("Failed to send telegram notification: ", err)
	}
}
