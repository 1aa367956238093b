package notifier

import (
	"runtime/debug"

	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/logger"
)

// Notificator fans payment events out to the client channel hub and, when
// configured, to the operator telegram chat.
type Notificator struct {
	logger *logger.Logger

	hub      *Hub
	telegram *TelegramNotifier
}

// NewNotificator creates a new Notificator instance. telegram may be nil.
func NewNotificator(logger *logger.Logger, hub *Hub, telegram *TelegramNotifier) models.NotificationService {
	return &Notificator{logger: logger, hub: hub, telegram: telegram}
}

// safeCall runs a function with panic recovery
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) Send(channelID, event string, payload interface{}) {
	n.hub.Send(channelID, event, payload)
}

func (n *Notificator) Broadcast(invoiceNumber, event string, payload interface{}) {
	n.hub.Broadcast(invoiceNumber, event, payload)
}

func (n *Notificator) RegisterInvoiceChannel(invoiceNumber, channelID string) {
	n.hub.RegisterInvoiceChannel(invoiceNumber, channelID)
}

// PaymentSuccess emits the payment success event to every channel registered
// for the invoice and notifies the operator.
func (n *Notificator) PaymentSuccess(invoice *models.Invoice) {
	event := &models.PaymentSuccessEvent{
		Invoice:    invoice.Number,
		Status:     invoice.Status,
		AmountPaid: invoice.AmountPaid,
		PaidAt:     invoice.PaidAt,
	}
	n.logger.Info("Sending payment success ", "invoice ", invoice.Number, " amountPaid ", invoice.AmountPaid)
	n.hub.Broadcast(invoice.Number, models.EventPaymentSuccess, event)
	if n.telegram != nil {
		n.safeCall(func() { n.telegram.NotifyPaid(invoice) }, "telegramNotification")
	}
}
