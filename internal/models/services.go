package models

import (
	"context"

	"github.com/nem-pay/conciliare/internal/chain"
)

// ChainGateway reads an account's incoming transaction history from the
// blockchain gateway, one page at a time, newest first. A zero cursor
// requests the most recent page.
type ChainGateway interface {
	IncomingTransactions(ctx context.Context, address string, idCursor int64) ([]chain.TransactionRecord, error)
}

// NotificationService delivers events to client channels. Delivery is
// best-effort, fire-and-forget.
type NotificationService interface {
	Send(channelID, event string, payload interface{})
	Broadcast(invoiceNumber, event string, payload interface{})
	RegisterInvoiceChannel(invoiceNumber, channelID string)
	// PaymentSuccess emits the payment success event to every channel
	// registered for the invoice.
	PaymentSuccess(invoice *Invoice)
}

// ReconcilerService runs reconciliation sweeps.
type ReconcilerService interface {
	// Sweep reconciles all pending invoices of a recipient against its
	// incoming transaction history. Sweeps for the same recipient are
	// serialized; distinct recipients run concurrently.
	Sweep(ctx context.Context, recipient string) (SweepSummary, error)
	Start(ctx context.Context)
}

// ForwarderService consumes raw external bot payloads.
type ForwarderService interface {
	HandleStatusUpdate(ctx context.Context, originChannel string, payload []byte) error
}

// BotService is the outbound side of the external payment bot protocol.
type BotService interface {
	OpenChannel(ctx context.Context, req *OpenChannelRequest) error
}
