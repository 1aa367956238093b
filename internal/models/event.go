package models

// Event names sent over notification channels.
const (
	EventStatusUpdate   = "payment_status_update"
	EventPaymentSuccess = "payment_success"
	EventOpenChannel    = "open_channel"
)

// StatusUpdateEvent is the normalized form of a raw bot status payload.
type StatusUpdateEvent struct {
	// Invoice is the resolved invoice number, set once the invoice is located.
	Invoice string `json:"invoice,omitempty"`
	// Message is the transfer message the bot observed (usually the invoice number).
	Message string `json:"message,omitempty"`
	// Sender is the payer address the bot observed.
	Sender            string `json:"sender,omitempty"`
	Status            string `json:"status"`
	AmountPaid        int64  `json:"amount_paid"`
	AmountUnconfirmed int64  `json:"amount_unconfirmed"`
}

// PaymentSuccessEvent is emitted to every channel registered for an invoice
// once it is fully paid.
type PaymentSuccessEvent struct {
	Invoice    string `json:"invoice"`
	Status     string `json:"status"`
	AmountPaid int64  `json:"amount_paid"`
	PaidAt     int64  `json:"paid_at"`
}

// OpenChannelRequest asks the external payment bot to watch the chain for a
// single invoice.
type OpenChannelRequest struct {
	Asset       string `json:"asset"`
	Message     string `json:"message"`
	Sender      string `json:"sender,omitempty"`
	Recipient   string `json:"recipient"`
	Amount      int64  `json:"amount"`
	MaxDuration int64  `json:"maxDuration"`
}

// SweepTotal is the per-invoice outcome of one reconciliation sweep.
type SweepTotal struct {
	Total   int64 `json:"total"`
	Matched int   `json:"matched"`
}

// SweepSummary maps normalized invoice numbers to their sweep outcome.
type SweepSummary map[string]SweepTotal
