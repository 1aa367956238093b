package models

// Invoice status values. Transitions move toward a terminal state; the
// paid/overpaid/paid_partly distinction may be recomputed as more
// transactions are observed.
const (
	StatusNotPaid = "not_paid"
	// StatusIdentified is assigned at creation when the payer address is
	// known up front; recompute never produces it.
	StatusIdentified  = "identified"
	StatusUnconfirmed = "unconfirmed"
	StatusPaidPartly  = "paid_partly"
	StatusPaid        = "paid"
	StatusOverpaid    = "overpaid"
	StatusExpired     = "expired"
)

// PendingStatuses are the states in which an invoice still takes part in
// reconciliation sweeps.
func PendingStatuses() []string {
	return []string{StatusNotPaid, StatusIdentified, StatusUnconfirmed, StatusPaidPartly}
}

// Invoice represents a payment request in the system.
type Invoice struct {
	// Number is the unique human-readable invoice number (prefix + counter).
	// Immutable once assigned.
	Number string `json:"number" gorm:"column:number;primaryKey"`
	// Seq is the numeric counter part of the number, used to allocate the next one.
	Seq int64 `json:"seq" gorm:"column:seq;index"`
	// Payer is the address expected to send the payment. Optional.
	Payer string `json:"payer" gorm:"column:payer;index"`
	// Recipient is the address that receives the payment.
	Recipient string `json:"recipient" gorm:"column:recipient;index;not null"`
	// Amount is the requested amount in smallest currency units.
	Amount int64 `json:"amount" gorm:"column:amount;not null"`
	// AmountPaid is the confirmed total matched so far. Never decreased by reconciliation.
	AmountPaid int64 `json:"amount_paid" gorm:"column:amount_paid"`
	// AmountUnconfirmed is the total seen in unconfirmed transactions.
	AmountUnconfirmed int64 `json:"amount_unconfirmed" gorm:"column:amount_unconfirmed"`
	// Status is the reconciliation state, derived from AmountPaid vs Amount.
	Status string `json:"status" gorm:"column:status;index"`
	// IsPaid is true once AmountPaid covers Amount.
	IsPaid bool `json:"is_paid" gorm:"column:is_paid;index"`
	// PaidAt is the Unix timestamp of the paid transition. Set once.
	PaidAt int64 `json:"paid_at" gorm:"column:paid_at"`
	// CreatedAt is the Unix timestamp when the invoice was created.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
	// UpdatedAt is the Unix timestamp of the last state change.
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at"`
	// Channels are the forwarding channels registered for this invoice. Append-only.
	Channels []InvoiceChannel `json:"channels,omitempty" gorm:"foreignKey:InvoiceNumber;references:Number;constraint:OnDelete:CASCADE"`
}

// InvoiceChannel associates a notification channel with an invoice.
type InvoiceChannel struct {
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// InvoiceNumber is the foreign key to the Invoice.
	InvoiceNumber string `json:"invoice_number" gorm:"column:invoice_number;index"`
	// ChannelID identifies the client notification channel.
	ChannelID string `json:"channel_id" gorm:"column:channel_id"`
}

// ApplyTotal applies a recomputed matched total to the invoice and derives
// status and IsPaid from it. AmountPaid never decreases, so re-applying an
// identical or partial total is a no-op. Returns whether the invoice changed
// and whether it crossed into paid with this application.
func (i *Invoice) ApplyTotal(total int64, now int64) (changed, becamePaid bool) {
	if i.Status == StatusExpired {
		return false, false
	}
	if total > i.AmountPaid {
		i.AmountPaid = total
		changed = true
	}
	prevStatus := i.Status
	wasPaid := i.IsPaid
	i.recompute(now)
	if i.Status != prevStatus {
		changed = true
	}
	if changed {
		i.UpdatedAt = now
	}
	return changed, i.IsPaid && !wasPaid
}

// ApplyUnconfirmed records the unconfirmed total. It never sets IsPaid and
// never overrides a confirmed payment state.
func (i *Invoice) ApplyUnconfirmed(amount int64, now int64) (changed bool) {
	if i.Status == StatusExpired || i.IsPaid {
		return false
	}
	if i.AmountUnconfirmed != amount {
		i.AmountUnconfirmed = amount
		changed = true
	}
	if i.AmountPaid == 0 && amount > 0 && i.Status != StatusUnconfirmed {
		i.Status = StatusUnconfirmed
		changed = true
	}
	if changed {
		i.UpdatedAt = now
	}
	return changed
}

// ApplyStatusUpdate applies an external status update event using the same
// recompute rule as reconciliation.
func (i *Invoice) ApplyStatusUpdate(e *StatusUpdateEvent, now int64) (changed, becamePaid bool) {
	if e.Status == StatusUnconfirmed {
		return i.ApplyUnconfirmed(e.AmountUnconfirmed, now), false
	}
	if e.AmountUnconfirmed != i.AmountUnconfirmed && !i.IsPaid && i.Status != StatusExpired {
		i.AmountUnconfirmed = e.AmountUnconfirmed
		i.UpdatedAt = now
		changed = true
	}
	totalChanged, becamePaid := i.ApplyTotal(e.AmountPaid, now)
	return changed || totalChanged, becamePaid
}

func (i *Invoice) recompute(now int64) {
	switch {
	case i.Amount > 0 && i.AmountPaid > i.Amount:
		i.Status = StatusOverpaid
		i.markPaid(now)
	case i.Amount > 0 && i.AmountPaid >= i.Amount:
		i.Status = StatusPaid
		i.markPaid(now)
	case i.AmountPaid > 0:
		i.Status = StatusPaidPartly
	case i.AmountUnconfirmed > 0:
		i.Status = StatusUnconfirmed
	}
}

func (i *Invoice) markPaid(now int64) {
	i.IsPaid = true
	if i.PaidAt == 0 {
		i.PaidAt = now
	}
}
