package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pendingInvoice(amount int64) *Invoice {
	return &Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    amount,
		Status:    StatusNotPaid,
		CreatedAt: 1000,
		UpdatedAt: 1000,
	}
}

func TestApplyTotalTransitions(t *testing.T) {
	inv := pendingInvoice(1000000)

	changed, becamePaid := inv.ApplyTotal(400000, 2000)
	assert.True(t, changed)
	assert.False(t, becamePaid)
	assert.Equal(t, StatusPaidPartly, inv.Status)
	assert.Equal(t, int64(400000), inv.AmountPaid)
	assert.False(t, inv.IsPaid)

	changed, becamePaid = inv.ApplyTotal(1000000, 3000)
	assert.True(t, changed)
	assert.True(t, becamePaid)
	assert.Equal(t, StatusPaid, inv.Status)
	assert.True(t, inv.IsPaid)
	assert.Equal(t, int64(3000), inv.PaidAt)
}

func TestApplyTotalOverpaid(t *testing.T) {
	inv := pendingInvoice(1000000)

	changed, becamePaid := inv.ApplyTotal(1200000, 2000)
	assert.True(t, changed)
	assert.True(t, becamePaid)
	assert.Equal(t, StatusOverpaid, inv.Status)
	assert.Equal(t, int64(1200000), inv.AmountPaid)
}

func TestApplyTotalIsIdempotent(t *testing.T) {
	inv := pendingInvoice(1000000)
	inv.ApplyTotal(1000000, 2000)
	snapshot := *inv

	changed, becamePaid := inv.ApplyTotal(1000000, 9000)
	assert.False(t, changed)
	assert.False(t, becamePaid, "already paid, no second paid transition")
	assert.Equal(t, snapshot, *inv)
}

func TestAmountPaidNeverDecreases(t *testing.T) {
	inv := pendingInvoice(1000000)
	inv.ApplyTotal(600000, 2000)

	changed, _ := inv.ApplyTotal(400000, 3000)
	assert.False(t, changed)
	assert.Equal(t, int64(600000), inv.AmountPaid)
	assert.Equal(t, StatusPaidPartly, inv.Status)
}

func TestPaidAtSetOnce(t *testing.T) {
	inv := pendingInvoice(1000000)
	inv.ApplyTotal(1000000, 2000)
	inv.ApplyTotal(1500000, 5000)

	assert.Equal(t, int64(2000), inv.PaidAt)
	assert.Equal(t, StatusOverpaid, inv.Status)
}

func TestExpiredIsTerminal(t *testing.T) {
	inv := pendingInvoice(1000000)
	inv.Status = StatusExpired

	changed, becamePaid := inv.ApplyTotal(1000000, 2000)
	assert.False(t, changed)
	assert.False(t, becamePaid)
	assert.Equal(t, StatusExpired, inv.Status)
	assert.Zero(t, inv.AmountPaid)
}

func TestApplyUnconfirmed(t *testing.T) {
	inv := pendingInvoice(1000000)

	changed := inv.ApplyUnconfirmed(500000, 2000)
	assert.True(t, changed)
	assert.Equal(t, StatusUnconfirmed, inv.Status)
	assert.Equal(t, int64(500000), inv.AmountUnconfirmed)
	assert.False(t, inv.IsPaid)
	assert.Zero(t, inv.PaidAt)
}

func TestApplyUnconfirmedDoesNotOverridePaid(t *testing.T) {
	inv := pendingInvoice(1000000)
	inv.ApplyTotal(1000000, 2000)

	changed := inv.ApplyUnconfirmed(1, 3000)
	assert.False(t, changed)
	assert.Equal(t, StatusPaid, inv.Status)
}

func TestApplyStatusUpdateUnconfirmedOnly(t *testing.T) {
	inv := pendingInvoice(1000000)

	changed, becamePaid := inv.ApplyStatusUpdate(&StatusUpdateEvent{
		Status:            StatusUnconfirmed,
		AmountUnconfirmed: 1000000,
	}, 2000)
	assert.True(t, changed)
	assert.False(t, becamePaid)
	assert.Equal(t, int64(1000000), inv.AmountUnconfirmed)
	assert.Zero(t, inv.AmountPaid)
	assert.False(t, inv.IsPaid)
}

func TestApplyStatusUpdatePaid(t *testing.T) {
	inv := pendingInvoice(1000000)
	inv.AmountUnconfirmed = 1000000
	inv.Status = StatusUnconfirmed

	changed, becamePaid := inv.ApplyStatusUpdate(&StatusUpdateEvent{
		Status:     StatusPaid,
		AmountPaid: 1000000,
	}, 2000)
	assert.True(t, changed)
	assert.True(t, becamePaid)
	assert.Equal(t, StatusPaid, inv.Status)
	assert.Zero(t, inv.AmountUnconfirmed, "confirmed update clears the unconfirmed total")
}
