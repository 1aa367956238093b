package forwarder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"

	"github.com/nem-pay/conciliare/internal/metrics"
	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/logger"
	"github.com/nem-pay/conciliare/pkg/validation"
)

const (
	// seenCapacity bounds the checksum dedup cache.
	seenCapacity = 8192
	// seenTTL expires dedup entries; payload volume is bounded by invoice
	// count times update count, so this is belt and braces.
	seenTTL = 24 * time.Hour
)

// statusUpdatePayload is the raw inbound bot payload. The bot delivers
// at-least-once with no sequence numbering; integrity relies entirely on the
// checksum dedup here.
type statusUpdatePayload struct {
	Status            string `json:"status"`
	Message           string `json:"message,omitempty"`
	Sender            string `json:"sender,omitempty"`
	AmountPaid        int64  `json:"amountPaid,omitempty"`
	AmountUnconfirmed int64  `json:"amountUnconfirmed,omitempty"`
}

// Forwarder consumes raw external bot events, suppresses duplicates, persists
// the resulting invoice mutation and forwards a normalized event downstream.
type Forwarder struct {
	logger *logger.Logger

	repo     models.Repository
	notifier models.NotificationService

	// seen maps payload checksums to their parsed events, for at-most-once
	// forwarding. The store update stays the source of truth for totals.
	seen *cache.Cache[string, *models.StatusUpdateEvent]
}

// NewForwarder creates a new Forwarder instance.
func NewForwarder(repo models.Repository, notifier models.NotificationService, logger *logger.Logger) models.ForwarderService {
	return &Forwarder{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		seen:     cache.New(cache.AsLRU[string, *models.StatusUpdateEvent](lru.WithCapacity(seenCapacity))),
	}
}

// HandleStatusUpdate processes one raw bot payload. Duplicate payloads are a
// defined, silent no-op. Payloads matching no invoice are logged and dropped.
func (f *Forwarder) HandleStatusUpdate(ctx context.Context, originChannel string, payload []byte) error {
	checksum := sha256.Sum256(payload)
	key := hex.EncodeToString(checksum[:])
	if _, ok := f.seen.Get(key); ok {
		metrics.DuplicateUpdates.Inc()
		f.logger.Debug("Dropping duplicate status update ", "checksum ", key)
		return nil
	}

	var raw statusUpdatePayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("failed to parse status update payload: %w", err)
	}

	event := &models.StatusUpdateEvent{
		Message:           raw.Message,
		Sender:            raw.Sender,
		Status:            raw.Status,
		AmountPaid:        raw.AmountPaid,
		AmountUnconfirmed: raw.AmountUnconfirmed,
	}
	f.seen.Set(key, event, cache.WithExpiration(seenTTL))

	if originChannel != "" {
		f.notifier.Send(originChannel, models.EventStatusUpdate, event)
	}

	invoice, err := f.lookupInvoice(raw.Message, raw.Sender)
	if err != nil {
		f.logger.Error("Failed to look up invoice for status update ", "error ", err)
		return nil
	}
	if invoice == nil {
		metrics.UnmatchedUpdates.Inc()
		f.logger.Warn("No invoice matches status update ", "message ", raw.Message, " sender ", raw.Sender)
		return nil
	}
	event.Invoice = invoice.Number

	if originChannel == "" {
		// Pushed over the shared bot link: forward to the channels that
		// watch this invoice instead of a single originating client.
		f.notifier.Broadcast(invoice.Number, models.EventStatusUpdate, event)
	}
	metrics.EventsForwarded.Inc()

	changed, becamePaid := invoice.ApplyStatusUpdate(event, time.Now().Unix())
	if changed {
		if err := f.repo.SaveInvoice(invoice); err != nil {
			// Drop the checksum so a retried payload can re-apply; the
			// store, not the dedup set, is the source of truth.
			f.seen.Delete(key)
			f.logger.Error("Failed to persist invoice ", "number ", invoice.Number, " error ", err)
			return nil
		}
	}

	if becamePaid {
		metrics.InvoicesPaid.Inc()
		f.notifier.PaymentSuccess(invoice)
	}
	return nil
}

// lookupInvoice resolves the invoice by message-as-number first, falling back
// to a payer address match.
func (f *Forwarder) lookupInvoice(message, sender string) (*models.Invoice, error) {
	number := validation.NormalizeInvoiceNumber(message)
	if number != "" {
		invoice, err := f.repo.GetInvoice(number)
		if err != nil {
			return nil, err
		}
		if invoice != nil {
			return invoice, nil
		}
	}
	if sender == "" {
		return nil, nil
	}
	return f.repo.GetInvoiceByPayer(validation.NormalizeAddress(sender))
}
