package reconciler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nem-pay/conciliare/internal/chain"
	"github.com/nem-pay/conciliare/internal/config"
	"github.com/nem-pay/conciliare/internal/metrics"
	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/logger"
	"github.com/nem-pay/conciliare/pkg/validation"
)

// housekeepingInterval drives invoice expiry.
const housekeepingInterval = 5 * time.Minute

// accumulator gathers matched transactions for one invoice during a sweep.
type accumulator struct {
	invoice *models.Invoice
	records []chain.TransactionRecord
	total   int64
}

// Reconciler maps on-chain incoming transfers to pending invoices and keeps
// invoice state in step with the observed transaction set.
type Reconciler struct {
	logger *logger.Logger
	cfg    *config.Config

	repo     models.Repository
	gateway  models.ChainGateway
	notifier models.NotificationService

	secret []byte

	// group serializes sweeps per recipient address.
	group singleflight.Group
}

// NewReconciler creates a new Reconciler instance.
func NewReconciler(
	repo models.Repository,
	gateway models.ChainGateway,
	notifier models.NotificationService,
	logger *logger.Logger,
	cfg *config.Config,
) models.ReconcilerService {
	return &Reconciler{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		secret:   cfg.SecretKey(),
	}
}

// Start runs the periodic sweep loop and invoice expiry until the context is
// cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(housekeepingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.logger.Debug("Expiring stale unpaid invoices")
				cutoff := time.Now().Add(-r.cfg.InvoiceTTL).Unix()
				if err := r.repo.ExpireInvoicesBefore(cutoff); err != nil {
					r.logger.Error("Failed to expire invoices ", "error ", err)
				}
			}
		}
	}()

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepAll(ctx)
		}
	}
}

func (r *Reconciler) sweepAll(ctx context.Context) {
	recipients, err := r.repo.PendingRecipients()
	if err != nil {
		r.logger.Error("Failed to list pending recipients ", "error ", err)
		return
	}
	for _, recipient := range recipients {
		go func(addr string) {
			if _, err := r.Sweep(ctx, addr); err != nil {
				r.logger.Error("Sweep failed ", "recipient ", addr, " error ", err)
			}
		}(recipient)
	}
}

// Sweep reconciles all pending invoices of a recipient. Concurrent calls for
// the same recipient share one execution; distinct recipients run in
// parallel. Each sweep runs under its own deadline so a stalled gateway
// cannot pin a recipient forever.
func (r *Reconciler) Sweep(ctx context.Context, recipient string) (models.SweepSummary, error) {
	recipient = validation.NormalizeAddress(recipient)
	v, err, _ := r.group.Do(recipient, func() (interface{}, error) {
		sweepCtx, cancel := context.WithTimeout(ctx, r.cfg.SweepTimeout)
		defer cancel()
		summary, err := r.sweep(sweepCtx, recipient)
		if err != nil {
			metrics.SweepsCompleted.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.SweepsCompleted.WithLabelValues("ok").Inc()
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(models.SweepSummary), nil
}

func (r *Reconciler) sweep(ctx context.Context, recipient string) (models.SweepSummary, error) {
	invoices, err := r.repo.PendingInvoices(recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending invoices: %w", err)
	}
	if len(invoices) == 0 {
		return models.SweepSummary{}, nil
	}

	byNumber := make(map[string]*accumulator, len(invoices))
	byPayer := make(map[string]*accumulator, len(invoices))
	for _, invoice := range invoices {
		acc := &accumulator{invoice: invoice}
		byNumber[validation.NormalizeInvoiceNumber(invoice.Number)] = acc
		if invoice.Payer != "" {
			byPayer[validation.NormalizeAddress(invoice.Payer)] = acc
		}
	}

	// Hashes observed so far in this sweep. Pages may overlap when new
	// transactions land mid-scan; hitting a known hash means the cursor
	// wrapped into history this sweep already counted. The set is rebuilt
	// every sweep: each sweep re-scans the full history so totals are the
	// sum of all matched transactions, not just the newly observed ones.
	seen := make(map[string]struct{})

	var cursor int64
	for {
		page, err := r.gateway.IncomingTransactions(ctx, recipient, cursor)
		if err != nil {
			// Accumulated totals from this sweep are discarded, not
			// partially committed; the next trigger retries from scratch.
			return nil, fmt.Errorf("sweep aborted for %s: %w", recipient, err)
		}
		metrics.PagesFetched.Inc()

		wrapped := false
		for i := range page {
			record := &page[i]
			metrics.TransactionsScanned.Inc()

			hash := chain.ExtractHash(record, true)
			if hash == "" {
				// Malformed record, unmatchable.
				continue
			}
			if _, ok := seen[hash]; ok {
				wrapped = true
				break
			}
			seen[hash] = struct{}{}

			if !record.Transaction.IsTransfer() {
				continue
			}
			message, err := r.decodeMessage(record)
			if err != nil {
				r.logger.Error("Failed to decode transfer message ", "hash ", hash, " error ", err)
				continue
			}

			acc := byNumber[validation.NormalizeInvoiceNumber(message)]
			if acc == nil {
				acc = byPayer[validation.NormalizeAddress(record.Transaction.Content().Signer)]
			}
			if acc == nil {
				continue
			}
			amount := chain.ExtractAmount(record, r.cfg.MosaicFQN, r.cfg.Divisibility)
			if amount <= 0 {
				continue
			}
			acc.records = append(acc.records, *record)
			acc.total += amount
			metrics.TransactionsMatched.Inc()
		}

		// Totals are final only once pagination terminates: either the feed
		// is exhausted (short page) or the scan wrapped into known history.
		if wrapped || len(page) < r.cfg.PageSize {
			break
		}
		last := chain.ExtractID(&page[len(page)-1])
		if last <= 0 {
			break
		}
		cursor = last
	}

	now := time.Now().Unix()
	summary := make(models.SweepSummary, len(byNumber))
	for number, acc := range byNumber {
		summary[number] = models.SweepTotal{Total: acc.total, Matched: len(acc.records)}

		changed, becamePaid := acc.invoice.ApplyTotal(acc.total, now)
		if !changed {
			continue
		}
		if err := r.repo.SaveInvoice(acc.invoice); err != nil {
			// The next sweep recomputes the same total from full history.
			r.logger.Error("Failed to persist invoice ", "number ", number, " error ", err)
			continue
		}
		r.logger.Info("Invoice updated ", "number ", number, " status ", acc.invoice.Status, " amountPaid ", acc.invoice.AmountPaid)
		if becamePaid {
			metrics.InvoicesPaid.Inc()
			r.notifier.PaymentSuccess(acc.invoice)
		}
	}
	return summary, nil
}

func (r *Reconciler) decodeMessage(record *chain.TransactionRecord) (string, error) {
	content := record.Transaction.Content()
	if content.Message != nil && content.Message.Type == chain.MessageEncrypted {
		if len(r.secret) == 0 {
			return "", fmt.Errorf("encrypted message but no secret configured")
		}
		return chain.DecryptMessage(record, r.secret)
	}
	return chain.ExtractMessage(record)
}
