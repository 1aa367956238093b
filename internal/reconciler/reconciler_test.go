package reconciler

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nem-pay/conciliare/internal/chain"
	"github.com/nem-pay/conciliare/internal/config"
	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/logger"
	"github.com/nem-pay/conciliare/pkg/validation"
)

type fakeRepo struct {
	mu       sync.Mutex
	invoices map[string]*models.Invoice
	saves    int
	saveErr  error
}

func newFakeRepo(invoices ...*models.Invoice) *fakeRepo {
	r := &fakeRepo{invoices: make(map[string]*models.Invoice)}
	for _, inv := range invoices {
		r.invoices[inv.Number] = inv
	}
	return r
}

func (r *fakeRepo) CreateInvoice(invoice *models.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[invoice.Number] = invoice
	return nil
}

func (r *fakeRepo) GetInvoice(number string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoices[validation.NormalizeInvoiceNumber(number)], nil
}

func (r *fakeRepo) GetInvoiceByPayer(address string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.Payer == validation.NormalizeAddress(address) && !inv.IsPaid {
			return inv, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) PendingInvoices(recipient string) ([]*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*models.Invoice
	for _, inv := range r.invoices {
		for _, status := range models.PendingStatuses() {
			if inv.Status == status && inv.Recipient == validation.NormalizeAddress(recipient) {
				pending = append(pending, inv)
			}
		}
	}
	return pending, nil
}

func (r *fakeRepo) PendingRecipients() ([]string, error) {
	return nil, nil
}

func (r *fakeRepo) SaveInvoice(invoice *models.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.invoices[invoice.Number] = invoice
	return nil
}

func (r *fakeRepo) AddInvoiceChannel(number, channelID string) error { return nil }

func (r *fakeRepo) ExpireInvoicesBefore(timestamp int64) error { return nil }

type fakeGateway struct {
	mu        sync.Mutex
	pages     map[int64][]chain.TransactionRecord
	errors    map[int64]error
	addresses []string
	cursors   []int64
}

func (g *fakeGateway) IncomingTransactions(ctx context.Context, address string, idCursor int64) ([]chain.TransactionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addresses = append(g.addresses, address)
	g.cursors = append(g.cursors, idCursor)
	if err, ok := g.errors[idCursor]; ok {
		return nil, err
	}
	return g.pages[idCursor], nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	successes []string
}

func (n *fakeNotifier) Send(channelID, event string, payload interface{})      {}
func (n *fakeNotifier) Broadcast(number, event string, payload interface{})    {}
func (n *fakeNotifier) RegisterInvoiceChannel(invoiceNumber, channelID string) {}

func (n *fakeNotifier) PaymentSuccess(invoice *models.Invoice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, invoice.Number)
}

func (n *fakeNotifier) paid() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.successes...)
}

func testConfig() *config.Config {
	return &config.Config{
		PageSize:      2,
		MosaicFQN:     "nem:xem",
		Divisibility:  6,
		SweepInterval: time.Minute,
		SweepTimeout:  time.Minute,
		InvoiceTTL:    24 * time.Hour,
	}
}

func transfer(id int64, message string, amount int64) chain.TransactionRecord {
	r := chain.TransactionRecord{
		Meta: chain.TransactionMeta{
			ID:   id,
			Hash: chain.Hash{Data: fmt.Sprintf("hash-%d", id)},
		},
		Transaction: chain.Transaction{
			Type:      chain.TypeTransfer,
			Amount:    amount,
			Recipient: "TRECIPIENT",
			Signer:    "TSIGNER",
		},
	}
	if message != "" {
		r.Transaction.Message = &chain.Message{
			Type:    chain.MessagePlain,
			Payload: hex.EncodeToString([]byte(message)),
		}
	}
	return r
}

func wrap(r chain.TransactionRecord) chain.TransactionRecord {
	inner := r.Transaction
	r.Transaction = chain.Transaction{
		Type:       chain.TypeMultisig,
		OtherTrans: &inner,
	}
	r.Meta.InnerHash = chain.Hash{Data: "inner-" + r.Meta.Hash.Data}
	return r
}

func newTestReconciler(repo models.Repository, gateway models.ChainGateway, notifier models.NotificationService) models.ReconcilerService {
	return NewReconciler(repo, gateway, notifier, logger.NewNop(), testConfig())
}

func TestSweepAccumulatesAcrossPages(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo := newFakeRepo(invoice)
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{
		0: {
			transfer(12, "inv1", 400000), // matching is case-insensitive
			transfer(11, "SOMETHING ELSE", 999),
		},
		11: {
			transfer(10, "INV1", 600000),
		},
	}}
	notifier := &fakeNotifier{}

	summary, err := newTestReconciler(repo, gateway, notifier).Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)

	assert.Equal(t, models.SweepTotal{Total: 1000000, Matched: 2}, summary["INV1"])
	assert.Equal(t, []int64{0, 11}, gateway.cursors, "full page continues from the last seen id")
	assert.Equal(t, []string{"TRECIPIENT", "TRECIPIENT"}, gateway.addresses, "recipient threads through every page request")

	saved, _ := repo.GetInvoice("INV1")
	assert.Equal(t, models.StatusPaid, saved.Status)
	assert.Equal(t, int64(1000000), saved.AmountPaid)
	assert.True(t, saved.IsPaid)
	assert.Equal(t, []string{"INV1"}, notifier.paid())
	assert.Equal(t, 1, repo.saves)
}

func TestSweepIsIdempotent(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo := newFakeRepo(invoice)
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{
		0: {transfer(12, "INV1", 400000)},
	}}
	notifier := &fakeNotifier{}
	engine := newTestReconciler(repo, gateway, notifier)

	_, err := engine.Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	first, _ := repo.GetInvoice("INV1")
	snapshot := *first
	require.Equal(t, models.StatusPaidPartly, snapshot.Status)

	// Same unchanged transaction set: the second sweep re-scans the history,
	// recomputes an identical total and must leave the invoice as it was.
	_, err = engine.Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	second, _ := repo.GetInvoice("INV1")
	assert.Equal(t, snapshot, *second)
	assert.Empty(t, notifier.paid())
	assert.Equal(t, 1, repo.saves)
}

func TestSweepCarriesForwardEarlierPayments(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo := newFakeRepo(invoice)
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{
		0: {transfer(12, "INV1", 400000)},
	}}
	notifier := &fakeNotifier{}
	engine := newTestReconciler(repo, gateway, notifier)

	_, err := engine.Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	saved, _ := repo.GetInvoice("INV1")
	require.Equal(t, int64(400000), saved.AmountPaid)
	require.Equal(t, models.StatusPaidPartly, saved.Status)

	// A second transfer lands on top of the history. The next sweep must sum
	// all matched transactions, not just the one it has not seen before.
	gateway.mu.Lock()
	gateway.pages[0] = []chain.TransactionRecord{
		transfer(13, "INV1", 600000),
		transfer(12, "INV1", 400000),
	}
	gateway.mu.Unlock()

	summary, err := engine.Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	assert.Equal(t, models.SweepTotal{Total: 1000000, Matched: 2}, summary["INV1"])

	saved, _ = repo.GetInvoice("INV1")
	assert.Equal(t, int64(1000000), saved.AmountPaid)
	assert.Equal(t, models.StatusPaid, saved.Status)
	assert.True(t, saved.IsPaid)
	assert.Equal(t, []string{"INV1"}, notifier.paid())
}

func TestSweepCountsOverlappingPagesOnce(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo := newFakeRepo(invoice)
	// The second page repeats the last transaction of the first; the scan
	// must stop there instead of double counting it.
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{
		0: {
			transfer(12, "INV1", 400000),
			transfer(11, "INV1", 600000),
		},
		11: {
			transfer(11, "INV1", 600000),
			transfer(10, "SOMETHING ELSE", 999),
		},
	}}
	notifier := &fakeNotifier{}

	summary, err := newTestReconciler(repo, gateway, notifier).Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)

	assert.Equal(t, models.SweepTotal{Total: 1000000, Matched: 2}, summary["INV1"])
	saved, _ := repo.GetInvoice("INV1")
	assert.Equal(t, models.StatusPaid, saved.Status)
}

func TestSweepOverpaidViaMultisig(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV2",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo := newFakeRepo(invoice)
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{
		0: {wrap(transfer(5, "INV2", 1200000))},
	}}
	notifier := &fakeNotifier{}

	summary, err := newTestReconciler(repo, gateway, notifier).Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)

	assert.Equal(t, int64(1200000), summary["INV2"].Total, "amount read from the inner transaction")
	saved, _ := repo.GetInvoice("INV2")
	assert.Equal(t, models.StatusOverpaid, saved.Status)
	assert.True(t, saved.IsPaid)
}

func TestSweepGatewayFailureDiscardsPartialTotals(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo := newFakeRepo(invoice)
	gateway := &fakeGateway{
		pages: map[int64][]chain.TransactionRecord{
			0: {
				transfer(12, "INV1", 400000),
				transfer(11, "SOMETHING ELSE", 999),
			},
		},
		errors: map[int64]error{11: fmt.Errorf("gateway down")},
	}
	notifier := &fakeNotifier{}
	engine := newTestReconciler(repo, gateway, notifier)

	_, err := engine.Sweep(context.Background(), "TRECIPIENT")
	require.Error(t, err)

	saved, _ := repo.GetInvoice("INV1")
	assert.Zero(t, saved.AmountPaid, "partial page totals are not committed")
	assert.Equal(t, models.StatusNotPaid, saved.Status)
	assert.Zero(t, repo.saves)

	// Gateway recovers: the retry re-scans the first page from scratch.
	gateway.mu.Lock()
	delete(gateway.errors, 11)
	gateway.pages[11] = []chain.TransactionRecord{transfer(10, "INV1", 600000)}
	gateway.mu.Unlock()

	summary, err := engine.Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), summary["INV1"].Total)
	saved, _ = repo.GetInvoice("INV1")
	assert.Equal(t, models.StatusPaid, saved.Status)
}

func TestSweepStoreFailureAllowsRetry(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo := newFakeRepo(invoice)
	repo.saveErr = fmt.Errorf("store down")
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{
		0: {transfer(9, "INV1", 1000000)},
	}}
	notifier := &fakeNotifier{}
	engine := newTestReconciler(repo, gateway, notifier)

	_, err := engine.Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err, "a failed save is logged, not fatal")
	assert.Zero(t, repo.saves)

	// Every sweep recomputes from the full history, so the retry counts the
	// same transaction again once the store recovers.
	repo.mu.Lock()
	repo.saveErr = nil
	repo.invoices["INV1"] = &models.Invoice{
		Number:    "INV1",
		Recipient: "TRECIPIENT",
		Amount:    1000000,
		Status:    models.StatusNotPaid,
	}
	repo.mu.Unlock()

	summary, err := engine.Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), summary["INV1"].Total)
	saved, _ := repo.GetInvoice("INV1")
	assert.Equal(t, models.StatusPaid, saved.Status)
	assert.Equal(t, 1, repo.saves)
}

func TestSweepWithoutPendingInvoices(t *testing.T) {
	repo := newFakeRepo()
	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}

	summary, err := newTestReconciler(repo, gateway, notifier).Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Empty(t, gateway.cursors, "no gateway call without pending invoices")
}

func TestSweepMatchesBySenderAddress(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV3",
		Payer:     "TSIGNER",
		Recipient: "TRECIPIENT",
		Amount:    500000,
		Status:    models.StatusIdentified,
	}
	repo := newFakeRepo(invoice)
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{
		0: {transfer(7, "", 500000)}, // no message, matched via signer
	}}
	notifier := &fakeNotifier{}

	summary, err := newTestReconciler(repo, gateway, notifier).Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)

	assert.Equal(t, models.SweepTotal{Total: 500000, Matched: 1}, summary["INV3"])
	saved, _ := repo.GetInvoice("INV3")
	assert.Equal(t, models.StatusPaid, saved.Status)
}

func TestSweepIgnoresNonTransferTypes(t *testing.T) {
	invoice := &models.Invoice{
		Number:    "INV4",
		Recipient: "TRECIPIENT",
		Amount:    500000,
		Status:    models.StatusNotPaid,
	}
	record := transfer(8, "INV4", 500000)
	record.Transaction.Type = 0x801 // importance transfer

	repo := newFakeRepo(invoice)
	gateway := &fakeGateway{pages: map[int64][]chain.TransactionRecord{0: {record}}}
	notifier := &fakeNotifier{}

	summary, err := newTestReconciler(repo, gateway, notifier).Sweep(context.Background(), "TRECIPIENT")
	require.NoError(t, err)
	assert.Equal(t, models.SweepTotal{Total: 0, Matched: 0}, summary["INV4"])

	saved, _ := repo.GetInvoice("INV4")
	assert.Equal(t, models.StatusNotPaid, saved.Status)
}
