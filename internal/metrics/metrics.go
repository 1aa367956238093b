package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conciliare_sweeps_total",
			Help: "Reconciliation sweeps by result.",
		},
		[]string{"result"},
	)
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conciliare_gateway_pages_total",
			Help: "Transaction pages fetched from the chain gateway.",
		},
	)
	TransactionsScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conciliare_transactions_scanned_total",
			Help: "Raw transaction records scanned during sweeps.",
		},
	)
	TransactionsMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conciliare_transactions_matched_total",
			Help: "Transactions matched to a pending invoice.",
		},
	)
	InvoicesPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conciliare_invoices_paid_total",
			Help: "Invoices that reached the paid state.",
		},
	)
	DuplicateUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conciliare_duplicate_updates_total",
			Help: "Bot payloads dropped by checksum dedup.",
		},
	)
	UnmatchedUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conciliare_unmatched_updates_total",
			Help: "Bot payloads with no matching invoice.",
		},
	)
	EventsForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conciliare_events_forwarded_total",
			Help: "Normalized status events forwarded to clients.",
		},
	)
)
