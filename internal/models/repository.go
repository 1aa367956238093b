package models

type Repository interface {
	// CreateInvoice persists a new invoice, allocating its number from the
	// configured prefix and the next sequence value.
	CreateInvoice(invoice *Invoice) error
	// GetInvoice returns the invoice with the given number, or nil when absent.
	GetInvoice(number string) (*Invoice, error)
	// GetInvoiceByPayer returns the most recent pending invoice for a payer
	// address, or nil when absent.
	GetInvoiceByPayer(address string) (*Invoice, error)
	// PendingInvoices returns all invoices for a recipient that still take
	// part in reconciliation.
	PendingInvoices(recipient string) ([]*Invoice, error)
	// PendingRecipients returns the distinct recipient addresses with pending invoices.
	PendingRecipients() ([]string, error)
	SaveInvoice(invoice *Invoice) error

	// AddInvoiceChannel appends a channel to the invoice's persisted channel
	// list, returned with the invoice by GetInvoice.
	AddInvoiceChannel(number, channelID string) error

	// ExpireInvoicesBefore marks unpaid invoices created before the given
	// Unix timestamp as expired.
	ExpireInvoicesBefore(timestamp int64) error
}
