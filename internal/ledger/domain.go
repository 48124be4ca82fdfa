// Package ledger integrates with the accounting service where invoices
// and receipts are materialized.
package ledger

import (
	"context"

	"github.com/paperledger/paperledger/internal/extract"
)

// Party is a customer entity in the accounting service.
type Party struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Repository is the port the pipeline consumes for ledger writes. Created
// entities belong entirely to the accounting service; the pipeline keeps
// only the returned identifier for its trail.
type Repository interface {
	// FindParty resolves a customer by exact case-insensitive name match,
	// returning nil when absent.
	FindParty(ctx context.Context, name string) (*Party, error)
	// CreateParty registers a new customer.
	CreateParty(ctx context.Context, name string) (*Party, error)
	// CreateInvoice materializes an invoice for the party and returns its id.
	CreateInvoice(ctx context.Context, party Party, rec extract.Record) (int64, error)
	// CreateReceipt materializes a receipt for the party and returns its id.
	CreateReceipt(ctx context.Context, party Party, rec extract.Record) (int64, error)
}
