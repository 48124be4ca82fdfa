// Package extract derives structured invoice and receipt records from the
// raw OCR text of archived documents. Extraction is heuristic and pure:
// it performs no I/O and never fails, leaving unmatched fields nil.
package extract

// Kind identifies the document category a record was extracted as.
type Kind string

const (
	// KindInvoice marks documents billed to a counterparty.
	KindInvoice Kind = "invoice"
	// KindReceipt marks documents recording a received payment.
	KindReceipt Kind = "receipt"
)

// LineItem is a single billed line recovered from document text.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitRate    float64 `json:"unit_rate"`
}

// Record holds the fields recovered from one document for one processing
// attempt. Optional fields are nil when no extraction rule matched. A
// Record is transient: it is rebuilt from source text on every attempt and
// never persisted.
type Record struct {
	DocumentID       int64      `json:"document_id"`
	Kind             Kind       `json:"kind"`
	ReferenceNumber  *string    `json:"reference_number,omitempty"`
	IssueDate        *string    `json:"issue_date,omitempty"`
	DueDate          *string    `json:"due_date,omitempty"`
	CounterpartyName *string    `json:"counterparty_name,omitempty"`
	TotalAmount      *float64   `json:"total_amount,omitempty"`
	TaxAmount        *float64   `json:"tax_amount,omitempty"`
	SubtotalAmount   *float64   `json:"subtotal_amount,omitempty"`
	PaymentMethod    *string    `json:"payment_method,omitempty"`
	LineItems        []LineItem `json:"line_items,omitempty"`
}
