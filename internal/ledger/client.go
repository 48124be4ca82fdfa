package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paperledger/paperledger/internal/extract"
)

// DefaultPaymentMethod is used for receipts whose text carried no payment
// method field.
const DefaultPaymentMethod = "Cash"

// Client talks to a Bigcapital style accounting API. It implements
// Repository over HTTP with bearer authentication.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs an accounting service client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type customerEnvelope struct {
	Data []Party `json:"data"`
}

type entryPayload struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
}

type invoicePayload struct {
	CustomerID    int64          `json:"customer_id"`
	InvoiceDate   string         `json:"invoice_date,omitempty"`
	DueDate       string         `json:"due_date,omitempty"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	Entries       []entryPayload `json:"entries"`
}

type receiptPayload struct {
	ReceiptNumber string  `json:"receipt_number,omitempty"`
	CustomerID    int64   `json:"customer_id"`
	PaymentDate   string  `json:"payment_date,omitempty"`
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
}

type createdEnvelope struct {
	ID int64 `json:"id"`
}

// FindParty searches customers and returns the exact case-insensitive
// name match, nil when no customer matches.
func (c *Client) FindParty(ctx context.Context, name string) (*Party, error) {
	query := url.Values{"search": {name}}
	var envelope customerEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/customers?"+query.Encode(), nil, &envelope); err != nil {
		return nil, fmt.Errorf("ledger: find party: %w", err)
	}
	for _, p := range envelope.Data {
		if strings.EqualFold(p.Name, name) {
			party := p
			return &party, nil
		}
	}
	return nil, nil
}

// CreateParty registers a new customer in the accounting service.
func (c *Client) CreateParty(ctx context.Context, name string) (*Party, error) {
	payload := struct {
		Name string `json:"name"`
	}{Name: name}
	var party Party
	if err := c.do(ctx, http.MethodPost, "/api/customers", payload, &party); err != nil {
		return nil, fmt.Errorf("ledger: create party: %w", err)
	}
	return &party, nil
}

// CreateInvoice materializes an invoice from the extracted record.
func (c *Client) CreateInvoice(ctx context.Context, party Party, rec extract.Record) (int64, error) {
	payload := invoicePayload{CustomerID: party.ID}
	if rec.ReferenceNumber != nil {
		payload.InvoiceNumber = *rec.ReferenceNumber
	}
	if rec.IssueDate != nil {
		payload.InvoiceDate = *rec.IssueDate
	}
	if rec.DueDate != nil {
		payload.DueDate = *rec.DueDate
	}
	for _, item := range rec.LineItems {
		payload.Entries = append(payload.Entries, entryPayload{
			Description: item.Description,
			Quantity:    item.Quantity,
			Rate:        item.UnitRate,
		})
	}

	var created createdEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/invoices", payload, &created); err != nil {
		return 0, fmt.Errorf("ledger: create invoice: %w", err)
	}
	return created.ID, nil
}

// CreateReceipt materializes a receipt from the extracted record.
func (c *Client) CreateReceipt(ctx context.Context, party Party, rec extract.Record) (int64, error) {
	payload := receiptPayload{
		CustomerID:    party.ID,
		PaymentMethod: DefaultPaymentMethod,
	}
	if rec.ReferenceNumber != nil {
		payload.ReceiptNumber = *rec.ReferenceNumber
	}
	if rec.IssueDate != nil {
		payload.PaymentDate = *rec.IssueDate
	}
	if rec.TotalAmount != nil {
		payload.Amount = *rec.TotalAmount
	}
	if rec.PaymentMethod != nil && *rec.PaymentMethod != "" {
		payload.PaymentMethod = *rec.PaymentMethod
	}

	var created createdEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/receipts", payload, &created); err != nil {
		return 0, fmt.Errorf("ledger: create receipt: %w", err)
	}
	return created.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("accounting service returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
