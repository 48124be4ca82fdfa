package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperledger/paperledger/internal/archive"
	"github.com/paperledger/paperledger/internal/extract"
	"github.com/paperledger/paperledger/internal/ledger"
	"github.com/paperledger/paperledger/internal/shared"
	"github.com/paperledger/paperledger/internal/source"
)

type memorySourceRepo struct {
	mu        sync.Mutex
	docs      map[int64]*source.Document
	texts     map[int64]string
	readErr   map[int64]error
	listErr   error
	listCalls int
	readCalls int
	tagCalls  int
}

func newMemorySourceRepo() *memorySourceRepo {
	return &memorySourceRepo{
		docs:    make(map[int64]*source.Document),
		texts:   make(map[int64]string),
		readErr: make(map[int64]error),
	}
}

func (r *memorySourceRepo) add(id int64, title, text string, tags ...string) {
	r.docs[id] = &source.Document{ID: id, Title: title, Tags: tags}
	r.texts[id] = text
}

func (r *memorySourceRepo) ListDocuments(ctx context.Context, tagFilter []string) ([]source.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []source.Document
	for _, filter := range tagFilter {
		for _, doc := range r.docs {
			if doc.HasTag(filter) && !contains(out, doc.ID) {
				out = append(out, *doc)
			}
		}
	}
	return out, nil
}

func contains(docs []source.Document, id int64) bool {
	for _, d := range docs {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (r *memorySourceRepo) listCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

func (r *memorySourceRepo) ReadText(ctx context.Context, id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readCalls++
	if err := r.readErr[id]; err != nil {
		return "", err
	}
	return r.texts[id], nil
}

func (r *memorySourceRepo) AddTag(ctx context.Context, id int64, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tagCalls++
	doc, ok := r.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	if !doc.HasTag(name) {
		doc.Tags = append(doc.Tags, name)
	}
	return nil
}

type memoryLedgerRepo struct {
	parties       map[string]*ledger.Party
	nextPartyID   int64
	nextEntityID  int64
	findCalls     int
	createParty   int
	invoices      []extract.Record
	receipts      []extract.Record
	createInvErr  error
	createRcptErr error
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{parties: make(map[string]*ledger.Party), nextEntityID: 100}
}

func (r *memoryLedgerRepo) FindParty(ctx context.Context, name string) (*ledger.Party, error) {
	r.findCalls++
	if p, ok := r.parties[strings.ToLower(name)]; ok {
		return p, nil
	}
	return nil, nil
}

func (r *memoryLedgerRepo) CreateParty(ctx context.Context, name string) (*ledger.Party, error) {
	r.createParty++
	r.nextPartyID++
	p := &ledger.Party{ID: r.nextPartyID, Name: name}
	r.parties[strings.ToLower(name)] = p
	return p, nil
}

func (r *memoryLedgerRepo) CreateInvoice(ctx context.Context, party ledger.Party, rec extract.Record) (int64, error) {
	if r.createInvErr != nil {
		return 0, r.createInvErr
	}
	r.invoices = append(r.invoices, rec)
	r.nextEntityID++
	return r.nextEntityID, nil
}

func (r *memoryLedgerRepo) CreateReceipt(ctx context.Context, party ledger.Party, rec extract.Record) (int64, error) {
	if r.createRcptErr != nil {
		return 0, r.createRcptErr
	}
	r.receipts = append(r.receipts, rec)
	r.nextEntityID++
	return r.nextEntityID, nil
}

type memoryTrail struct {
	entries []archive.Entry
	logs    []archive.LogLine
}

func (t *memoryTrail) RecordEntry(ctx context.Context, entry archive.Entry) error {
	t.entries = append(t.entries, entry)
	return nil
}

func (t *memoryTrail) AppendLog(ctx context.Context, line archive.LogLine) error {
	t.logs = append(t.logs, line)
	return nil
}

func (t *memoryTrail) ListEntries(ctx context.Context, limit int) ([]archive.Entry, error) {
	return t.entries, nil
}

func (t *memoryTrail) ListLogs(ctx context.Context, limit int) ([]archive.LogLine, error) {
	return t.logs, nil
}

func (t *memoryTrail) LastRunTime(ctx context.Context) (*time.Time, error) {
	if len(t.entries) == 0 {
		return nil, nil
	}
	last := t.entries[len(t.entries)-1].RecordedAt
	return &last, nil
}

type memoryGuard struct {
	keys     map[string]bool
	inserted int
	deleted  int
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: make(map[string]bool)}
}

func (g *memoryGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	if g.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	g.keys[key] = true
	g.inserted++
	return nil
}

func (g *memoryGuard) Delete(ctx context.Context, key string) error {
	delete(g.keys, key)
	g.deleted++
	return nil
}

func testConfig() EngineConfig {
	return EngineConfig{
		InvoiceTags:  []string{"invoice"},
		ReceiptTags:  []string{"receipt"},
		ProcessedTag: "ledger-processed",
		ErrorTag:     "ledger-error",
	}
}

func TestProcessDocumentsCreatesInvoice(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	trail := &memoryTrail{}
	src.add(1, "Invoice - Acme Corp", "Invoice #INV-100\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $500.00", "invoice")

	engine := NewEngine(src, led, trail, nil, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)

	outcome := result.Outcomes[0]
	require.Equal(t, StateProcessed, outcome.State)
	require.False(t, outcome.Skipped)
	require.NotZero(t, outcome.LedgerID)

	require.Equal(t, 1, led.createParty)
	require.Len(t, led.invoices, 1)
	rec := led.invoices[0]
	require.Equal(t, "INV-100", *rec.ReferenceNumber)
	require.Equal(t, "Acme Corp", *rec.CounterpartyName)
	require.Equal(t, "2024-03-01", *rec.IssueDate)
	require.Equal(t, 500.0, *rec.TotalAmount)

	require.True(t, src.docs[1].HasTag("ledger-processed"))
	require.False(t, src.docs[1].HasTag("ledger-error"))
}

func TestProcessDocumentsReusesExistingParty(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	led.parties["acme corp"] = &ledger.Party{ID: 7, Name: "Acme Corp"}
	src.add(1, "Invoice", "Invoice #A-1\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $10.00", "invoice")

	engine := NewEngine(src, led, nil, nil, nil, nil, testConfig())
	_, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, led.createParty)
	require.Len(t, led.invoices, 1)
}

func TestProcessDocumentsSynthesizesDefaultLine(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	src.add(1, "Invoice", "Invoice #B-2\nBill To: Globex\nDate: 01/15/2024\nTotal: $250.00", "invoice")

	engine := NewEngine(src, led, nil, nil, nil, nil, testConfig())
	_, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, led.invoices, 1)
	require.Len(t, led.invoices[0].LineItems, 1)
	line := led.invoices[0].LineItems[0]
	require.Equal(t, DefaultLineDescription, line.Description)
	require.Equal(t, 1.0, line.Quantity)
	require.Equal(t, 250.0, line.UnitRate)
}

func TestProcessDocumentsSkipsTerminal(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	src.add(1, "Done", "whatever", "invoice", "ledger-processed")
	src.add(2, "Failed", "whatever", "invoice", "ledger-error")

	engine := NewEngine(src, led, nil, nil, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	for _, o := range result.Outcomes {
		require.True(t, o.Skipped)
	}
	// Terminal documents cost no remote reads or writes.
	require.Equal(t, 0, src.readCalls)
	require.Equal(t, 0, src.tagCalls)
	require.Equal(t, 0, led.findCalls)
}

func TestProcessDocumentsRejectsUnextractable(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	src.add(1, "Scan", "lorem ipsum nothing recognizable here", "invoice")

	engine := NewEngine(src, led, nil, nil, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	require.Equal(t, StateError, result.Outcomes[0].State)
	require.NotEmpty(t, result.Outcomes[0].Reason)

	require.True(t, src.docs[1].HasTag("ledger-error"))
	require.Equal(t, 0, led.findCalls)
	require.Empty(t, led.invoices)
}

func TestProcessDocumentsIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	src.add(1, "First", "Invoice #C-1\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $100.00", "invoice")
	src.add(2, "Second", "Invoice #C-2\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $100.00", "invoice")
	src.add(3, "Third", "Invoice #C-3\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $100.00", "invoice")
	src.readErr[2] = errors.New("connection reset")

	engine := NewEngine(src, led, nil, nil, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)

	// Every document reached a terminal tag despite the middle failure.
	for id := int64(1); id <= 3; id++ {
		doc := src.docs[id]
		require.True(t, doc.HasTag("ledger-processed") || doc.HasTag("ledger-error"), "document %d", id)
	}
	require.True(t, src.docs[2].HasTag("ledger-error"))
	require.Len(t, led.invoices, 2)
}

func TestProcessDocumentsListFailureIsCycleFatal(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	src.listErr = errors.New("service unreachable")

	engine := NewEngine(src, newMemoryLedgerRepo(), nil, nil, nil, nil, testConfig())
	_, err := engine.ProcessDocuments(ctx)
	require.Error(t, err)
}

func TestProcessDocumentsReceipt(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	src.add(5, "Receipt", "Receipt #R-9\nReceived From: Tech Solutions\nDate: 02/10/2024\nAmount: $850.00\nPaid By: Card", "receipt")

	engine := NewEngine(src, led, nil, nil, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	require.Equal(t, StateProcessed, result.Outcomes[0].State)
	require.Len(t, led.receipts, 1)
	require.Equal(t, "Tech Solutions", *led.receipts[0].CounterpartyName)
	require.Equal(t, "Card", *led.receipts[0].PaymentMethod)
}

func TestSecondCyclePerformsNoRemoteWrites(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	src.add(1, "Invoice", "Invoice #D-1\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $42.00", "invoice")

	engine := NewEngine(src, led, nil, nil, nil, nil, testConfig())
	_, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)

	tagCalls := src.tagCalls
	findCalls := led.findCalls
	invoices := len(led.invoices)

	_, err = engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Equal(t, tagCalls, src.tagCalls)
	require.Equal(t, findCalls, led.findCalls)
	require.Equal(t, invoices, len(led.invoices))
}

func TestIdempotencyGuardSuppressesDuplicateCreate(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	guard := newMemoryGuard()
	// Simulate a prior attempt that created the entity but crashed
	// before tagging the document.
	guard.keys[shared.DocumentKey("invoice", 1)] = true
	src.add(1, "Invoice", "Invoice #E-1\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $99.00", "invoice")

	engine := NewEngine(src, led, nil, guard, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Equal(t, StateProcessed, result.Outcomes[0].State)
	require.Empty(t, led.invoices)
	require.True(t, src.docs[1].HasTag("ledger-processed"))
}

func TestIdempotencyGuardReleasedOnCreateFailure(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	led.createInvErr = errors.New("ledger rejected entity")
	guard := newMemoryGuard()
	src.add(1, "Invoice", "Invoice #F-1\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $99.00", "invoice")

	engine := NewEngine(src, led, nil, guard, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Equal(t, StateError, result.Outcomes[0].State)
	require.Equal(t, 1, guard.deleted)
	require.False(t, guard.keys[shared.DocumentKey("invoice", 1)])
}

func TestProcessDocumentsRecordsTrail(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	led := newMemoryLedgerRepo()
	trail := &memoryTrail{}
	src.add(1, "Invoice - Acme", "Invoice #G-1\nBill To: Acme Corp\nDate: 03/01/2024\nTotal: $12.00", "invoice")
	src.add(2, "Scan", "nothing here", "invoice")

	engine := NewEngine(src, led, trail, nil, nil, nil, testConfig())
	result, err := engine.ProcessDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, trail.entries, 2)
	require.Len(t, trail.logs, 2)
	for _, entry := range trail.entries {
		require.Equal(t, result.RunID, entry.RunID)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	src := newMemorySourceRepo()
	src.add(1, "Done", "x", "invoice", "ledger-processed")
	src.add(2, "Failed", "x", "invoice", "ledger-error")
	src.add(3, "Waiting", "x", "invoice")
	src.add(4, "Waiting", "x", "receipt")

	engine := NewEngine(src, newMemoryLedgerRepo(), nil, nil, nil, nil, testConfig())
	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ProcessedCount)
	require.Equal(t, 1, stats.ErrorCount)
	require.Equal(t, 2, stats.PendingCount)
	require.Nil(t, stats.LastRunTime)
}
