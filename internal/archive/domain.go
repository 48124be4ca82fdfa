// Package archive keeps a local trail of pipeline activity: per-document
// outcomes and log lines, mirrored into Postgres for the operator surface.
// The trail is observability only; processing state always derives from
// the remote tag set, never from this store.
package archive

import (
	"context"
	"time"
)

// Entry is one recorded processing attempt for one document.
type Entry struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	DocumentID   int64     `json:"document_id"`
	Title        string    `json:"title,omitempty"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       *float64  `json:"amount,omitempty"`
	LedgerID     *int64    `json:"ledger_id,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// LogLine is one structured trail message.
type LogLine struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	DocumentID *int64    `json:"document_id,omitempty"`
}

// Store is the trail persistence port. The engine takes it as an
// interface so tests run against the in-memory fake.
type Store interface {
	RecordEntry(ctx context.Context, entry Entry) error
	AppendLog(ctx context.Context, line LogLine) error
	ListEntries(ctx context.Context, limit int) ([]Entry, error)
	ListLogs(ctx context.Context, limit int) ([]LogLine, error)
	LastRunTime(ctx context.Context) (*time.Time, error)
}
