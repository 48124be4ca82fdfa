// Package pipeline reconciles tagged source documents against the ledger
// service: extraction, validation, entity creation and terminal tagging.
package pipeline

import (
	"errors"
	"time"

	"github.com/paperledger/paperledger/internal/extract"
)

// Sentinel errors surfaced by the engine and poller.
var (
	// ErrPollerRunning is returned when Start is called twice.
	ErrPollerRunning = errors.New("poller already running")
	// ErrPollerStopped is returned when Stop is called on an idle poller.
	ErrPollerStopped = errors.New("poller not running")
)

// DocState is the logical processing state derived from a document's
// remote tag set. It is never stored locally: the tags on the source
// document are the only durable checkpoint, so a fresh instance recovers
// identical state without replaying side effects.
type DocState string

const (
	// StateUnprocessed means neither terminal tag is attached.
	StateUnprocessed DocState = "unprocessed"
	// StateProcessed is terminal: a ledger entity exists for the document.
	StateProcessed DocState = "processed"
	// StateError is terminal: the document was rejected or failed and
	// will not be retried until an operator clears the tag remotely.
	StateError DocState = "error"
)

// Outcome is the result of one processing attempt for one document.
type Outcome struct {
	DocumentID int64        `json:"document_id"`
	Kind       extract.Kind `json:"kind"`
	State      DocState     `json:"state"`
	Reason     string       `json:"reason,omitempty"`
	LedgerID   int64        `json:"ledger_id,omitempty"`
	Skipped    bool         `json:"skipped,omitempty"`
}

// CycleResult aggregates one full pass over the candidate documents.
type CycleResult struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Processed returns how many documents reached the processed state this
// cycle, skips excluded.
func (r CycleResult) Processed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped && o.State == StateProcessed {
			n++
		}
	}
	return n
}

// Errored returns how many documents reached the error state this cycle.
func (r CycleResult) Errored() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped && o.State == StateError {
			n++
		}
	}
	return n
}

// Stats is the caller-facing counter snapshot. Counts are re-derived from
// remote tag state on every call rather than cached, so they stay
// consistent with the externalized state machine.
type Stats struct {
	ProcessedCount int        `json:"processed_count"`
	ErrorCount     int        `json:"error_count"`
	PendingCount   int        `json:"pending_count"`
	LastRunTime    *time.Time `json:"last_run_time,omitempty"`
}
