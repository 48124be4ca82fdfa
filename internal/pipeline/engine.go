package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paperledger/paperledger/internal/archive"
	"github.com/paperledger/paperledger/internal/extract"
	"github.com/paperledger/paperledger/internal/ledger"
	"github.com/paperledger/paperledger/internal/observability"
	"github.com/paperledger/paperledger/internal/shared"
	"github.com/paperledger/paperledger/internal/source"
)

// DefaultLineDescription fills the single synthesized line when a
// validated invoice carried no recognizable line items.
const DefaultLineDescription = "Imported from document archive"

// IdempotencyGuard is the subset of the shared idempotency store the
// engine needs. A nil guard disables duplicate suppression.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "ledger"

// EngineConfig carries the injected tag vocabulary. The engine performs
// no file or environment access itself.
type EngineConfig struct {
	InvoiceTags  []string
	ReceiptTags  []string
	ProcessedTag string
	ErrorTag     string
}

// Engine orchestrates one reconciliation cycle: list candidates, extract,
// validate, materialize the ledger entity and apply the terminal tag. It
// owns the idempotency and failure-isolation contract: a fault
// attributable to one document never prevents the rest of the batch from
// being attempted.
type Engine struct {
	source  source.Repository
	ledger  ledger.Repository
	trail   archive.Store
	guard   IdempotencyGuard
	metrics *observability.PipelineMetrics
	logger  *slog.Logger
	cfg     EngineConfig
	clock   func() time.Time
}

// NewEngine constructs an Engine. Trail, guard and metrics may be nil.
func NewEngine(src source.Repository, led ledger.Repository, trail archive.Store, guard IdempotencyGuard, metrics *observability.PipelineMetrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	return &Engine{
		source:  src,
		ledger:  led,
		trail:   trail,
		guard:   guard,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ProcessOnce runs exactly one cycle synchronously and returns the
// per-document outcomes. It is the operation exposed to callers such as
// the dashboard and the queue worker.
func (e *Engine) ProcessOnce(ctx context.Context) (CycleResult, error) {
	return e.ProcessDocuments(ctx)
}

// ProcessDocuments performs one full pass over the candidate documents.
// Only a failure of the listing calls themselves is cycle-fatal; every
// other fault is absorbed at the per-document boundary and reflected in
// that document's outcome.
func (e *Engine) ProcessDocuments(ctx context.Context) (CycleResult, error) {
	result := CycleResult{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
	}
	log := e.log().With(slog.String("run_id", result.RunID))
	log.Info("starting reconciliation cycle")

	var resultErr error
	defer func() {
		result.FinishedAt = e.now()
		e.metricsRef().ObserveCycle(resultErr == nil, result.FinishedAt.Sub(result.StartedAt))
	}()

	batches := []struct {
		kind extract.Kind
		tags []string
	}{
		{extract.KindInvoice, e.cfg.InvoiceTags},
		{extract.KindReceipt, e.cfg.ReceiptTags},
	}
	for _, batch := range batches {
		if len(batch.tags) == 0 {
			continue
		}
		docs, err := e.source.ListDocuments(ctx, batch.tags)
		if err != nil {
			resultErr = fmt.Errorf("list %s documents: %w", batch.kind, err)
			log.Error("cycle aborted", slog.Any("error", resultErr))
			return result, resultErr
		}
		log.Info("found candidate documents",
			slog.String("kind", string(batch.kind)),
			slog.Int("count", len(docs)),
		)
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				resultErr = err
				return result, resultErr
			}
			outcome := e.processDocument(ctx, doc, batch.kind, result.RunID)
			result.Outcomes = append(result.Outcomes, outcome)
			if !outcome.Skipped {
				e.metricsRef().CountDocument(string(batch.kind), string(outcome.State))
			}
		}
	}

	log.Info("completed reconciliation cycle",
		slog.Int("processed", result.Processed()),
		slog.Int("errors", result.Errored()),
		slog.Duration("duration", e.now().Sub(result.StartedAt)),
	)
	return result, nil
}

// processDocument drives the unprocessed → {processed, error} transition
// for one document. The terminal check happens before any remote read so
// already settled documents cost nothing.
func (e *Engine) processDocument(ctx context.Context, doc source.Document, kind extract.Kind, runID string) Outcome {
	if doc.HasTag(e.cfg.ProcessedTag) || doc.HasTag(e.cfg.ErrorTag) {
		state := StateProcessed
		if doc.HasTag(e.cfg.ErrorTag) {
			state = StateError
		}
		return Outcome{DocumentID: doc.ID, Kind: kind, State: state, Skipped: true}
	}

	log := e.log().With(
		slog.String("run_id", runID),
		slog.Int64("document_id", doc.ID),
		slog.String("kind", string(kind)),
	)
	log.Info("processing document")

	text, err := e.source.ReadText(ctx, doc.ID)
	if err != nil {
		return e.markError(ctx, doc, kind, runID, fmt.Sprintf("read text: %v", err), nil)
	}

	rec := extract.Extract(text, kind, doc.ID)
	if ok, reason := Validate(rec); !ok {
		log.Warn("extracted record rejected", slog.String("reason", reason))
		return e.markError(ctx, doc, kind, runID, reason, &rec)
	}

	ledgerID, err := e.materialize(ctx, kind, rec)
	if err != nil {
		log.Error("materialize ledger entity", slog.Any("error", err))
		return e.markError(ctx, doc, kind, runID, err.Error(), &rec)
	}

	if err := e.source.AddTag(ctx, doc.ID, e.cfg.ProcessedTag); err != nil {
		// The entity exists but the checkpoint is missing; surface the
		// document as errored so an operator reconciles it by hand.
		log.Error("apply processed tag", slog.Any("error", err))
		return e.markError(ctx, doc, kind, runID, fmt.Sprintf("apply processed tag: %v", err), &rec)
	}

	log.Info("document reconciled", slog.Int64("ledger_id", ledgerID))
	outcome := Outcome{DocumentID: doc.ID, Kind: kind, State: StateProcessed, LedgerID: ledgerID}
	e.record(ctx, doc, rec, outcome, runID)
	e.trailLog(ctx, "INFO", fmt.Sprintf("created %s in ledger for document %d", kind, doc.ID), doc.ID)
	return outcome
}

// materialize resolves the counterparty and creates the ledger entity.
// The lookup-then-create pair is not transactionally guarded; two
// concurrent paths can still race to create the same party.
func (e *Engine) materialize(ctx context.Context, kind extract.Kind, rec extract.Record) (int64, error) {
	name := *rec.CounterpartyName
	party, err := e.ledger.FindParty(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("find party: %w", err)
	}
	if party == nil {
		party, err = e.ledger.CreateParty(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("create party: %w", err)
		}
	}

	key := shared.DocumentKey(string(kind), rec.DocumentID)
	if e.guard != nil {
		if err := e.guard.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				// A prior attempt already created the entity and crashed
				// before tagging; settle the tag without a second write.
				return 0, nil
			}
			return 0, fmt.Errorf("idempotency check: %w", err)
		}
	}

	if kind == extract.KindInvoice && len(rec.LineItems) == 0 && rec.TotalAmount != nil {
		rec.LineItems = []extract.LineItem{{
			Description: DefaultLineDescription,
			Quantity:    1,
			UnitRate:    *rec.TotalAmount,
		}}
	}

	var id int64
	switch kind {
	case extract.KindReceipt:
		id, err = e.ledger.CreateReceipt(ctx, *party, rec)
	default:
		id, err = e.ledger.CreateInvoice(ctx, *party, rec)
	}
	if err != nil {
		if e.guard != nil {
			if delErr := e.guard.Delete(ctx, key); delErr != nil {
				e.log().Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return 0, err
	}
	return id, nil
}

// markError applies the error tag and records the failure. Tagging itself
// is best effort: when even that write fails the document simply stays
// unprocessed and is retried next cycle.
func (e *Engine) markError(ctx context.Context, doc source.Document, kind extract.Kind, runID, reason string, rec *extract.Record) Outcome {
	if err := e.source.AddTag(ctx, doc.ID, e.cfg.ErrorTag); err != nil {
		e.log().Error("apply error tag",
			slog.Int64("document_id", doc.ID),
			slog.Any("error", err),
		)
	}
	outcome := Outcome{DocumentID: doc.ID, Kind: kind, State: StateError, Reason: reason}
	var full extract.Record
	if rec != nil {
		full = *rec
	}
	e.record(ctx, doc, full, outcome, runID)
	e.trailLog(ctx, "ERROR", fmt.Sprintf("document %d failed: %s", doc.ID, reason), doc.ID)
	return outcome
}

// Stats re-derives the counter snapshot from the remote tag state so it
// stays consistent across restarts and concurrent callers.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	filter := append(append([]string{}, e.cfg.InvoiceTags...), e.cfg.ReceiptTags...)
	docs, err := e.source.ListDocuments(ctx, filter)
	if err != nil {
		return Stats{}, fmt.Errorf("list candidates: %w", err)
	}
	var stats Stats
	for _, doc := range docs {
		switch {
		case doc.HasTag(e.cfg.ProcessedTag):
			stats.ProcessedCount++
		case doc.HasTag(e.cfg.ErrorTag):
			stats.ErrorCount++
		default:
			stats.PendingCount++
		}
	}
	if e.trail != nil {
		last, err := e.trail.LastRunTime(ctx)
		if err != nil {
			e.log().Warn("load last run time", slog.Any("error", err))
		} else {
			stats.LastRunTime = last
		}
	}
	return stats, nil
}

func (e *Engine) record(ctx context.Context, doc source.Document, rec extract.Record, outcome Outcome, runID string) {
	if e.trail == nil {
		return
	}
	entry := archive.Entry{
		RunID:      runID,
		DocumentID: doc.ID,
		Title:      doc.Title,
		Kind:       string(outcome.Kind),
		Status:     string(outcome.State),
		Reason:     outcome.Reason,
		RecordedAt: e.now(),
	}
	if rec.CounterpartyName != nil {
		entry.Counterparty = *rec.CounterpartyName
	}
	if rec.TotalAmount != nil {
		entry.Amount = rec.TotalAmount
	}
	if outcome.LedgerID != 0 {
		id := outcome.LedgerID
		entry.LedgerID = &id
	}
	if err := e.trail.RecordEntry(ctx, entry); err != nil {
		e.log().Warn("record trail entry", slog.Int64("document_id", doc.ID), slog.Any("error", err))
	}
}

func (e *Engine) trailLog(ctx context.Context, level, message string, documentID int64) {
	if e.trail == nil {
		return
	}
	line := archive.LogLine{
		Timestamp:  e.now(),
		Level:      level,
		Message:    message,
		DocumentID: &documentID,
	}
	if err := e.trail.AppendLog(ctx, line); err != nil {
		e.log().Warn("append trail log", slog.Any("error", err))
	}
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

func (e *Engine) metricsRef() *observability.PipelineMetrics {
	return e.metrics
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now().UTC()
}
