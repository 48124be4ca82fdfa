package archive

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordEntry appends one processing outcome.
func (r *Repository) RecordEntry(ctx context.Context, entry Entry) error {
	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO archive_entries (run_id, document_id, title, kind, status, reason, counterparty, amount, ledger_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.RunID, entry.DocumentID, entry.Title, entry.Kind, entry.Status,
		entry.Reason, entry.Counterparty, entry.Amount, entry.LedgerID, recordedAt,
	)
	return err
}

// AppendLog appends one trail log line.
func (r *Repository) AppendLog(ctx context.Context, line LogLine) error {
	ts := line.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO archive_logs (timestamp, level, message, document_id)
		VALUES ($1, $2, $3, $4)`,
		ts, line.Level, line.Message, line.DocumentID,
	)
	return err
}

// ListEntries returns the most recent outcomes, newest first.
func (r *Repository) ListEntries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, document_id, title, kind, status, reason, counterparty, amount, ledger_id, recorded_at
		FROM archive_entries ORDER BY recorded_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.DocumentID, &e.Title, &e.Kind, &e.Status, &e.Reason, &e.Counterparty, &e.Amount, &e.LedgerID, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListLogs returns the most recent log lines, newest first.
func (r *Repository) ListLogs(ctx context.Context, limit int) ([]LogLine, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, timestamp, level, message, document_id
		FROM archive_logs ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LogLine
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.DocumentID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// LastRunTime returns the newest recorded outcome time, nil when the
// trail is empty.
func (r *Repository) LastRunTime(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := r.pool.QueryRow(ctx, `SELECT recorded_at FROM archive_entries ORDER BY recorded_at DESC LIMIT 1`).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
