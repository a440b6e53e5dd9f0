package clickhouse

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mangrove-indexer/internal/storage"
)

// Journal implements storage.Journal using ClickHouse.
type Journal struct {
	conn *Conn
}

// NewJournal creates a new Journal.
func NewJournal(conn *Conn) *Journal {
	return &Journal{conn: conn}
}

// Compile-time interface check.
var _ storage.Journal = (*Journal)(nil)

// Append records entries in one insert batch.
func (j *Journal) Append(ctx context.Context, entries []storage.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := j.conn.PrepareBatch(ctx, `
		INSERT INTO apply_journal (
			batch_id, stream, offset, kind, undo, skipped, event_time, applied_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		batchID, err := uuid.Parse(e.BatchID)
		if err != nil {
			return fmt.Errorf("%w: batch id %q", storage.ErrInvalidInput, e.BatchID)
		}
		err = batch.Append(
			batchID, e.Stream, e.Offset, e.Kind, e.Undo, e.Skipped,
			e.Timestamp.UTC(), e.AppliedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// entriesByStream returns the entries of stream, ordered by offset then apply time.
func (j *Journal) entriesByStream(ctx context.Context, stream string) ([]storage.JournalEntry, error) {
	rows, err := j.conn.Query(ctx, `
		SELECT batch_id, stream, offset, kind, undo, skipped, event_time, applied_at
		FROM apply_journal
		WHERE stream = ?
		ORDER BY offset ASC, applied_at ASC
	`, stream)
	if err != nil {
		return nil, fmt.Errorf("query by stream: %w", err)
	}
	defer rows.Close()

	var result []storage.JournalEntry
	for rows.Next() {
		var e storage.JournalEntry
		var batchID uuid.UUID
		if err := rows.Scan(&batchID, &e.Stream, &e.Offset, &e.Kind, &e.Undo, &e.Skipped, &e.Timestamp, &e.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.BatchID = batchID.String()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return result, nil
}
