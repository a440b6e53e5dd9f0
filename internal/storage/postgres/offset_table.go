package postgres

import (
	"context"

	"mangrove-indexer/internal/storage"
)

// OffsetTable is a PostgreSQL implementation of storage.OffsetTable.
type OffsetTable struct {
	q querier
}

// newOffsetTable reads stream offsets outside any unit of work.
func newOffsetTable(pool *Pool) *OffsetTable {
	return &OffsetTable{q: pool}
}

var _ storage.OffsetTable = (*OffsetTable)(nil)

// Get returns the committed offset of stream. Returns ErrNotFound if never set.
func (s *OffsetTable) Get(ctx context.Context, stream string) (*storage.StreamOffset, error) {
	row := s.q.QueryRow(ctx, `
		SELECT stream, position, updated_at
		FROM stream_offsets
		WHERE stream = $1
	`, stream)

	var o storage.StreamOffset
	if err := row.Scan(&o.Stream, &o.Offset, &o.UpdatedAt); err != nil {
		return nil, classify("get offset", err)
	}
	return &o, nil
}

// Set stores the offset of stream.
// Uses upsert to handle initial insert and subsequent updates.
func (s *OffsetTable) Set(ctx context.Context, stream string, offset int64) error {
	if stream == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO stream_offsets (stream, position, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (stream) DO UPDATE
		SET position = EXCLUDED.position,
		    updated_at = NOW()
	`, stream, offset)
	return classify("set offset", err)
}
