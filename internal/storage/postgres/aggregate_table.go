package postgres

import (
	"context"
	"fmt"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/storage"
)

// AggregateTable is a PostgreSQL implementation of storage.AggregateTable.
// Table names come from a fixed map and are never user input.
type AggregateTable struct {
	q     querier
	names tableNames
}

// newAggregateTable reads the tables of kind outside any unit of work.
func newAggregateTable(pool *Pool, kind domain.Kind) *AggregateTable {
	return &AggregateTable{q: pool, names: tablesFor(kind)}
}

var _ storage.AggregateTable = (*AggregateTable)(nil)

// GetAggregate retrieves an aggregate by id. Returns ErrNotFound if not exists.
func (s *AggregateTable) GetAggregate(ctx context.Context, id string) (*domain.Aggregate, error) {
	if err := s.names.check(); err != nil {
		return nil, err
	}

	row := s.q.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, chain_id, address, current_version_id
		FROM %s
		WHERE id = $1
	`, s.names.aggregates), id)

	var a domain.Aggregate
	var chainID int64
	if err := row.Scan(&a.ID, &chainID, &a.Address, &a.CurrentVersionID); err != nil {
		return nil, classify("get "+s.names.kind.String(), err)
	}
	a.ChainID = uint64(chainID)
	return &a, nil
}

// UpsertAggregate creates the aggregate or updates its current version pointer.
func (s *AggregateTable) UpsertAggregate(ctx context.Context, a *domain.Aggregate) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}
	if err := s.names.check(); err != nil {
		return err
	}

	_, err := s.q.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, chain_id, address, current_version_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET current_version_id = EXCLUDED.current_version_id
	`, s.names.aggregates), a.ID, int64(a.ChainID), a.Address, a.CurrentVersionID)
	return classify("upsert "+s.names.kind.String(), err)
}

// DeleteAggregate removes an aggregate. Returns ErrNotFound if not exists.
func (s *AggregateTable) DeleteAggregate(ctx context.Context, id string) error {
	if err := s.names.check(); err != nil {
		return err
	}

	tag, err := s.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.names.aggregates), id)
	if err != nil {
		return classify("delete "+s.names.kind.String(), err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAggregateIDs returns every aggregate id, ordered ASC.
func (s *AggregateTable) ListAggregateIDs(ctx context.Context) ([]string, error) {
	if err := s.names.check(); err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id ASC`, s.names.aggregates))
	if err != nil {
		return nil, classify("list "+s.names.kind.String(), err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan "+s.names.kind.String(), err)
		}
		result = append(result, id)
	}
	return result, classify("list "+s.names.kind.String(), rows.Err())
}

// GetVersion retrieves a version by id. Returns ErrNotFound if not exists.
func (s *AggregateTable) GetVersion(ctx context.Context, id string) (*domain.VersionRecord, error) {
	if err := s.names.check(); err != nil {
		return nil, err
	}

	row := s.q.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, aggregate_id, tx_id, version_number, prev_version_id, fields
		FROM %s
		WHERE id = $1
	`, s.names.versions), id)

	var v domain.VersionRecord
	if err := row.Scan(&v.ID, &v.AggregateID, &v.TxID, &v.VersionNumber, &v.PrevVersionID, &v.Fields); err != nil {
		return nil, classify("get "+s.names.kind.String()+" version", err)
	}
	return &v, nil
}

// InsertVersion adds a version. Returns ErrDuplicateKey if the id exists.
func (s *AggregateTable) InsertVersion(ctx context.Context, v *domain.VersionRecord) error {
	if v == nil || v.ID == "" || v.AggregateID == "" {
		return storage.ErrInvalidInput
	}
	if err := s.names.check(); err != nil {
		return err
	}

	_, err := s.q.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, aggregate_id, tx_id, version_number, prev_version_id, fields)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.names.versions), v.ID, v.AggregateID, v.TxID, v.VersionNumber, v.PrevVersionID, string(v.Fields))
	return classify("insert "+s.names.kind.String()+" version", err)
}

// DeleteVersion removes a version. Returns ErrNotFound if not exists.
func (s *AggregateTable) DeleteVersion(ctx context.Context, id string) error {
	if err := s.names.check(); err != nil {
		return err
	}

	tag, err := s.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.names.versions), id)
	if err != nil {
		return classify("delete "+s.names.kind.String()+" version", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountVersions returns the number of versions stored for aggregateID.
func (s *AggregateTable) CountVersions(ctx context.Context, aggregateID string) (int, error) {
	if err := s.names.check(); err != nil {
		return 0, err
	}

	row := s.q.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE aggregate_id = $1`, s.names.versions), aggregateID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, classify("count "+s.names.kind.String()+" versions", err)
	}
	return n, nil
}
