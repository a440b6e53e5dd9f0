package postgres

import (
	"context"
	"time"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/storage"
)

// TransactionTable is a PostgreSQL implementation of storage.TransactionTable.
type TransactionTable struct {
	q querier
}

// newTransactionTable reads the transactions table outside any unit of work.
func newTransactionTable(pool *Pool) *TransactionTable {
	return &TransactionTable{q: pool}
}

var _ storage.TransactionTable = (*TransactionTable)(nil)

// Get retrieves a transaction by id. Returns ErrNotFound if not exists.
func (s *TransactionTable) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, chain_id, tx_hash, sender, block_number, block_hash, time
		FROM transactions
		WHERE id = $1
	`, id)

	var t domain.Transaction
	var chainID int64
	if err := row.Scan(&t.ID, &chainID, &t.TxHash, &t.Sender, &t.BlockNumber, &t.BlockHash, &t.Time); err != nil {
		return nil, classify("get transaction", err)
	}
	t.ChainID = uint64(chainID)
	t.Time = t.Time.UTC()
	return &t, nil
}

// InsertIfAbsent inserts t unless a row with the same id exists.
// Concurrent inserts of the same id are resolved by the primary key.
func (s *TransactionTable) InsertIfAbsent(ctx context.Context, t *domain.Transaction) (bool, error) {
	if t == nil || t.ID == "" {
		return false, storage.ErrInvalidInput
	}

	tag, err := s.q.Exec(ctx, `
		INSERT INTO transactions (id, chain_id, tx_hash, sender, block_number, block_hash, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, t.ID, int64(t.ChainID), t.TxHash, t.Sender, t.BlockNumber, t.BlockHash, t.Time)
	if err != nil {
		return false, classify("insert transaction", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExistsAtOrAfter reports whether any transaction of chainID has Time >= ts.
func (s *TransactionTable) ExistsAtOrAfter(ctx context.Context, chainID uint64, ts time.Time) (bool, error) {
	row := s.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE chain_id = $1 AND time >= $2)
	`, int64(chainID), ts)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, classify("probe transactions", err)
	}
	return exists, nil
}
