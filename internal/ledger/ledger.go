// Package ledger records one row per distinct on-chain transaction and answers the
// ordering probes used by the causal barrier.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/ids"
	"mangrove-indexer/internal/storage"
)

// Ledger is the transaction ledger seen through one unit of work.
type Ledger struct {
	table storage.TransactionTable
}

// New binds a ledger to table, usually tx.Transactions().
func New(table storage.TransactionTable) *Ledger {
	return &Ledger{table: table}
}

// EnsureParams are the fields of a transaction observed on a stream.
type EnsureParams struct {
	ID          ids.TransactionID
	Sender      string
	Timestamp   time.Time
	BlockNumber int64
	BlockHash   string
}

// EnsureTransaction returns the ledger row for p.ID, creating it from p when absent.
// Repeated calls are no-ops after the first; the first caller's fields are kept.
func (l *Ledger) EnsureTransaction(ctx context.Context, p EnsureParams) (*domain.Transaction, error) {
	key := p.ID.Key()

	existing, err := l.table.Get(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get transaction %s: %w", key, err)
	}

	t := &domain.Transaction{
		ID:          key,
		ChainID:     uint64(p.ID.Chain),
		TxHash:      p.ID.TxHash,
		Sender:      p.Sender,
		BlockNumber: p.BlockNumber,
		BlockHash:   p.BlockHash,
		Time:        p.Timestamp.UTC(),
	}
	inserted, err := l.table.InsertIfAbsent(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("insert transaction %s: %w", key, err)
	}
	if inserted {
		return t, nil
	}

	// Lost the race to a concurrent unit of work; return the winner's row.
	existing, err = l.table.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reload transaction %s: %w", key, err)
	}
	return existing, nil
}

// EnsureFromRef ensures the transaction referenced by a stream payload.
func (l *Ledger) EnsureFromRef(ctx context.Context, chain ids.ChainID, ref domain.TxRef, ts time.Time) (*domain.Transaction, error) {
	id, err := ids.NewTransactionID(chain, ref.TxHash)
	if err != nil {
		return nil, err
	}
	return l.EnsureTransaction(ctx, EnsureParams{
		ID:          id,
		Sender:      ref.Sender,
		Timestamp:   ts,
		BlockNumber: ref.BlockNumber,
		BlockHash:   ref.BlockHash,
	})
}

// HasTransactionAtOrAfter reports whether chain has a ledger entry with a
// timestamp >= ts.
func (l *Ledger) HasTransactionAtOrAfter(ctx context.Context, chain ids.ChainID, ts time.Time) (bool, error) {
	return l.table.ExistsAtOrAfter(ctx, uint64(chain), ts)
}
