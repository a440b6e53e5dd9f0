package storage

import (
	"context"
	"time"

	"mangrove-indexer/internal/domain"
)

// DB runs units of work against the projection store.
type DB interface {
	// WithinTx runs fn inside one atomic unit of work. If fn returns an error every
	// write made through tx is discarded and the error is returned unchanged.
	// Reads through tx observe its own writes and everything committed by others
	// (read committed).
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the tables of one unit of work. Values obtained from a Tx must not be
// used after WithinTx returns.
type Tx interface {
	Transactions() TransactionTable
	Aggregates(kind domain.Kind) AggregateTable
	Offsets() OffsetTable
}

// TransactionTable provides access to the transactions ledger.
type TransactionTable interface {
	// Get retrieves a transaction by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Transaction, error)

	// InsertIfAbsent inserts t unless a row with the same id exists.
	// Reports whether a row was inserted.
	InsertIfAbsent(ctx context.Context, t *domain.Transaction) (bool, error)

	// ExistsAtOrAfter reports whether any transaction of chainID has Time >= ts.
	ExistsAtOrAfter(ctx context.Context, chainID uint64, ts time.Time) (bool, error)
}

// AggregateTable provides access to the aggregate and version tables of one kind.
type AggregateTable interface {
	// GetAggregate retrieves an aggregate by id. Returns ErrNotFound if not exists.
	GetAggregate(ctx context.Context, id string) (*domain.Aggregate, error)

	// UpsertAggregate creates the aggregate or updates its current version pointer.
	UpsertAggregate(ctx context.Context, a *domain.Aggregate) error

	// DeleteAggregate removes an aggregate. Returns ErrNotFound if not exists.
	DeleteAggregate(ctx context.Context, id string) error

	// ListAggregateIDs returns every aggregate id, ordered ASC.
	ListAggregateIDs(ctx context.Context) ([]string, error)

	// GetVersion retrieves a version by id. Returns ErrNotFound if not exists.
	GetVersion(ctx context.Context, id string) (*domain.VersionRecord, error)

	// InsertVersion adds a version. Returns ErrDuplicateKey if the id exists.
	InsertVersion(ctx context.Context, v *domain.VersionRecord) error

	// DeleteVersion removes a version. Returns ErrNotFound if not exists.
	DeleteVersion(ctx context.Context, id string) error

	// CountVersions returns the number of versions stored for aggregateID.
	CountVersions(ctx context.Context, aggregateID string) (int, error)
}

// StreamOffset is the last committed position of a stream consumer.
type StreamOffset struct {
	Stream    string
	Offset    int64
	UpdatedAt time.Time
}

// OffsetTable persists stream positions in the same unit of work as the batch they
// acknowledge, so a batch and its offset commit or roll back together.
type OffsetTable interface {
	// Get returns the committed offset of stream. Returns ErrNotFound if the stream
	// has never committed.
	Get(ctx context.Context, stream string) (*StreamOffset, error)

	// Set stores the offset of stream.
	Set(ctx context.Context, stream string, offset int64) error
}

// JournalEntry is one applied stream event, recorded after its batch committed.
type JournalEntry struct {
	BatchID   string
	Stream    string
	Offset    int64
	Kind      string
	Undo      bool
	Skipped   bool
	Timestamp time.Time
	AppliedAt time.Time
}

// Journal is an append-only audit trail of committed batches.
type Journal interface {
	// Append records entries. Entries of one call belong to one committed batch.
	Append(ctx context.Context, entries []JournalEntry) error
}
