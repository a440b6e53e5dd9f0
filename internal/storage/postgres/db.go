package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/storage"
)

// DB is a PostgreSQL implementation of storage.DB. Units of work run in
// READ COMMITTED transactions, so polling inside one observes rows committed by
// concurrent consumers.
type DB struct {
	pool *Pool
}

// NewDB creates a new PostgreSQL unit-of-work runner.
func NewDB(pool *Pool) *DB {
	return &DB{pool: pool}
}

var _ storage.DB = (*DB)(nil)

// WithinTx runs fn inside one database transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgTx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin", err)
	}
	defer func() {
		// Rollback after a successful commit is a no-op.
		_ = pgTx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, &tx{tx: pgTx}); err != nil {
		return connLost(pgTx, err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return connLost(pgTx, classify("commit", err))
	}
	return nil
}

// connLost marks err as transient when the transaction's connection is gone.
// Nothing written through the transaction survived, so the unit of work can be
// retried as a whole.
func connLost(pgTx pgx.Tx, err error) error {
	if errors.Is(err, storage.ErrTransient) || !pgTx.Conn().IsClosed() {
		return err
	}
	return fmt.Errorf("%w: connection closed: %w", storage.ErrTransient, err)
}

// tx implements storage.Tx over one pgx transaction.
type tx struct {
	tx pgx.Tx
}

func (t *tx) Transactions() storage.TransactionTable {
	return &TransactionTable{q: t.tx}
}

func (t *tx) Aggregates(kind domain.Kind) storage.AggregateTable {
	return &AggregateTable{q: t.tx, names: tablesFor(kind)}
}

func (t *tx) Offsets() storage.OffsetTable {
	return &OffsetTable{q: t.tx}
}

// querier is the subset of pgx used by the tables; both *Pool and pgx.Tx satisfy it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// tableNames are the physical tables of one aggregate kind.
type tableNames struct {
	kind       domain.Kind
	aggregates string
	versions   string
}

var kindTables = map[domain.Kind]tableNames{
	domain.KindOracle:   {kind: domain.KindOracle, aggregates: "oracles", versions: "oracle_versions"},
	domain.KindKandel:   {kind: domain.KindKandel, aggregates: "kandels", versions: "kandel_versions"},
	domain.KindOfferSet: {kind: domain.KindOfferSet, aggregates: "offer_sets", versions: "offer_set_versions"},
	domain.KindOrder:    {kind: domain.KindOrder, aggregates: "orders", versions: "order_versions"},
}

// tablesFor returns the tables of kind. Unknown kinds yield a zero value whose
// operations fail with ErrInvalidInput.
func tablesFor(kind domain.Kind) tableNames {
	return kindTables[kind]
}

var errUnknownKind = fmt.Errorf("%w: unknown aggregate kind", storage.ErrInvalidInput)

func (n tableNames) check() error {
	if n.aggregates == "" {
		return errUnknownKind
	}
	return nil
}
