package oracle

import (
	"context"
	"fmt"
	"log"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/ids"
	"mangrove-indexer/internal/ledger"
	"mangrove-indexer/internal/storage"
	"mangrove-indexer/internal/stream"
	"mangrove-indexer/internal/versioned"
)

// Spec describes oracle aggregates.
var Spec = versioned.Spec[domain.OracleFields]{
	Kind:    domain.KindOracle,
	Initial: domain.NewOracleFields,
}

// Options configures the oracle handlers.
type Options struct {
	// Chain is the chain the oracle stream belongs to; payloads do not carry it.
	Chain  ids.ChainID
	Logger *log.Logger
}

// Handlers applies oracle stream events.
type Handlers struct {
	chain  ids.ChainID
	logger *log.Logger
}

// NewHandlers creates the oracle handlers.
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{chain: opts.Chain, logger: logger}
}

// Registry returns the handler table of the oracle stream.
func (h *Handlers) Registry() *stream.Registry[Payload] {
	return stream.NewRegistry(map[string]stream.Handler[Payload]{
		KindSetGasprice: h.withTransaction(h.setGasprice),
		KindSetDensity:  h.withTransaction(stream.Ignore[Payload]),
	})
}

// NewDispatcher wires Decode and the handler table for streamName.
func NewDispatcher(streamName string, opts Options) *stream.Dispatcher[Payload] {
	h := NewHandlers(opts)
	return stream.NewDispatcher(streamName, Decode, h.Registry(), h.logger)
}

// withTransaction ensures the ledger row of the event's transaction, when it has one,
// before next runs. Undo events ensure it too.
func (h *Handlers) withTransaction(next stream.Handler[Payload]) stream.Handler[Payload] {
	return func(ctx context.Context, tx storage.Tx, ev stream.Event[Payload]) error {
		if ref := txRef(ev.Payload); ref != nil {
			if _, err := ledger.New(tx.Transactions()).EnsureFromRef(ctx, h.chain, *ref, ev.Timestamp); err != nil {
				return fmt.Errorf("ensure transaction: %w", err)
			}
		}
		return next(ctx, tx, ev)
	}
}

func (h *Handlers) setGasprice(ctx context.Context, tx storage.Tx, ev stream.Event[Payload]) error {
	e := ev.Payload.(SetGasprice)

	id, err := ids.NewAggregateID(h.chain, e.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", stream.ErrMalformedEvent, err)
	}
	store := versioned.New(tx.Aggregates(Spec.Kind), Spec)

	if ev.Undo {
		return store.Rollback(ctx, id)
	}

	if e.Tx == nil {
		return fmt.Errorf("%w: %s without transaction", stream.ErrMalformedEvent, KindSetGasprice)
	}
	txID, err := ids.NewTransactionID(h.chain, e.Tx.TxHash)
	if err != nil {
		return fmt.Errorf("%w: %v", stream.ErrMalformedEvent, err)
	}

	gasprice := e.GasPrice
	_, _, err = store.Append(ctx, id, txID.Key(), domain.OraclePatch{Gasprice: &gasprice})
	return err
}

func txRef(p Payload) *domain.TxRef {
	switch e := p.(type) {
	case SetGasprice:
		return e.Tx
	case SetDensity:
		return e.Tx
	}
	return nil
}
