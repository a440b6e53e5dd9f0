package order

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

// Spec describes order aggregates.
var Spec = versioned.Spec[domain.OrderFields]{
	Kind:    domain.KindOrder,
	Initial: domain.NewOrderFields,
}

// Options configures the strategies handlers.
type Options struct {
	Logger *log.Logger
}

// Handlers applies strategies stream events.
type Handlers struct {
	logger *log.Logger
}

// NewHandlers creates the strategies handlers.
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{logger: logger}
}

// Registry returns the handler table of the strategies stream.
func (h *Handlers) Registry() *stream.Registry[Payload] {
	return stream.NewRegistry(map[string]stream.Handler[Payload]{
		KindOrderSummary:  h.ensureTx(h.orderSummary),
		KindLogIncident:   h.ensureTx(ignore),
		KindNewOwnedOffer: h.ensureTx(ignore),
	})
}

// NewDispatcher wires Decode and the handler table for streamName.
func NewDispatcher(streamName string, opts Options) *stream.Dispatcher[Payload] {
	h := NewHandlers(opts)
	return stream.NewDispatcher(streamName, Decode, h.Registry(), h.logger)
}

type txHandler func(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error

func ignore(context.Context, storage.Tx, stream.Event[Payload], *domain.Transaction) error {
	return nil
}

// ensureTx records the event's transaction before next runs, on undo as well.
func (h *Handlers) ensureTx(next txHandler) stream.Handler[Payload] {
	return func(ctx context.Context, tx storage.Tx, ev stream.Event[Payload]) error {
		hdr := ev.Payload.header()
		t, err := ledger.New(tx.Transactions()).EnsureFromRef(ctx, ids.ChainID(hdr.ChainID), hdr.Tx, ev.Timestamp)
		if err != nil {
			return fmt.Errorf("ensure transaction: %w", err)
		}
		return next(ctx, tx, ev, t)
	}
}

func (h *Handlers) orderSummary(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error {
	e := ev.Payload.(OrderSummary)

	id, err := OrderID(ids.ChainID(e.ChainID), e.Address, e.Tx.TxHash)
	if err != nil {
		return fmt.Errorf("%w: %v", stream.ErrMalformedEvent, err)
	}
	store := versioned.New(tx.Aggregates(Spec.Kind), Spec)

	if ev.Undo {
		return store.Rollback(ctx, id)
	}
	_, _, err = store.Append(ctx, id, t.ID, domain.OrderSummaryPatch{
		Mangrove:       e.Mangrove,
		Taker:          e.Taker,
		OutboundToken:  e.OutboundToken,
		InboundToken:   e.InboundToken,
		FillOrKill:     e.FillOrKill,
		FillWants:      e.FillWants,
		TakerGot:       e.TakerGot,
		TakerGave:      e.TakerGave,
		Penalty:        e.Penalty,
		RestingOrderID: e.RestingOrderID,
	})
	return err
}

// OrderID is the aggregate id of the order placed through contract in txHash.
func OrderID(chain ids.ChainID, contract, txHash string) (ids.AggregateID, error) {
	id, err := ids.NewAggregateID(chain, contract)
	if err != nil {
		return ids.AggregateID{}, err
	}
	return id.WithQualifier(txHash)
}
