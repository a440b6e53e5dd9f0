package kandel

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"mangrove-indexer/internal/barrier"
	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/ids"
	"mangrove-indexer/internal/ledger"
	"mangrove-indexer/internal/storage"
	"mangrove-indexer/internal/stream"
	"mangrove-indexer/internal/versioned"
)

// StrategySpec describes Kandel strategy aggregates.
var StrategySpec = versioned.Spec[domain.KandelFields]{
	Kind:    domain.KindKandel,
	Initial: domain.NewKandelFields,
}

// OfferSetSpec describes the offer-set aggregate of a Kandel, keyed by the Kandel address.
var OfferSetSpec = versioned.Spec[domain.OfferSetFields]{
	Kind:    domain.KindOfferSet,
	Initial: domain.NewOfferSetFields,
}

// Options configures the Kandel handlers.
type Options struct {
	// Barrier gates offer-set events on the ledger. Default: barrier.New with default options.
	Barrier *barrier.Barrier
	Logger  *log.Logger
}

// Handlers applies Kandel stream events.
type Handlers struct {
	barrier *barrier.Barrier
	logger  *log.Logger
}

// NewHandlers creates the Kandel handlers.
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	b := opts.Barrier
	if b == nil {
		b = barrier.New(barrier.Options{Logger: logger})
	}
	return &Handlers{barrier: b, logger: logger}
}

// Registry returns the handler table of the Kandel stream.
func (h *Handlers) Registry() *stream.Registry[Payload] {
	return stream.NewRegistry(map[string]stream.Handler[Payload]{
		KindNewKandel:       h.ensureTx(h.created),
		KindNewAaveKandel:   h.ensureTx(h.created),
		KindSetParams:       h.ensureTx(h.setParams),
		KindCredit:          h.ensureTx(h.balance),
		KindDebit:           h.ensureTx(h.balance),
		KindPopulate:        h.awaitLedger(h.ensureTx(h.populate)),
		KindRetract:         h.awaitLedger(h.ensureTx(h.retract)),
		KindSetIndexMapping: h.awaitLedger(h.ensureTx(h.setIndexMapping)),
	})
}

// NewDispatcher wires Decode and the handler table for streamName.
func NewDispatcher(streamName string, opts Options) *stream.Dispatcher[Payload] {
	h := NewHandlers(opts)
	return stream.NewDispatcher(streamName, Decode, h.Registry(), h.logger)
}

// txHandler is a handler that also receives the ensured ledger row.
type txHandler func(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error

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

// awaitLedger blocks until the ledger holds a transaction of the event's chain at or
// after the event's timestamp. Offer-set events reference offers whose creating
// transaction is ingested by another stream.
func (h *Handlers) awaitLedger(next stream.Handler[Payload]) stream.Handler[Payload] {
	return func(ctx context.Context, tx storage.Tx, ev stream.Event[Payload]) error {
		chain := ids.ChainID(ev.Payload.header().ChainID)
		if err := h.barrier.Wait(ctx, ledger.New(tx.Transactions()), chain, ev.Timestamp); err != nil {
			return err
		}
		return next(ctx, tx, ev)
	}
}

func (h *Handlers) created(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error {
	var (
		address string
		patch   domain.KandelCreatedPatch
	)
	switch e := ev.Payload.(type) {
	case NewKandel:
		address = e.Kandel
		patch = domain.KandelCreatedPatch{
			Type:     domain.KandelTypeKandel,
			Mangrove: e.Mangrove,
			Base:     e.Base,
			Quote:    e.Quote,
			Owner:    e.Owner,
			Reserve:  e.Kandel,
		}
	case NewAaveKandel:
		address = e.Kandel
		patch = domain.KandelCreatedPatch{
			Type:     domain.KandelTypeAaveKandel,
			Mangrove: e.Mangrove,
			Base:     e.Base,
			Quote:    e.Quote,
			Owner:    e.Owner,
			Reserve:  e.Reserve,
		}
	default:
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}

	id, err := aggregateID(ev.Payload.header().ChainID, address)
	if err != nil {
		return err
	}
	return appendOrRollback(ctx, tx, StrategySpec, id, ev.Undo, t, patch)
}

func (h *Handlers) setParams(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error {
	e := ev.Payload.(SetParams)
	id, err := aggregateID(e.ChainID, e.Address)
	if err != nil {
		return err
	}
	patch := domain.KandelParamsPatch{
		Admin:             e.Admin,
		Router:            e.Router,
		GasReq:            e.GasReq,
		Gasprice:          e.Gasprice,
		Ratio:             e.Ratio,
		Spread:            e.Spread,
		Length:            e.Length,
		CompoundRateBase:  e.CompoundRateBase,
		CompoundRateQuote: e.CompoundRateQuote,
	}
	return appendOrRollback(ctx, tx, StrategySpec, id, ev.Undo, t, patch)
}

func (h *Handlers) balance(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error {
	var (
		hdr    Header
		token  string
		amount string
		sign   int64 = 1
	)
	switch e := ev.Payload.(type) {
	case Credit:
		hdr, token, amount = e.Header, e.Token, e.Amount
	case Debit:
		hdr, token, amount = e.Header, e.Token, e.Amount
		sign = -1
	default:
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}

	id, err := aggregateID(hdr.ChainID, hdr.Address)
	if err != nil {
		return err
	}
	delta, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("%w: %s amount %q: %v", stream.ErrMalformedEvent, ev.Payload.Kind(), amount, err)
	}
	patch := domain.KandelBalancePatch{Token: token, Delta: delta.Mul(decimal.NewFromInt(sign))}
	return appendOrRollback(ctx, tx, StrategySpec, id, ev.Undo, t, patch)
}

func (h *Handlers) populate(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error {
	e := ev.Payload.(Populate)
	id, err := aggregateID(e.ChainID, e.Address)
	if err != nil {
		return err
	}
	patch := domain.PopulatePatch{Offers: make([]domain.PopulatedOffer, 0, len(e.Offers))}
	for _, o := range e.Offers {
		if !o.OfferType.IsValid() {
			return fmt.Errorf("%w: offer type %q", stream.ErrMalformedEvent, o.OfferType)
		}
		patch.Offers = append(patch.Offers, domain.PopulatedOffer{
			Type:    o.OfferType,
			Index:   o.Index,
			OfferID: o.OfferID,
			Gives:   o.Gives,
			Wants:   o.Wants,
		})
	}
	return appendOrRollback(ctx, tx, OfferSetSpec, id, ev.Undo, t, patch)
}

func (h *Handlers) retract(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error {
	e := ev.Payload.(Retract)
	id, err := aggregateID(e.ChainID, e.Address)
	if err != nil {
		return err
	}
	patch := domain.RetractPatch{Offers: make([]domain.SlotRef, 0, len(e.Offers))}
	for _, o := range e.Offers {
		if !o.OfferType.IsValid() {
			return fmt.Errorf("%w: offer type %q", stream.ErrMalformedEvent, o.OfferType)
		}
		patch.Offers = append(patch.Offers, domain.SlotRef{Type: o.OfferType, Index: o.Index})
	}
	return appendOrRollback(ctx, tx, OfferSetSpec, id, ev.Undo, t, patch)
}

func (h *Handlers) setIndexMapping(ctx context.Context, tx storage.Tx, ev stream.Event[Payload], t *domain.Transaction) error {
	e := ev.Payload.(SetIndexMapping)
	id, err := aggregateID(e.ChainID, e.Address)
	if err != nil {
		return err
	}
	if !e.OfferType.IsValid() {
		return fmt.Errorf("%w: offer type %q", stream.ErrMalformedEvent, e.OfferType)
	}
	patch := domain.IndexMappingPatch{Type: e.OfferType, Index: e.Index, OfferID: e.OfferID}
	return appendOrRollback(ctx, tx, OfferSetSpec, id, ev.Undo, t, patch)
}

// appendOrRollback versions id with patch, or removes its last version on undo.
func appendOrRollback[F any](ctx context.Context, tx storage.Tx, spec versioned.Spec[F], id ids.AggregateID, undo bool, t *domain.Transaction, patch domain.Patch[F]) error {
	store := versioned.New(tx.Aggregates(spec.Kind), spec)
	if undo {
		return store.Rollback(ctx, id)
	}
	_, _, err := store.Append(ctx, id, t.ID, patch)
	return err
}

func aggregateID(chain uint64, address string) (ids.AggregateID, error) {
	id, err := ids.NewAggregateID(ids.ChainID(chain), address)
	if err != nil {
		return ids.AggregateID{}, fmt.Errorf("%w: %v", stream.ErrMalformedEvent, err)
	}
	return id, nil
}
