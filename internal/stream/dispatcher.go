package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"mangrove-indexer/internal/storage"
)

// Result describes the outcome of one event of a batch.
type Result struct {
	Offset  int64
	Kind    string
	Undo    bool
	Skipped bool
}

// Stats summarizes an applied batch.
type Stats struct {
	Applied    int
	Undone     int
	Skipped    int
	LastOffset int64
	Results    []Result
}

// BatchApplier applies raw batches of one stream. Every Dispatcher implements it,
// which lets consumers stay independent of payload types.
type BatchApplier interface {
	Stream() string
	ApplyBatch(ctx context.Context, tx storage.Tx, batch []RawEvent) (Stats, error)
}

// Dispatcher decodes raw events of one stream and routes them to their handlers.
type Dispatcher[P Payload] struct {
	stream   string
	decode   Decoder[P]
	registry *Registry[P]
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher for stream.
func NewDispatcher[P Payload](stream string, decode Decoder[P], registry *Registry[P], logger *log.Logger) *Dispatcher[P] {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher[P]{
		stream:   stream,
		decode:   decode,
		registry: registry,
		logger:   logger,
	}
}

var _ BatchApplier = (*Dispatcher[Payload])(nil)

// Stream returns the stream name.
func (d *Dispatcher[P]) Stream() string {
	return d.stream
}

// ApplyBatch applies batch in offset order inside tx. Unknown kinds are skipped.
// The first failing event aborts the batch; the caller must discard tx.
func (d *Dispatcher[P]) ApplyBatch(ctx context.Context, tx storage.Tx, batch []RawEvent) (Stats, error) {
	ordered := make([]RawEvent, len(batch))
	copy(ordered, batch)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Offset < ordered[j].Offset
	})

	stats := Stats{Results: make([]Result, 0, len(ordered))}
	for _, raw := range ordered {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := d.apply(ctx, tx, raw)
		if err != nil {
			d.logger.Printf("stream %s: event at offset %d failed: %v", d.stream, raw.Offset, err)
			return stats, fmt.Errorf("stream %s offset %d: %w", d.stream, raw.Offset, err)
		}

		switch {
		case res.Skipped:
			stats.Skipped++
		case res.Undo:
			stats.Undone++
		default:
			stats.Applied++
		}
		stats.LastOffset = raw.Offset
		stats.Results = append(stats.Results, res)
	}
	return stats, nil
}

func (d *Dispatcher[P]) apply(ctx context.Context, tx storage.Tx, raw RawEvent) (Result, error) {
	res := Result{Offset: raw.Offset, Undo: raw.Undo}

	payload, err := d.decode(raw.Payload)
	if errors.Is(err, ErrUnknownEventKind) {
		res.Kind, _ = PeekKind(raw.Payload)
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("decode: %w", err)
	}
	res.Kind = payload.Kind()

	handler, ok := d.registry.Lookup(res.Kind)
	if !ok {
		res.Skipped = true
		return res, nil
	}

	err = handler(ctx, tx, Event[P]{
		Payload:   payload,
		Offset:    raw.Offset,
		Timestamp: raw.Timestamp,
		Undo:      raw.Undo,
	})
	if err != nil {
		return res, fmt.Errorf("%s: %w", res.Kind, err)
	}
	return res, nil
}
