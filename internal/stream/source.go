package stream

import "context"

// Source delivers stream items in offset order.
type Source interface {
	// Fetch returns up to limit items of stream with Offset > after, ordered by
	// offset. An empty result means the stream has nothing new yet.
	Fetch(ctx context.Context, stream string, after int64, limit int) ([]RawEvent, error)
}
