package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"mangrove-indexer/internal/barrier"
	"mangrove-indexer/internal/observability"
	"mangrove-indexer/internal/storage"
)

// NoOffset is the position of a stream that has never committed a batch.
const NoOffset int64 = -1

// ConsumerOptions contains configuration for creating a Consumer.
type ConsumerOptions struct {
	Source       Source
	Applier      BatchApplier
	DB           storage.DB
	Journal      storage.Journal // optional
	BatchSize    int             // Default: 100
	PollInterval time.Duration   // Default: 1s - wait before polling an idle stream again
	RetryDelay   time.Duration   // Default: 5s - wait before retrying a failed batch
	MaxRetries   int             // Default: 0 - retry forever
	Logger       *log.Logger
	Metrics      *observability.Metrics
}

// Consumer pulls batches of one stream and applies each batch, together with the
// new offset, in one unit of work. A failed batch is never acknowledged: the offset
// stays put and the same items are fetched again.
type Consumer struct {
	stream       string
	source       Source
	applier      BatchApplier
	db           storage.DB
	journal      storage.Journal
	batchSize    int
	pollInterval time.Duration
	retryDelay   time.Duration
	maxRetries   int
	logger       *log.Logger
	metrics      *observability.Metrics

	offset int64
	loaded bool
}

// NewConsumer creates a consumer for opts.Applier's stream.
func NewConsumer(opts ConsumerOptions) *Consumer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 1 * time.Second
	}

	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	return &Consumer{
		stream:       opts.Applier.Stream(),
		source:       opts.Source,
		applier:      opts.Applier,
		db:           opts.DB,
		journal:      opts.Journal,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		retryDelay:   retryDelay,
		maxRetries:   opts.MaxRetries,
		logger:       logger,
		metrics:      metrics,
		offset:       NoOffset,
	}
}

// Stream returns the consumed stream name.
func (c *Consumer) Stream() string {
	return c.stream
}

// Offset returns the last committed offset, or NoOffset.
func (c *Consumer) Offset() int64 {
	return c.offset
}

// sourceError marks failures of the source, which are always retried.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return "fetch: " + e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// Run consumes the stream until ctx is done or a fatal error occurs.
// Returns nil when ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Printf("stream %s: consumer starting", c.stream)

	failures := 0
	for {
		n, err := c.Step(ctx)
		if ctx.Err() != nil {
			c.logger.Printf("stream %s: consumer stopped at offset %d", c.stream, c.offset)
			return nil
		}

		if err != nil {
			reason := failureReason(err)
			c.metrics.RecordBatchFailed(c.stream, reason)
			if reason == observability.ReasonFatal {
				c.logger.Printf("stream %s: fatal error after offset %d: %v", c.stream, c.offset, err)
				return err
			}

			failures++
			if c.maxRetries > 0 && failures > c.maxRetries {
				c.logger.Printf("stream %s: giving up after %d attempts: %v", c.stream, failures, err)
				return fmt.Errorf("stream %s: retries exhausted: %w", c.stream, err)
			}
			c.logger.Printf("stream %s: batch after offset %d failed (%s, attempt %d), retrying in %s: %v",
				c.stream, c.offset, reason, failures, c.retryDelay, err)
			if !sleep(ctx, c.retryDelay) {
				return nil
			}
			continue
		}

		failures = 0
		if n == 0 && !sleep(ctx, c.pollInterval) {
			return nil
		}
	}
}

// Step fetches and applies at most one batch. Returns the number of items in it.
func (c *Consumer) Step(ctx context.Context) (int, error) {
	if !c.loaded {
		if err := c.loadOffset(ctx); err != nil {
			return 0, err
		}
	}

	batch, err := c.source.Fetch(ctx, c.stream, c.offset, c.batchSize)
	if err != nil {
		return 0, &sourceError{err: err}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	start := time.Now()
	var stats Stats
	err = c.db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		stats, err = c.applier.ApplyBatch(ctx, tx, batch)
		if err != nil {
			return err
		}
		return tx.Offsets().Set(ctx, c.stream, stats.LastOffset)
	})
	if err != nil {
		if errors.Is(err, storage.ErrTransient) {
			c.metrics.RecordDBError("projection", "apply_batch")
		}
		return len(batch), err
	}

	c.offset = stats.LastOffset
	c.metrics.RecordBatchCommitted(c.stream, c.offset, time.Since(start))
	for _, r := range stats.Results {
		c.metrics.RecordEvent(c.stream, r.Kind, r.Undo, r.Skipped)
	}
	c.appendJournal(ctx, batch, stats)

	return len(batch), nil
}

func (c *Consumer) loadOffset(ctx context.Context) error {
	return c.db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.Offsets().Get(ctx, c.stream)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.offset = NoOffset
		case err != nil:
			return fmt.Errorf("load offset of %s: %w", c.stream, err)
		default:
			c.offset = o.Offset
		}
		c.loaded = true
		c.logger.Printf("stream %s: resuming after offset %d", c.stream, c.offset)
		return nil
	})
}

// appendJournal records a committed batch. Failures are logged, never fatal: the
// projection is already durable.
func (c *Consumer) appendJournal(ctx context.Context, batch []RawEvent, stats Stats) {
	if c.journal == nil {
		return
	}

	timestamps := make(map[int64]time.Time, len(batch))
	for _, raw := range batch {
		timestamps[raw.Offset] = raw.Timestamp
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	entries := make([]storage.JournalEntry, 0, len(stats.Results))
	for _, r := range stats.Results {
		entries = append(entries, storage.JournalEntry{
			BatchID:   batchID,
			Stream:    c.stream,
			Offset:    r.Offset,
			Kind:      r.Kind,
			Undo:      r.Undo,
			Skipped:   r.Skipped,
			Timestamp: timestamps[r.Offset],
			AppliedAt: now,
		})
	}

	if err := c.journal.Append(ctx, entries); err != nil {
		c.metrics.JournalErrors.Inc()
		c.logger.Printf("stream %s: journal batch %s: %v", c.stream, batchID, err)
	}
}

// failureReason classifies a batch error for the retry policy.
func failureReason(err error) string {
	var srcErr *sourceError
	switch {
	case storage.IsFatal(err):
		return observability.ReasonFatal
	case errors.As(err, &srcErr):
		return observability.ReasonSource
	case errors.Is(err, barrier.ErrDependencyTimeout):
		return observability.ReasonTimeout
	case errors.Is(err, storage.ErrTransient):
		return observability.ReasonTransient
	default:
		return observability.ReasonFatal
	}
}

// sleep waits for d or until ctx is done. Reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
