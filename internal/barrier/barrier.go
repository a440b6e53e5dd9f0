// Package barrier blocks a stream until a causally prior transaction, ingested by
// another stream, has reached the ledger.
package barrier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mangrove-indexer/internal/ids"
	"mangrove-indexer/internal/observability"
)

// ErrDependencyTimeout is returned when the awaited transaction did not show up
// within Options.Timeout. Unlike storage.ErrNotFound it is worth retrying.
var ErrDependencyTimeout = errors.New("dependency timeout")

// DefaultInterval is the poll interval used when Options.Interval is zero.
const DefaultInterval = 5 * time.Second

// Checker answers the ledger probe; *ledger.Ledger satisfies it.
type Checker interface {
	HasTransactionAtOrAfter(ctx context.Context, chain ids.ChainID, ts time.Time) (bool, error)
}

// Options configures a Barrier.
type Options struct {
	Interval time.Duration // Default: 5s
	Timeout  time.Duration // Default: 0, wait until the dependency arrives or ctx ends
	Logger   *log.Logger
	Metrics  *observability.Metrics
}

// Barrier polls the ledger on the caller's goroutine. It holds no state between
// calls and is safe for concurrent use by several streams.
type Barrier struct {
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger
	metrics  *observability.Metrics
}

// New creates a barrier.
func New(opts Options) *Barrier {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	return &Barrier{
		interval: interval,
		timeout:  opts.Timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// Wait returns once checker reports a transaction of chain at or after ts.
// It returns ErrDependencyTimeout when the timeout elapses first and ctx.Err()
// when ctx is done.
func (b *Barrier) Wait(ctx context.Context, checker Checker, chain ids.ChainID, ts time.Time) error {
	start := time.Now()

	var deadline <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for attempt := 0; ; attempt++ {
		found, err := checker.HasTransactionAtOrAfter(ctx, chain, ts)
		if err != nil {
			return fmt.Errorf("barrier probe chain %s at %s: %w", chain.Key(), ts.UTC().Format(time.RFC3339), err)
		}
		if found {
			if attempt > 0 {
				b.logger.Printf("barrier released: chain=%s ts=%s waited=%s", chain.Key(), ts.UTC().Format(time.RFC3339), time.Since(start))
			}
			b.metrics.RecordBarrierWait(chain.Key(), time.Since(start), false)
			return nil
		}
		if attempt == 0 {
			b.logger.Printf("barrier waiting: chain=%s ts=%s", chain.Key(), ts.UTC().Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			b.metrics.RecordBarrierWait(chain.Key(), time.Since(start), true)
			return fmt.Errorf("%w: no transaction on chain %s at or after %s within %s",
				ErrDependencyTimeout, chain.Key(), ts.UTC().Format(time.RFC3339), b.timeout)
		case <-ticker.C:
		}
	}
}
