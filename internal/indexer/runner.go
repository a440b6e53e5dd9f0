// Package indexer runs one consumer per configured stream.
package indexer

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"mangrove-indexer/internal/barrier"
	"mangrove-indexer/internal/config"
	"mangrove-indexer/internal/ids"
	"mangrove-indexer/internal/kandel"
	"mangrove-indexer/internal/observability"
	"mangrove-indexer/internal/oracle"
	"mangrove-indexer/internal/order"
	"mangrove-indexer/internal/storage"
	"mangrove-indexer/internal/stream"
)

// Options contains configuration for creating a Runner.
type Options struct {
	Config  *config.Config
	DB      storage.DB
	Source  stream.Source
	Journal storage.Journal // optional
	Logger  *log.Logger
	Metrics *observability.Metrics
}

// Runner owns the consumers of every configured stream.
type Runner struct {
	consumers []*stream.Consumer
	logger    *log.Logger
}

// NewRunner builds a consumer per stream of opts.Config. Streams share the DB, the
// source and one barrier; they share no other state.
func NewRunner(opts Options) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	cfg := opts.Config
	b := barrier.New(barrier.Options{
		Interval: cfg.Barrier.Interval,
		Timeout:  cfg.Barrier.Timeout,
		Logger:   logger,
		Metrics:  metrics,
	})

	r := &Runner{logger: logger}
	for _, s := range cfg.Streams {
		applier, err := NewApplier(s, b, logger)
		if err != nil {
			return nil, err
		}
		r.consumers = append(r.consumers, stream.NewConsumer(stream.ConsumerOptions{
			Source:       opts.Source,
			Applier:      applier,
			DB:           opts.DB,
			Journal:      opts.Journal,
			BatchSize:    s.BatchSize,
			PollInterval: cfg.Consumer.PollInterval,
			RetryDelay:   cfg.Consumer.RetryDelay,
			MaxRetries:   cfg.Consumer.MaxRetries,
			Logger:       logger,
			Metrics:      metrics,
		}))
	}
	return r, nil
}

// NewApplier returns the dispatcher for one configured stream.
func NewApplier(s config.Stream, b *barrier.Barrier, logger *log.Logger) (stream.BatchApplier, error) {
	switch s.Kind {
	case config.KindOracle:
		return oracle.NewDispatcher(s.Name, oracle.Options{Chain: ids.ChainID(s.ChainID), Logger: logger}), nil
	case config.KindKandel:
		return kandel.NewDispatcher(s.Name, kandel.Options{Barrier: b, Logger: logger}), nil
	case config.KindStrategies:
		return order.NewDispatcher(s.Name, order.Options{Logger: logger}), nil
	default:
		return nil, fmt.Errorf("%w: stream %q has unknown kind %q", config.ErrInvalidConfig, s.Name, s.Kind)
	}
}

// Consumers returns the stream consumers in configuration order.
func (r *Runner) Consumers() []*stream.Consumer {
	return r.consumers
}

// Run runs every consumer on its own goroutine until ctx is cancelled or one of them
// fails fatally; a fatal failure stops the others and is returned.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Printf("indexer starting %d streams", len(r.consumers))

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range r.consumers {
		g.Go(func() error {
			if err := c.Run(ctx); err != nil {
				return fmt.Errorf("stream %s: %w", c.Stream(), err)
			}
			return nil
		})
	}

	err := g.Wait()
	r.logger.Println("indexer stopped")
	return err
}
