// Package config loads the indexer's stream topology from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for configurations that fail validation.
var ErrInvalidConfig = errors.New("invalid config")

// Stream kinds.
const (
	KindOracle     = "oracle"
	KindKandel     = "kandel"
	KindStrategies = "strategies"
)

// Defaults applied by Load.
const (
	DefaultBatchSize       = 100
	DefaultPollInterval    = 1 * time.Second
	DefaultRetryDelay      = 5 * time.Second
	DefaultBarrierInterval = 5 * time.Second
)

// Config is the indexer configuration.
type Config struct {
	Streams  []Stream `yaml:"streams"`
	Barrier  Barrier  `yaml:"barrier"`
	Consumer Consumer `yaml:"consumer"`
}

// Stream is one consumed stream.
type Stream struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	// ChainID is required for oracle streams, whose payloads do not carry it.
	ChainID   uint64 `yaml:"chainId"`
	BatchSize int    `yaml:"batchSize"`
}

// Barrier tunes the causal barrier.
type Barrier struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"` // zero waits forever
}

// Consumer tunes every stream consumer.
type Consumer struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
	MaxRetries   int           `yaml:"maxRetries"` // zero retries forever
}

// Load reads, validates and completes the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and completes a YAML configuration.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Streams {
		if c.Streams[i].BatchSize == 0 {
			c.Streams[i].BatchSize = DefaultBatchSize
		}
	}
	if c.Barrier.Interval == 0 {
		c.Barrier.Interval = DefaultBarrierInterval
	}
	if c.Consumer.PollInterval == 0 {
		c.Consumer.PollInterval = DefaultPollInterval
	}
	if c.Consumer.RetryDelay == 0 {
		c.Consumer.RetryDelay = DefaultRetryDelay
	}
}

// Validate checks c and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Streams) == 0 {
		errs = append(errs, errors.New("no streams configured"))
	}

	seen := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("streams[%d]: missing name", i))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("streams[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true

		switch s.Kind {
		case KindOracle:
			if s.ChainID == 0 {
				errs = append(errs, fmt.Errorf("stream %q: oracle streams need chainId", s.Name))
			}
		case KindKandel, KindStrategies:
		default:
			errs = append(errs, fmt.Errorf("stream %q: unknown kind %q", s.Name, s.Kind))
		}

		if s.BatchSize < 0 {
			errs = append(errs, fmt.Errorf("stream %q: negative batchSize", s.Name))
		}
	}

	if c.Barrier.Interval < 0 || c.Barrier.Timeout < 0 {
		errs = append(errs, errors.New("barrier: negative duration"))
	}
	if c.Consumer.PollInterval < 0 || c.Consumer.RetryDelay < 0 || c.Consumer.MaxRetries < 0 {
		errs = append(errs, errors.New("consumer: negative value"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
