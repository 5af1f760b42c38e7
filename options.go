package consumer

import (
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Option is used to override defaults when creating a new Consumer
type Option func(*Consumer)

// WithConfig replaces the whole engine configuration. Apply it before the
// options that tune single values.
func WithConfig(cfg Config) Option {
	return func(c *Consumer) {
		c.config = cfg
	}
}

// WithStore overrides the default storage of the shard map
func WithStore(store Store) Option {
	return func(c *Consumer) {
		c.store = store
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithCounter overrides the default counter
func WithCounter(counter Counter) Option {
	return func(c *Consumer) {
		c.counter = counter
	}
}

// WithMetricRegistry registers the consumer's prometheus collectors
func WithMetricRegistry(r prometheus.Registerer) Option {
	return func(c *Consumer) {
		c.registerer = r
	}
}

// WithClient overrides the default client
func WithClient(client KinesisAPI) Option {
	return func(c *Consumer) {
		c.client = client
	}
}

// WithDecoder overrides the JSON decoder applied to record payloads
func WithDecoder(d Decoder) Option {
	return func(c *Consumer) {
		c.decoder = d
	}
}

// WithClock overrides the clock used for checkpoint timestamps, staleness
// and retry backoff
func WithClock(clk clock.Clock) Option {
	return func(c *Consumer) {
		c.clock = clk
	}
}

// WithCycleBudget overrides the number of records Scan reads per cycle
func WithCycleBudget(n int) Option {
	return func(c *Consumer) {
		c.config.CycleBudget = n
	}
}

// WithPageLimit overrides the maximum number of records requested by a
// single GetRecords call. Values above MaxPageLimit fail validation in New.
func WithPageLimit(n int) Option {
	return func(c *Consumer) {
		c.config.PageLimit = n
	}
}

// WithMaxRetries overrides how often a throttled call is retried
func WithMaxRetries(n int) Option {
	return func(c *Consumer) {
		c.config.MaxRetries = n
	}
}

// WithRetryDelay overrides the fixed wait between retries
func WithRetryDelay(d time.Duration) Option {
	return func(c *Consumer) {
		c.config.RetryDelay = d
	}
}

// WithStaleAfter overrides how long a shard may sit idle before it is
// dropped from the shard map
func WithStaleAfter(d time.Duration) Option {
	return func(c *Consumer) {
		c.config.StaleAfter = d
	}
}

// WithMaxWorkers caps the number of shards read concurrently. By default
// every shard gets its own worker.
func WithMaxWorkers(n int) Option {
	return func(c *Consumer) {
		c.config.MaxWorkers = n
	}
}

// WithPollInterval sets the minimum time between two GetRecords calls on
// the same shard
func WithPollInterval(d time.Duration) Option {
	return func(c *Consumer) {
		c.config.PollInterval = d
	}
}

// WithAggregation enables de-aggregation of records produced by the KPL
func WithAggregation(a bool) Option {
	return func(c *Consumer) {
		c.config.Aggregation = a
	}
}
