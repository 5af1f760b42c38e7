package consumer

import (
	"context"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// ScanFunc is the type of the function called for each record read by Scan.
// Returning an error stops the scan; the shard map of the cycle in progress
// is not persisted, so its records are delivered again on the next scan.
type ScanFunc func(*Record) error

// New creates a kinesis consumer with default settings. Use Option to override
// any of the optional attributes.
func New(streamName string, opts ...Option) (*Consumer, error) {
	if streamName == "" {
		return nil, errors.New("must provide stream name")
	}

	// new consumer with noop storage, counter, and logger
	c := &Consumer{
		streamName: streamName,
		store:      noopStore{},
		counter:    noopCounter{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		decoder:    JSONDecoder{},
		clock:      clock.WallClock,
		config:     DefaultConfig(),
	}

	// override defaults
	for _, opt := range opts {
		opt(c)
	}

	if err := c.config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	if c.registerer != nil {
		if err := registerMetrics(c.registerer); err != nil {
			return nil, err
		}
	}

	// default client
	if c.client == nil {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}
		c.client = kinesis.NewFromConfig(cfg)
	}

	c.logger = c.logger.With(slog.String("stream", streamName))
	c.catalog = NewStreamCatalog(c.client, streamName, c.logger)
	c.catalog.retry = c.retryPolicy(c.logger, "")
	c.pool = newWorkerPool(streamName, c.config.MaxWorkers, func(ctx context.Context, t shardTask) (WorkerOutcome, error) {
		return c.ReadShard(ctx, t.shardID, t.checkpoint, t.budget)
	})

	return c, nil
}

// Consumer reads a Kinesis stream in bounded cycles. Every cycle refreshes
// the shard list, reads all tracked shards concurrently and merges their
// progress back into the shard map handed in by the caller.
type Consumer struct {
	streamName string
	client     KinesisAPI
	logger     *slog.Logger
	counter    Counter
	store      Store
	decoder    Decoder
	clock      clock.Clock
	config     Config
	registerer prometheus.Registerer

	catalog *StreamCatalog
	pool    *workerPool
}

// Config returns the configuration the consumer runs with.
func (c *Consumer) Config() Config {
	return c.config
}

// Catalog returns the consumer's view of the stream's shards.
func (c *Consumer) Catalog() *StreamCatalog {
	return c.catalog
}

// RunCycle reads up to budget records from the stream, split evenly between
// the shards in tracked after it has been refreshed. It returns the records
// read and the updated shard map, which the caller persists once it has
// processed the records.
//
// ErrEndOfSession is returned together with a valid shard map when no shard
// produced a record. Any other error leaves the shard map as it was passed in.
// tracked itself is never modified.
func (c *Consumer) RunCycle(ctx context.Context, tracked ShardMap, budget int) ([]Record, ShardMap, error) {
	shards, err := c.catalog.Refresh(ctx, tracked)
	if err != nil {
		counterCycles.WithLabelValues(c.streamName, "error").Inc()
		return nil, tracked.Clone(), err
	}

	if len(shards) == 0 {
		counterCycles.WithLabelValues(c.streamName, "empty").Inc()
		return nil, shards, ErrEndOfSession
	}

	perShard := budget / len(shards)
	tasks := make([]shardTask, 0, len(shards))
	for id, cp := range shards {
		tasks = append(tasks, shardTask{shardID: id, checkpoint: cp, budget: perShard})
	}

	outcomes, err := c.pool.run(ctx, tasks)
	if err != nil {
		counterCycles.WithLabelValues(c.streamName, "error").Inc()
		return nil, tracked.Clone(), err
	}

	var records []Record
	for _, out := range outcomes {
		records = append(records, out.Records...)

		switch {
		case out.Closed:
			c.removeShard(shards, out.ShardID, "closed")
		case out.Stale:
			c.removeShard(shards, out.ShardID, "stale")
		default:
			shards[out.ShardID] = out.Checkpoint
		}

		c.logger.Debug("shard read",
			slog.String("shard-id", out.ShardID),
			slog.String("state", out.State.String()),
			slog.Int("records", len(out.Records)),
		)
	}

	if len(records) == 0 {
		counterCycles.WithLabelValues(c.streamName, "empty").Inc()
		return nil, shards, ErrEndOfSession
	}

	counterCycles.WithLabelValues(c.streamName, "records").Inc()
	return records, shards, nil
}

func (c *Consumer) removeShard(shards ShardMap, shardID, reason string) {
	delete(shards, shardID)
	counterShardsRemoved.WithLabelValues(c.streamName, reason).Inc()
	c.counter.Add(reason, 1)
	c.logger.Info("removing shard from shard map",
		slog.String("shard-id", shardID),
		slog.String("reason", reason),
	)
}

// ReadShard reads a single shard for one cycle, starting from cp and reading
// at most budget records.
func (c *Consumer) ReadShard(ctx context.Context, shardID string, cp ShardCheckpoint, budget int) (WorkerOutcome, error) {
	logger := c.logger.With(slog.String("shard-id", shardID))

	limiter := rate.NewLimiter(rate.Inf, 0)
	if c.config.PollInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(c.config.PollInterval), 1)
	}

	w := &shardWorker{
		streamName: c.streamName,
		shardID:    shardID,
		start:      cp,
		budget:     budget,
		client:     c.client,
		retry:      c.retryPolicy(logger, shardID),
		decoder:    c.decoder,
		clock:      c.clock,
		limiter:    limiter,
		logger:     logger,
		counter:    c.counter,
		cfg:        c.config,
	}
	return w.run(ctx)
}

// retryPolicy returns the policy for provider calls on shardID. DescribeStream
// retries are counted under an empty shard ID.
func (c *Consumer) retryPolicy(logger *slog.Logger, shardID string) RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.config.MaxRetries,
		Delay:      c.config.RetryDelay,
		Clock:      c.clock,
		Logger:     logger,
		OnRetry: func(error, int) {
			counterRetries.WithLabelValues(c.streamName, shardID).Inc()
			c.counter.Add("retries", 1)
		},
	}
}

// Scan runs cycles against the stream until a cycle comes back empty, calling
// fn for every record. The shard map is loaded from the store before the
// first cycle and written back after fn has seen all records of a cycle, so
// records are delivered at least once.
func (c *Consumer) Scan(ctx context.Context, fn ScanFunc) error {
	shards, err := c.store.GetShards(ctx, c.streamName)
	if err != nil {
		return errors.Wrap(err, "get shards")
	}
	if shards == nil {
		shards = ShardMap{}
	}

	for {
		records, next, cycleErr := c.RunCycle(ctx, shards, c.config.CycleBudget)
		if cycleErr != nil && !errors.Is(cycleErr, ErrEndOfSession) {
			return cycleErr
		}

		for i := range records {
			if err := fn(&records[i]); err != nil {
				return err
			}
		}

		if err := c.store.SetShards(ctx, c.streamName, next); err != nil {
			return errors.Wrap(err, "set shards")
		}
		shards = next

		if cycleErr != nil {
			c.logger.Info("session ended", slog.Int("shards", len(shards)))
			return nil
		}
	}
}
