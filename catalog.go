package consumer

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/juju/clock"
	"github.com/pkg/errors"
)

// ShardDescriptor describes a shard as reported by the stream.
type ShardDescriptor struct {
	ShardID                string
	StartingSequenceNumber string
	ParentShardID          string
	AdjacentParentShardID  string

	// EndingSequenceNumber is set once the shard has been closed by a split
	// or merge.
	EndingSequenceNumber string
}

// StreamCatalog keeps the shard map in line with the shards the stream
// currently reports.
type StreamCatalog struct {
	client     KinesisAPI
	streamName string
	logger     *slog.Logger
	retry      RetryPolicy
}

// NewStreamCatalog returns a catalog for streamName. Throttled DescribeStream
// calls are retried with the default retry settings.
func NewStreamCatalog(client KinesisAPI, streamName string, logger *slog.Logger) *StreamCatalog {
	return &StreamCatalog{
		client:     client,
		streamName: streamName,
		logger:     logger,
		retry: RetryPolicy{
			MaxRetries: DefaultMaxRetries,
			Delay:      DefaultRetryDelay,
			Clock:      clock.WallClock,
			Logger:     logger,
		},
	}
}

// Describe pulls the full list of shards of the stream, following
// pagination until the provider reports no more shards.
func (s *StreamCatalog) Describe(ctx context.Context) ([]ShardDescriptor, error) {
	var (
		shards []ShardDescriptor
		input  = &kinesis.DescribeStreamInput{StreamName: aws.String(s.streamName)}
	)

	for {
		var resp *kinesis.DescribeStreamOutput
		class, err := s.retry.Do(ctx, func() (err error) {
			resp, err = s.client.DescribeStream(ctx, input)
			return err
		})
		if err != nil {
			if class.Fatal() {
				return nil, newConfigError("DescribeStream", class, err)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrapf(err, "describe stream %s", s.streamName)
		}

		// the provider occasionally answers without a description for a
		// stream that is being deleted; treat it as an empty page
		if resp.StreamDescription == nil {
			return shards, nil
		}
		for _, shard := range resp.StreamDescription.Shards {
			shards = append(shards, newShardDescriptor(shard))
		}

		if !aws.ToBool(resp.StreamDescription.HasMoreShards) || len(resp.StreamDescription.Shards) == 0 {
			return shards, nil
		}

		input = &kinesis.DescribeStreamInput{
			StreamName:            aws.String(s.streamName),
			ExclusiveStartShardId: aws.String(shards[len(shards)-1].ShardID),
		}
	}
}

// Refresh returns a copy of tracked extended with every shard the stream
// reports that is not tracked yet, starting at the shard's first sequence
// number. Existing entries are never overwritten, and entries for shards
// missing from the response are kept: a partial answer from the provider must
// not lose checkpoints. Shards leave the map only when a worker reports them
// closed or stale.
//
// Only configuration errors and context cancellation are returned. Any other
// describe failure, including throttling that outlasted the retries, is
// logged and the tracked shards are read as they are.
func (s *StreamCatalog) Refresh(ctx context.Context, tracked ShardMap) (ShardMap, error) {
	shards, err := s.Describe(ctx)
	if err != nil {
		if IsConfigError(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("describe stream failed, reading tracked shards only",
			slog.Int("tracked", len(tracked)),
			slog.String("error", err.Error()),
		)
		return tracked.Clone(), nil
	}

	refreshed := tracked.Clone()
	for _, shard := range shards {
		if _, ok := refreshed[shard.ShardID]; ok {
			continue
		}
		refreshed[shard.ShardID] = ShardCheckpoint{
			LastSequenceNumber: shard.StartingSequenceNumber,
		}
		s.logger.Info("tracking new shard",
			slog.String("stream", s.streamName),
			slog.String("shard-id", shard.ShardID),
			slog.String("parent-shard-id", shard.ParentShardID),
		)
	}
	return refreshed, nil
}

func newShardDescriptor(shard types.Shard) ShardDescriptor {
	d := ShardDescriptor{
		ShardID:               aws.ToString(shard.ShardId),
		ParentShardID:         aws.ToString(shard.ParentShardId),
		AdjacentParentShardID: aws.ToString(shard.AdjacentParentShardId),
	}
	if r := shard.SequenceNumberRange; r != nil {
		d.StartingSequenceNumber = aws.ToString(r.StartingSequenceNumber)
		d.EndingSequenceNumber = aws.ToString(r.EndingSequenceNumber)
	}
	return d
}
