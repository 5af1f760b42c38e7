package consumer

import (
	"context"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/pkg/errors"
)

func TestStreamCatalog_Describe_Pagination(t *testing.T) {
	var starts []string
	client := &kinesisClientMock{
		describeStreamMock: func(_ context.Context, in *kinesis.DescribeStreamInput, _ ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
			starts = append(starts, aws.ToString(in.ExclusiveStartShardId))
			if in.ExclusiveStartShardId == nil {
				return &kinesis.DescribeStreamOutput{
					StreamDescription: &types.StreamDescription{
						Shards: []types.Shard{
							{ShardId: aws.String("shardId-000000000000")},
							{ShardId: aws.String("shardId-000000000001")},
						},
						HasMoreShards: aws.Bool(true),
					},
				}, nil
			}
			return &kinesis.DescribeStreamOutput{
				StreamDescription: &types.StreamDescription{
					Shards: []types.Shard{
						{
							ShardId:       aws.String("shardId-000000000002"),
							ParentShardId: aws.String("shardId-000000000000"),
							SequenceNumberRange: &types.SequenceNumberRange{
								StartingSequenceNumber: aws.String("49590338271490256608559692540925702759324208523137515618"),
							},
						},
					},
					HasMoreShards: aws.Bool(false),
				},
			}, nil
		},
	}

	shards, err := NewStreamCatalog(client, "orders", discardLogger).Describe(context.Background())
	if err != nil {
		t.Fatalf("describe error: %v", err)
	}

	if len(shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(shards))
	}
	if want := []string{"", "shardId-000000000001"}; !reflect.DeepEqual(starts, want) {
		t.Fatalf("exclusive start shard IDs, want %v, got %v", want, starts)
	}
	if got := shards[2].ParentShardID; got != "shardId-000000000000" {
		t.Fatalf("parent shard ID, want shardId-000000000000, got %q", got)
	}
	if got := shards[2].StartingSequenceNumber; got != "49590338271490256608559692540925702759324208523137515618" {
		t.Fatalf("unexpected starting sequence number %q", got)
	}
}

func TestStreamCatalog_Refresh(t *testing.T) {
	processedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tracked := ShardMap{
		"shard-a": {LastSequenceNumber: "105", LastProcessedAt: processedAt},
		"shard-z": {LastSequenceNumber: "42", LastProcessedAt: processedAt},
	}
	before := tracked.Clone()

	client := &kinesisClientMock{
		describeStreamMock: describeShards("shard-a", "shard-b"),
	}

	refreshed, err := NewStreamCatalog(client, "orders", discardLogger).Refresh(context.Background(), tracked)
	if err != nil {
		t.Fatalf("refresh error: %v", err)
	}

	want := ShardMap{
		// existing entries are never overwritten
		"shard-a": {LastSequenceNumber: "105", LastProcessedAt: processedAt},
		// new shards start at their first sequence number
		"shard-b": {LastSequenceNumber: "0"},
		// shards missing from the response are kept
		"shard-z": {LastSequenceNumber: "42", LastProcessedAt: processedAt},
	}
	if !reflect.DeepEqual(refreshed, want) {
		t.Fatalf("refreshed map, want %v, got %v", want, refreshed)
	}
	if !reflect.DeepEqual(tracked, before) {
		t.Fatalf("input map was modified: %v", tracked)
	}

	ids := refreshed.ShardIDs()
	sort.Strings(ids)
	if want := []string{"shard-a", "shard-b", "shard-z"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("shard IDs, want %v, got %v", want, ids)
	}
}

func TestStreamCatalog_Refresh_NilMap(t *testing.T) {
	client := &kinesisClientMock{
		describeStreamMock: describeShards("shard-a"),
	}

	refreshed, err := NewStreamCatalog(client, "orders", discardLogger).Refresh(context.Background(), nil)
	if err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if len(refreshed) != 1 {
		t.Fatalf("expected 1 shard, got %v", refreshed)
	}
}

func TestStreamCatalog_Refresh_StreamNotFound(t *testing.T) {
	client := &kinesisClientMock{
		describeStreamMock: func(context.Context, *kinesis.DescribeStreamInput, ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
			return nil, &types.ResourceNotFoundException{
				Message: aws.String("Stream orders under account 123456789012 not found."),
			}
		},
	}

	_, err := NewStreamCatalog(client, "orders", discardLogger).Refresh(context.Background(), ShardMap{})
	if !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestStreamCatalog_Refresh_TransportError(t *testing.T) {
	processedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tracked := ShardMap{"shard-a": {LastSequenceNumber: "105", LastProcessedAt: processedAt}}
	client := &kinesisClientMock{
		describeStreamMock: func(context.Context, *kinesis.DescribeStreamInput, ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
			return nil, errors.New("connection reset by peer")
		},
	}
	catalog := NewStreamCatalog(client, "orders", discardLogger)

	if _, err := catalog.Describe(context.Background()); err == nil || IsConfigError(err) {
		t.Fatalf("describe, expected a plain error, got %v", err)
	}

	refreshed, err := catalog.Refresh(context.Background(), tracked)
	if err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if !reflect.DeepEqual(refreshed, tracked) {
		t.Fatalf("tracked shards, want %v, got %v", tracked, refreshed)
	}
}

func TestStreamCatalog_Refresh_Throttled(t *testing.T) {
	tracked := ShardMap{"shard-a": {LastSequenceNumber: "105"}}

	var calls int
	client := &kinesisClientMock{
		describeStreamMock: func(ctx context.Context, in *kinesis.DescribeStreamInput, o ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
			calls++
			if calls < 3 {
				return nil, &types.LimitExceededException{Message: aws.String("Rate exceeded")}
			}
			return describeShards("shard-a", "shard-b")(ctx, in, o...)
		},
	}
	catalog := NewStreamCatalog(client, "orders", discardLogger)
	catalog.retry = testRetryPolicy(nil)

	refreshed, err := catalog.Refresh(context.Background(), tracked)
	if err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("describe calls, want 3, got %d", calls)
	}
	if _, ok := refreshed["shard-b"]; !ok || len(refreshed) != 2 {
		t.Fatalf("expected shard-b to be tracked, got %v", refreshed)
	}
}

func TestStreamCatalog_Refresh_ThrottledPastRetries(t *testing.T) {
	tracked := ShardMap{"shard-a": {LastSequenceNumber: "105"}}

	var calls int
	client := &kinesisClientMock{
		describeStreamMock: func(context.Context, *kinesis.DescribeStreamInput, ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
			calls++
			return nil, &types.LimitExceededException{Message: aws.String("Rate exceeded")}
		},
	}
	catalog := NewStreamCatalog(client, "orders", discardLogger)
	catalog.retry = testRetryPolicy(nil)

	refreshed, err := catalog.Refresh(context.Background(), tracked)
	if err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if calls != 6 {
		t.Fatalf("describe calls, want 6 (1 + 5 retries), got %d", calls)
	}
	if !reflect.DeepEqual(refreshed, tracked) {
		t.Fatalf("tracked shards, want %v, got %v", tracked, refreshed)
	}
}
