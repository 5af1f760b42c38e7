package consumer

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

type kinesisClientMock struct {
	describeStreamMock   func(context.Context, *kinesis.DescribeStreamInput, ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error)
	getShardIteratorMock func(context.Context, *kinesis.GetShardIteratorInput, ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	getRecordsMock       func(context.Context, *kinesis.GetRecordsInput, ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
	listStreamsMock      func(context.Context, *kinesis.ListStreamsInput, ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error)
}

func (c *kinesisClientMock) DescribeStream(ctx context.Context, in *kinesis.DescribeStreamInput, o ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
	return c.describeStreamMock(ctx, in, o...)
}

func (c *kinesisClientMock) GetShardIterator(ctx context.Context, in *kinesis.GetShardIteratorInput, o ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error) {
	return c.getShardIteratorMock(ctx, in, o...)
}

func (c *kinesisClientMock) GetRecords(ctx context.Context, in *kinesis.GetRecordsInput, o ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error) {
	return c.getRecordsMock(ctx, in, o...)
}

func (c *kinesisClientMock) ListStreams(ctx context.Context, in *kinesis.ListStreamsInput, o ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error) {
	return c.listStreamsMock(ctx, in, o...)
}

// describeShards answers DescribeStream with a single page holding the given
// shard IDs, each starting at sequence number "0".
func describeShards(shardIDs ...string) func(context.Context, *kinesis.DescribeStreamInput, ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
	return func(context.Context, *kinesis.DescribeStreamInput, ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
		shards := make([]types.Shard, 0, len(shardIDs))
		for _, id := range shardIDs {
			shards = append(shards, types.Shard{
				ShardId: aws.String(id),
				SequenceNumberRange: &types.SequenceNumberRange{
					StartingSequenceNumber: aws.String("0"),
				},
			})
		}
		return &kinesis.DescribeStreamOutput{
			StreamDescription: &types.StreamDescription{
				Shards:        shards,
				HasMoreShards: aws.Bool(false),
			},
		}, nil
	}
}

// iteratorPerShard hands out the shard ID as the shard iterator and records
// the requests it received.
type iteratorPerShard struct {
	mu       sync.Mutex
	requests []*kinesis.GetShardIteratorInput
}

func (it *iteratorPerShard) mock(_ context.Context, in *kinesis.GetShardIteratorInput, _ ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.requests = append(it.requests, in)
	return &kinesis.GetShardIteratorOutput{ShardIterator: in.ShardId}, nil
}

func (it *iteratorPerShard) calls() int {
	it.mu.Lock()
	defer it.mu.Unlock()

	return len(it.requests)
}

func TestListStreams(t *testing.T) {
	var starts []string
	client := &kinesisClientMock{
		listStreamsMock: func(_ context.Context, in *kinesis.ListStreamsInput, _ ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error) {
			starts = append(starts, aws.ToString(in.ExclusiveStartStreamName))
			if in.ExclusiveStartStreamName == nil {
				return &kinesis.ListStreamsOutput{
					StreamNames:    []string{"orders", "payments"},
					HasMoreStreams: aws.Bool(true),
				}, nil
			}
			return &kinesis.ListStreamsOutput{
				StreamNames:    []string{"refunds"},
				HasMoreStreams: aws.Bool(false),
			}, nil
		},
	}

	names, err := ListStreams(context.Background(), client, 2)
	if err != nil {
		t.Fatalf("list streams error: %v", err)
	}

	if want := []string{"orders", "payments", "refunds"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("stream names, want %v, got %v", want, names)
	}
	if want := []string{"", "payments"}; !reflect.DeepEqual(starts, want) {
		t.Fatalf("exclusive start names, want %v, got %v", want, starts)
	}
}

func TestListStreams_InvalidCredentials(t *testing.T) {
	client := &kinesisClientMock{
		listStreamsMock: func(context.Context, *kinesis.ListStreamsInput, ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error) {
			return nil, &smithyError{code: "UnrecognizedClientException", message: "The security token included in the request is invalid."}
		},
	}

	_, err := ListStreams(context.Background(), client, 10)
	if !IsConfigError(err) {
		t.Fatalf("expected config error, got %v", err)
	}
	if err.Error() != "The security token included in the request is invalid." {
		t.Fatalf("expected provider message verbatim, got %q", err.Error())
	}
}
