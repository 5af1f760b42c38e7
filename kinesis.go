package consumer

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/pkg/errors"
)

// KinesisAPI is the subset of the Kinesis client the consumer calls.
// *kinesis.Client satisfies it; tests inject a mock.
type KinesisAPI interface {
	DescribeStream(ctx context.Context, params *kinesis.DescribeStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
	ListStreams(ctx context.Context, params *kinesis.ListStreamsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error)
}

// ListStreams returns the names of every stream visible to the client,
// requesting pageSize names per call.
func ListStreams(ctx context.Context, client KinesisAPI, pageSize int32) ([]string, error) {
	var (
		names []string
		input = &kinesis.ListStreamsInput{Limit: aws.Int32(pageSize)}
	)

	for {
		resp, err := client.ListStreams(ctx, input)
		if err != nil {
			if class := Classify(err); class.Fatal() {
				return nil, newConfigError("ListStreams", class, err)
			}
			return nil, errors.Wrap(err, "list streams")
		}
		names = append(names, resp.StreamNames...)

		if !aws.ToBool(resp.HasMoreStreams) || len(resp.StreamNames) == 0 {
			return names, nil
		}

		input = &kinesis.ListStreamsInput{
			Limit:                    aws.Int32(pageSize),
			ExclusiveStartStreamName: aws.String(names[len(names)-1]),
		}
	}
}
