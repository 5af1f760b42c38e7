package consumer

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

// Payload is the decoded body of a record.
type Payload map[string]interface{}

// Record is a single record read from a shard during a cycle.
type Record struct {
	ShardID                     string
	SequenceNumber              string
	ApproximateArrivalTimestamp time.Time
	PartitionKey                string

	// Data is the raw record body as stored in the stream.
	Data []byte

	// Payload is Data run through the consumer's Decoder. It is nil when
	// the RawDecoder is used.
	Payload Payload
}

func newRecord(shardID string, r types.Record) Record {
	return Record{
		ShardID:                     shardID,
		SequenceNumber:              aws.ToString(r.SequenceNumber),
		ApproximateArrivalTimestamp: aws.ToTime(r.ApproximateArrivalTimestamp),
		PartitionKey:                aws.ToString(r.PartitionKey),
		Data:                        r.Data,
	}
}
