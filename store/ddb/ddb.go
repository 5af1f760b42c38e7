package ddb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/pkg/errors"

	consumer "github.com/alexgridx/kinesis-batch"
)

// DynamoDBAPI is the subset of the DynamoDB client the store calls.
type DynamoDBAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithDynamoClient sets the dynamoDb client
func WithDynamoClient(svc DynamoDBAPI) Option {
	return func(s *Store) {
		s.client = svc
	}
}

// WithRetryer sets the retryer
func WithRetryer(r Retryer) Option {
	return func(s *Store) {
		s.retryer = r
	}
}

// WithRetryDelay sets the wait between retries of a throttled request
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) {
		s.retryDelay = d
	}
}

// New returns a store that uses DynamoDB for underlying storage. The table
// needs a string hash key "namespace" and a string range key "shard_id".
func New(appName, tableName string, opts ...Option) (*Store, error) {
	s := &Store{
		tableName:  tableName,
		appName:    appName,
		retryer:    &DefaultRetryer{},
		retryDelay: 100 * time.Millisecond,
		maxRetries: 5,
	}

	for _, opt := range opts {
		opt(s)
	}

	// default client
	if s.client == nil {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, errors.Wrap(err, "unable to load SDK config")
		}
		s.client = dynamodb.NewFromConfig(cfg)
	}

	return s, nil
}

// Store keeps one item per tracked shard, keyed by namespace (application
// and stream name) and shard ID.
type Store struct {
	tableName  string
	appName    string
	client     DynamoDBAPI
	retryer    Retryer
	retryDelay time.Duration
	maxRetries int
}

type item struct {
	Namespace      string `dynamodbav:"namespace"`
	ShardID        string `dynamodbav:"shard_id"`
	SequenceNumber string `dynamodbav:"sequence_number"`
	ProcessedAt    int64  `dynamodbav:"processed_at"`
}

// GetShards loads the shard map of the stream with a consistent read.
func (s *Store) GetShards(ctx context.Context, streamName string) (consumer.ShardMap, error) {
	items, err := s.query(ctx, streamName)
	if err != nil {
		return nil, err
	}

	shards := make(consumer.ShardMap, len(items))
	for _, i := range items {
		cp := consumer.ShardCheckpoint{LastSequenceNumber: i.SequenceNumber}
		if i.ProcessedAt > 0 {
			cp.LastProcessedAt = time.Unix(0, i.ProcessedAt).UTC()
		}
		shards[i.ShardID] = cp
	}
	return shards, nil
}

// SetShards writes every shard of the map and deletes the items of shards no
// longer in it. DynamoDB has no multi-item replace, so a failure part way
// leaves a mix of old and new items; the next successful call repairs it.
func (s *Store) SetShards(ctx context.Context, streamName string, shards consumer.ShardMap) error {
	existing, err := s.query(ctx, streamName)
	if err != nil {
		return err
	}

	namespace := s.namespace(streamName)
	for shardID, cp := range shards {
		i := item{
			Namespace:      namespace,
			ShardID:        shardID,
			SequenceNumber: cp.LastSequenceNumber,
		}
		if cp.Consumed() {
			i.ProcessedAt = cp.LastProcessedAt.UnixNano()
		}

		av, err := attributevalue.MarshalMap(i)
		if err != nil {
			return errors.Wrap(err, "marshal map")
		}

		err = s.call(ctx, func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String(s.tableName),
				Item:      av,
			})
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "put shard %s", shardID)
		}
	}

	for _, i := range existing {
		if _, ok := shards[i.ShardID]; ok {
			continue
		}

		shardID := i.ShardID
		err := s.call(ctx, func() error {
			_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"namespace": &types.AttributeValueMemberS{Value: namespace},
					"shard_id":  &types.AttributeValueMemberS{Value: shardID},
				},
			})
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "delete shard %s", shardID)
		}
	}

	return nil
}

func (s *Store) query(ctx context.Context, streamName string) ([]item, error) {
	var (
		items []item
		input = &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			ConsistentRead:         aws.Bool(true),
			KeyConditionExpression: aws.String("#namespace = :namespace"),
			ExpressionAttributeNames: map[string]string{
				"#namespace": "namespace",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":namespace": &types.AttributeValueMemberS{Value: s.namespace(streamName)},
			},
		}
	)

	for {
		var resp *dynamodb.QueryOutput
		err := s.call(ctx, func() (err error) {
			resp, err = s.client.Query(ctx, input)
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "query shards of %s", streamName)
		}

		var page []item
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &page); err != nil {
			return nil, errors.Wrap(err, "unmarshal items")
		}
		items = append(items, page...)

		if len(resp.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}

// call runs fn, retrying errors the retryer accepts.
func (s *Store) call(ctx context.Context, fn func() error) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = fn()
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !s.retryer.ShouldRetry(err)
		},
		Attempts: s.maxRetries + 1,
		Delay:    s.retryDelay,
		Clock:    clock.WallClock,
		Stop:     ctx.Done(),
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func (s *Store) namespace(streamName string) string {
	return fmt.Sprintf("%s-%s", s.appName, streamName)
}
