package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	consumer "github.com/alexgridx/kinesis-batch"
)

const localhost = "127.0.0.1:6379"

// New returns a store that keeps shard maps in Redis hashes
func New(appName string, opts ...Option) (*Store, error) {
	if appName == "" {
		return nil, errors.New("must provide app name")
	}

	s := &Store{
		appName: appName,
	}

	// override defaults
	for _, opt := range opts {
		opt(s)
	}

	// default client if none provided
	if s.client == nil {
		addr := os.Getenv("REDIS_URL")
		if addr == "" {
			addr = localhost
		}

		client := redis.NewClient(&redis.Options{Addr: addr})
		s.client = client
	}

	// verify we can ping server
	_, err := s.client.Ping(context.Background()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}

	return s, nil
}

// Store keeps one hash per stream, with a field per shard holding the JSON
// encoded checkpoint.
type Store struct {
	appName string
	client  *redis.Client
}

// GetShards fetches the shard map of the stream. A stream without a stored
// map yields an empty map.
func (s *Store) GetShards(ctx context.Context, streamName string) (consumer.ShardMap, error) {
	fields, err := s.client.HGetAll(ctx, s.key(streamName)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "get shards of %s", streamName)
	}

	shards := make(consumer.ShardMap, len(fields))
	for shardID, val := range fields {
		var cp consumer.ShardCheckpoint
		if err := json.Unmarshal([]byte(val), &cp); err != nil {
			return nil, errors.Wrapf(err, "decode checkpoint of %s", shardID)
		}
		shards[shardID] = cp
	}
	return shards, nil
}

// SetShards replaces the stored shard map in a single transaction, so a
// reader never sees a partly written map.
func (s *Store) SetShards(ctx context.Context, streamName string, shards consumer.ShardMap) error {
	ids := shards.ShardIDs()
	sort.Strings(ids)

	values := make([][]byte, len(ids))
	for i, id := range ids {
		val, err := json.Marshal(shards[id])
		if err != nil {
			return errors.Wrapf(err, "encode checkpoint of %s", id)
		}
		values[i] = val
	}

	key := s.key(streamName)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		for i, id := range ids {
			pipe.HSet(ctx, key, id, values[i])
		}
		return nil
	})
	return errors.Wrapf(err, "set shards of %s", streamName)
}

// key generates a unique Redis key for storage of the shard map.
func (s *Store) key(streamName string) string {
	return fmt.Sprintf("%v:checkpoint:%v", s.appName, streamName)
}
