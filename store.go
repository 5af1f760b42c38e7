package consumer

import "context"

// Store persists the shard map of a stream between cycles and restarts.
// SetShards replaces whatever was stored for the stream, so shards dropped
// from the map are dropped from the store as well.
type Store interface {
	GetShards(ctx context.Context, streamName string) (ShardMap, error)
	SetShards(ctx context.Context, streamName string, shards ShardMap) error
}

// noopStore implements the storage interface with discard
type noopStore struct{}

func (n noopStore) GetShards(context.Context, string) (ShardMap, error) { return ShardMap{}, nil }
func (n noopStore) SetShards(context.Context, string, ShardMap) error   { return nil }
