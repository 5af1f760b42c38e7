// The memory store provides a store that can be used for testing and single-threaded applications.
// DO NOT USE this in a production application where persistence beyond a single application lifecycle is necessary
// or when there are multiple consumers.
package memory

import (
	"context"
	"sync"

	consumer "github.com/alexgridx/kinesis-batch"
)

func New() *Store {
	return &Store{}
}

type Store struct {
	sync.Map
}

// SetShards replaces the shard map stored for the stream.
func (s *Store) SetShards(_ context.Context, streamName string, shards consumer.ShardMap) error {
	s.Store(streamName, shards.Clone())
	return nil
}

// GetShards returns a copy of the shard map stored for the stream, or an
// empty map if nothing was stored yet.
func (s *Store) GetShards(_ context.Context, streamName string) (consumer.ShardMap, error) {
	val, ok := s.Load(streamName)
	if !ok {
		return consumer.ShardMap{}, nil
	}
	return val.(consumer.ShardMap).Clone(), nil
}
