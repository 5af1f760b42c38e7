package consumer

import (
	"time"
)

// ShardCheckpoint is the consumption progress of a single shard.
type ShardCheckpoint struct {
	// LastSequenceNumber of the last consumed record. Empty means the shard
	// has never been consumed.
	LastSequenceNumber string `json:"last_sequence_number,omitempty"`

	// LastProcessedAt is the time the checkpoint last advanced. Zero when
	// nothing has been consumed yet.
	LastProcessedAt time.Time `json:"last_processed_at,omitempty"`
}

// Consumed reports whether records have ever been read from the shard.
func (cp ShardCheckpoint) Consumed() bool {
	return !cp.LastProcessedAt.IsZero()
}

// IdleSince reports whether the checkpoint has not advanced for at least d
// as of now. A checkpoint that never advanced is never idle.
func (cp ShardCheckpoint) IdleSince(now time.Time, d time.Duration) bool {
	if cp.LastProcessedAt.IsZero() {
		return false
	}
	return cp.LastProcessedAt.Before(now.Add(-d))
}

// ShardMap tracks the checkpoint of every known shard of a stream, keyed by
// shard ID. It is the state a host persists between cycles.
type ShardMap map[string]ShardCheckpoint

// Clone returns a copy of the map that can be modified independently.
func (m ShardMap) Clone() ShardMap {
	out := make(ShardMap, len(m))
	for id, cp := range m {
		out[id] = cp
	}
	return out
}

// ShardIDs returns the tracked shard IDs in no particular order.
func (m ShardMap) ShardIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}
