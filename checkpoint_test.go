package consumer

import (
	"testing"
	"time"
)

func TestShardCheckpoint_IdleSince(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cp   ShardCheckpoint
		want bool
	}{
		{"never consumed", ShardCheckpoint{LastSequenceNumber: "0"}, false},
		{"recent", ShardCheckpoint{LastSequenceNumber: "9", LastProcessedAt: now.Add(-time.Hour)}, false},
		{"exactly at threshold", ShardCheckpoint{LastSequenceNumber: "9", LastProcessedAt: now.Add(-DefaultStaleAfter)}, false},
		{"past threshold", ShardCheckpoint{LastSequenceNumber: "9", LastProcessedAt: now.Add(-DefaultStaleAfter - time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cp.IdleSince(now, DefaultStaleAfter); got != tt.want {
				t.Fatalf("IdleSince() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShardCheckpoint_Consumed(t *testing.T) {
	if (ShardCheckpoint{LastSequenceNumber: "0"}).Consumed() {
		t.Fatalf("seeded checkpoint reported as consumed")
	}
	if !(ShardCheckpoint{LastSequenceNumber: "9", LastProcessedAt: time.Now()}).Consumed() {
		t.Fatalf("checkpoint with a processing time not reported as consumed")
	}
}

func TestShardMap_Clone(t *testing.T) {
	m := ShardMap{"shard-a": {LastSequenceNumber: "1"}}
	c := m.Clone()
	c["shard-a"] = ShardCheckpoint{LastSequenceNumber: "2"}
	c["shard-b"] = ShardCheckpoint{}

	if m["shard-a"].LastSequenceNumber != "1" || len(m) != 1 {
		t.Fatalf("clone shares state with the original: %v", m)
	}

	var nilMap ShardMap
	if c := nilMap.Clone(); c == nil || len(c) != 0 {
		t.Fatalf("clone of nil map, want empty map, got %v", c)
	}
}
