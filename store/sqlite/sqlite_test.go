package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	consumer "github.com/alexgridx/kinesis-batch"
)

func TestStore_ShardsLifecycle(t *testing.T) {
	ctx := context.Background()

	s, err := New("test", "kinesis_checkpoint", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	defer s.Close()

	processedAt := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	shards := consumer.ShardMap{
		"shardId-000000000000": {LastSequenceNumber: "1234", LastProcessedAt: processedAt},
		"shardId-000000000001": {LastSequenceNumber: "0"},
	}
	if err := s.SetShards(ctx, "test-stream", shards); err != nil {
		t.Fatalf("set shards error: %v", err)
	}

	// replacing drops shards missing from the new map
	delete(shards, "shardId-000000000001")
	if err := s.SetShards(ctx, "test-stream", shards); err != nil {
		t.Fatalf("set shards error: %v", err)
	}

	got, err := s.GetShards(ctx, "test-stream")
	if err != nil {
		t.Fatalf("get shards error: %v", err)
	}
	if !reflect.DeepEqual(got, shards) {
		t.Fatalf("shards, want %v, got %v", shards, got)
	}

	// other streams are not affected
	other, err := s.GetShards(ctx, "other-stream")
	if err != nil {
		t.Fatalf("get shards error: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no shards for another stream, got %v", other)
	}
}

func TestNew_CreatesTableOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		s, err := New("test", "kinesis_checkpoint", path)
		if err != nil {
			t.Fatalf("new store error: %v", err)
		}
		s.Close()
	}
}
