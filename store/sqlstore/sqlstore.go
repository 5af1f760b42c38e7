// Package sqlstore keeps shard maps in a SQL table. The postgres, mysql and
// sqlite packages open a database with the matching driver and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	consumer "github.com/alexgridx/kinesis-batch"
)

// Dialect covers the differences between the supported databases.
type Dialect struct {
	Name string

	// Placeholder returns the bind parameter for the n-th argument, starting
	// at 1.
	Placeholder func(n int) string
}

var (
	// Dollar numbers bind parameters: $1, $2, ...
	Dollar = func(n int) string { return fmt.Sprintf("$%d", n) }

	// Question uses positional bind parameters: ?, ?, ...
	Question = func(int) string { return "?" }
)

const createTable = `CREATE TABLE IF NOT EXISTS %s (
	namespace VARCHAR(255) NOT NULL,
	shard_id VARCHAR(255) NOT NULL,
	sequence_number VARCHAR(255) NOT NULL,
	processed_at BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (namespace, shard_id)
)`

// Store keeps one row per tracked shard. Rows are namespaced by application
// and stream name.
type Store struct {
	appName   string
	tableName string
	db        *sql.DB
	dialect   Dialect
}

// New returns a store writing to tableName. The table is not created; call
// CreateTable or provision it up front.
func New(appName, tableName string, db *sql.DB, dialect Dialect) (*Store, error) {
	if appName == "" {
		return nil, errors.New("application name not defined")
	}
	if tableName == "" {
		return nil, errors.New("table name not defined")
	}
	if dialect.Placeholder == nil {
		return nil, errors.Errorf("dialect %q has no placeholder format", dialect.Name)
	}

	return &Store{
		appName:   appName,
		tableName: tableName,
		db:        db,
		dialect:   dialect,
	}, nil
}

// CreateTable creates the shard table if it does not exist yet.
func (s *Store) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(createTable, s.tableName))
	return errors.Wrapf(err, "create table %s", s.tableName)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetShards loads the shard map of the stream. A stream without rows yields
// an empty map.
func (s *Store) GetShards(ctx context.Context, streamName string) (consumer.ShardMap, error) {
	query := fmt.Sprintf("SELECT shard_id, sequence_number, processed_at FROM %s WHERE namespace = %s",
		s.tableName, s.dialect.Placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, s.namespace(streamName))
	if err != nil {
		return nil, errors.Wrapf(err, "get shards of %s", streamName)
	}
	defer rows.Close()

	shards := consumer.ShardMap{}
	for rows.Next() {
		var (
			shardID, seqNum string
			processedAt     int64
		)
		if err := rows.Scan(&shardID, &seqNum, &processedAt); err != nil {
			return nil, errors.Wrapf(err, "scan shard of %s", streamName)
		}

		cp := consumer.ShardCheckpoint{LastSequenceNumber: seqNum}
		if processedAt > 0 {
			cp.LastProcessedAt = time.Unix(0, processedAt).UTC()
		}
		shards[shardID] = cp
	}
	return shards, errors.Wrapf(rows.Err(), "get shards of %s", streamName)
}

// SetShards replaces the rows of the stream with the given shard map in a
// single transaction.
func (s *Store) SetShards(ctx context.Context, streamName string, shards consumer.ShardMap) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	namespace := s.namespace(streamName)
	p := s.dialect.Placeholder

	del := fmt.Sprintf("DELETE FROM %s WHERE namespace = %s", s.tableName, p(1))
	if _, err = tx.ExecContext(ctx, del, namespace); err != nil {
		return errors.Wrapf(err, "delete shards of %s", streamName)
	}

	insert := fmt.Sprintf("INSERT INTO %s (namespace, shard_id, sequence_number, processed_at) VALUES (%s)",
		s.tableName, strings.Join([]string{p(1), p(2), p(3), p(4)}, ", "))

	ids := shards.ShardIDs()
	sort.Strings(ids)
	for _, id := range ids {
		cp := shards[id]

		var processedAt int64
		if cp.Consumed() {
			processedAt = cp.LastProcessedAt.UnixNano()
		}

		if _, err = tx.ExecContext(ctx, insert, namespace, id, cp.LastSequenceNumber, processedAt); err != nil {
			return errors.Wrapf(err, "insert shard %s", id)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit shards")
	}
	return nil
}

func (s *Store) namespace(streamName string) string {
	return fmt.Sprintf("%s-%s", s.appName, streamName)
}
