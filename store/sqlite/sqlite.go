// Package sqlite keeps shard maps in a local SQLite file, which suits a
// single consumer on a developer machine.
package sqlite

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/alexgridx/kinesis-batch/store/sqlstore"
)

// Dialect describes SQLite to the sql store.
var Dialect = sqlstore.Dialect{Name: "sqlite3", Placeholder: sqlstore.Question}

// New opens or creates the database file at path and makes sure the shard
// table exists.
func New(appName, tableName, path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// a single writer avoids "database is locked" errors
	db.SetMaxOpenConns(1)

	s, err := sqlstore.New(appName, tableName, db, Dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.CreateTable(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
