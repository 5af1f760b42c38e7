package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/alexgridx/kinesis-batch/store/sqlstore"
)

// Dialect describes PostgreSQL to the sql store.
var Dialect = sqlstore.Dialect{Name: "postgres", Placeholder: sqlstore.Dollar}

// New returns a store backed by the PostgreSQL database at connectionStr,
// which is either a key/value connection string or a postgres:// URL.
func New(appName, tableName, connectionStr string) (*sqlstore.Store, error) {
	if strings.HasPrefix(connectionStr, "postgres://") || strings.HasPrefix(connectionStr, "postgresql://") {
		parsed, err := pq.ParseURL(connectionStr)
		if err != nil {
			return nil, errors.Wrap(err, "parse postgres url")
		}
		connectionStr = parsed
	}

	db, err := sql.Open("postgres", connectionStr)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return sqlstore.New(appName, tableName, db, Dialect)
}
