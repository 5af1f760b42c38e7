package mysql

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/alexgridx/kinesis-batch/store/sqlstore"
)

// Dialect describes MySQL to the sql store.
var Dialect = sqlstore.Dialect{Name: "mysql", Placeholder: sqlstore.Question}

// New returns a store backed by the MySQL database described by dsn, e.g.
// "user:password@tcp(127.0.0.1:3306)/kinesis".
func New(appName, tableName, dsn string) (*sqlstore.Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "mysql connector")
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}

	return sqlstore.New(appName, tableName, db, Dialect)
}
