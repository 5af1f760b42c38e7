package main

import (
	"fmt"

	"github.com/urfave/cli"

	consumer "github.com/alexgridx/kinesis-batch"
	"github.com/alexgridx/kinesis-batch/store/ddb"
	"github.com/alexgridx/kinesis-batch/store/memory"
	"github.com/alexgridx/kinesis-batch/store/mysql"
	"github.com/alexgridx/kinesis-batch/store/postgres"
	"github.com/alexgridx/kinesis-batch/store/redis"
	"github.com/alexgridx/kinesis-batch/store/sqlite"
)

var storeFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "app",
		Usage:  "application name, checkpoints are namespaced by it",
		EnvVar: "KINESIS_BATCH_APP",
		Value:  "kinesis-batch",
	},
	cli.StringFlag{
		Name:   "store",
		Usage:  "checkpoint store: memory, redis, postgres, mysql, sqlite or ddb",
		EnvVar: "KINESIS_BATCH_STORE",
		Value:  "memory",
	},
	cli.StringFlag{
		Name:   "store-dsn",
		Usage:  "connection string for postgres and mysql, file path for sqlite",
		EnvVar: "KINESIS_BATCH_STORE_DSN",
	},
	cli.StringFlag{
		Name:   "table",
		Usage:  "table holding the checkpoints",
		EnvVar: "KINESIS_BATCH_TABLE",
		Value:  "kinesis_checkpoints",
	},
}

type closer func() error

func nopCloser() error { return nil }

// openStore builds the checkpoint store named by kind. Redis reads its
// address from REDIS_URL.
func openStore(kind, appName, tableName, dsn string) (consumer.Store, closer, error) {
	switch kind {
	case "", "memory":
		return memory.New(), nopCloser, nil
	case "redis":
		s, err := redis.New(appName)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser, nil
	case "postgres":
		s, err := postgres.New(appName, tableName, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "mysql":
		s, err := mysql.New(appName, tableName, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := sqlite.New(appName, tableName, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "ddb":
		s, err := ddb.New(appName, tableName)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}
}

func openStoreFromFlags(c *cli.Context) (consumer.Store, closer, error) {
	return openStore(c.String("store"), c.String("app"), c.String("table"), c.String("store-dsn"))
}
