package main

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/journal/store/sqlstore"
	"github.com/dogmatiq/journal/store/storeconfig"
)

// createSchema creates the journal's tables in the configured SQL database,
// if they do not already exist.
func createSchema(ctx context.Context, cfg storeconfig.Config) error {
	db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return sqlstore.CreateSchema(ctx, db)
}
