package postgres

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/journal/internal/x/sqlx"
	"github.com/dogmatiq/marshalkit"
)

// Driver is an implementation of sqlstore.Driver for PostgreSQL.
var Driver errorConverter

type driver struct{}

// IsCompatibleWith returns nil if this driver can be used with db.
func (driver) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	// Verify that we're using PostgreSQL and that $1-style placeholders are
	// supported.
	return db.QueryRowContext(
		ctx,
		`SELECT pg_backend_pid() WHERE 1 = $1`,
		1,
	).Err()
}

// CreateSchema creates any SQL schema elements required by the driver.
func (driver) CreateSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	tx := sqlx.Begin(ctx, db)
	defer tx.Rollback() // nolint:errcheck

	sqlx.Exec(
		ctx,
		tx,
		`CREATE TABLE IF NOT EXISTS journal_event (
			persistence_id TEXT NOT NULL,
			stream_offset  BIGINT NOT NULL,
			media_type     TEXT NOT NULL,
			data           BYTEA NOT NULL,

			PRIMARY KEY (persistence_id, stream_offset)
		)`,
	)

	sqlx.Commit(tx)

	return nil
}

// DropSchema removes any SQL schema elements created by CreateSchema().
func (driver) DropSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS journal_event`)
	return err
}

// InsertEvent inserts an event at the next offset of the stream identified
// by id.
func (driver) InsertEvent(
	ctx context.Context,
	db *sql.DB,
	id string,
	p marshalkit.Packet,
) (err error) {
	defer sqlx.Recover(&err)

	data := p.Data
	if data == nil {
		data = []byte{}
	}

	sqlx.Exec(
		ctx,
		db,
		`INSERT INTO journal_event (
			persistence_id,
			stream_offset,
			media_type,
			data
		) SELECT
			$1::TEXT,
			COALESCE(MAX(stream_offset) + 1, 0),
			$2::TEXT,
			$3::BYTEA
		FROM journal_event
		WHERE persistence_id = $1::TEXT`,
		id,
		p.MediaType,
		data,
	)

	return nil
}

// SelectEvents selects all events in the stream identified by id.
func (driver) SelectEvents(
	ctx context.Context,
	db *sql.DB,
	id string,
) (*sql.Rows, error) {
	return db.QueryContext(
		ctx,
		`SELECT
			stream_offset,
			media_type,
			data
		FROM journal_event
		WHERE persistence_id = $1
		ORDER BY stream_offset`,
		id,
	)
}
