package mysql

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/journal/internal/x/sqlx"
	"github.com/dogmatiq/marshalkit"
)

// Driver is an implementation of sqlstore.Driver for MySQL.
var Driver driver

type driver struct{}

// IsCompatibleWith returns nil if this driver can be used with db.
func (driver) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	// Verify that ?-style placeholders are supported.
	err := db.QueryRowContext(
		ctx,
		`SELECT ?`,
		1,
	).Err()

	if err != nil {
		return err
	}

	// Verify that we're using something compatible with MySQL (because the SHOW
	// VARIABLES syntax is supported) and that InnoDB is available.
	return db.QueryRowContext(
		ctx,
		`SHOW VARIABLES LIKE "innodb_page_size"`,
	).Err()
}

// CreateSchema creates any SQL schema elements required by the driver.
func (driver) CreateSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		`CREATE TABLE IF NOT EXISTS journal_event (
			persistence_id VARBINARY(255) NOT NULL,
			stream_offset  BIGINT UNSIGNED NOT NULL,
			media_type     VARBINARY(255) NOT NULL,
			data           LONGBLOB NOT NULL,

			PRIMARY KEY (persistence_id, stream_offset)
		) ENGINE=InnoDB`,
	)

	return nil
}

// DropSchema removes any SQL schema elements created by CreateSchema().
func (driver) DropSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS journal_event`)

	return nil
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
			?,
			COALESCE(MAX(stream_offset) + 1, 0),
			?,
			?
		FROM journal_event
		WHERE persistence_id = ?`,
		id,
		p.MediaType,
		data,
		id,
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
		WHERE persistence_id = ?
		ORDER BY stream_offset`,
		id,
	)
}
