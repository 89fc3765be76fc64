package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/dogmatiq/journal/internal/x/sqlx"
	"github.com/dogmatiq/marshalkit"
)

// Driver is an implementation of sqlstore.Driver for SQLite.
var Driver = &driver{}

type driver struct {
	// m serializes inserts, as SQLite permits only a single writer at a time
	// and reports "database is locked" rather than waiting.
	m sync.Mutex
}

// IsCompatibleWith returns nil if this driver can be used with db.
func (*driver) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	// Verify that we're using SQLite and that $1-style placeholders are
	// supported.
	return db.QueryRowContext(
		ctx,
		`SELECT sqlite_version() WHERE 1 = $1`,
		1,
	).Err()
}

// CreateSchema creates the schema elements required by the SQLite driver.
func (*driver) CreateSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(
		ctx,
		db,
		`CREATE TABLE IF NOT EXISTS journal_event (
			persistence_id TEXT NOT NULL,
			stream_offset  INTEGER NOT NULL,
			media_type     TEXT NOT NULL,
			data           BLOB NOT NULL,

			PRIMARY KEY (persistence_id, stream_offset)
		)`,
	)

	return nil
}

// DropSchema drops the schema elements required by the SQLite driver.
func (*driver) DropSchema(ctx context.Context, db *sql.DB) (err error) {
	defer sqlx.Recover(&err)

	sqlx.Exec(ctx, db, `DROP TABLE IF EXISTS journal_event`)

	return nil
}

// InsertEvent inserts an event at the next offset of the stream identified
// by id.
func (d *driver) InsertEvent(
	ctx context.Context,
	db *sql.DB,
	id string,
	p marshalkit.Packet,
) (err error) {
	defer sqlx.Recover(&err)

	d.m.Lock()
	defer d.m.Unlock()

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
			$1,
			COALESCE(MAX(stream_offset) + 1, 0),
			$2,
			$3
		FROM journal_event
		WHERE persistence_id = $1`,
		id,
		p.MediaType,
		data,
	)

	return nil
}

// SelectEvents selects all events in the stream identified by id.
func (*driver) SelectEvents(
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
