package sqlstore

import (
	"context"
	"database/sql"

	"github.com/dogmatiq/marshalkit"
)

// Driver is used to interface with the underlying SQL database.
type Driver interface {
	// IsCompatibleWith returns nil if this driver can be used with db.
	IsCompatibleWith(ctx context.Context, db *sql.DB) error

	// CreateSchema creates any SQL schema elements required by the driver.
	CreateSchema(ctx context.Context, db *sql.DB) error

	// DropSchema removes any SQL schema elements created by CreateSchema().
	DropSchema(ctx context.Context, db *sql.DB) error

	// InsertEvent inserts an event at the next offset of the stream
	// identified by id.
	InsertEvent(
		ctx context.Context,
		db *sql.DB,
		id string,
		p marshalkit.Packet,
	) error

	// SelectEvents selects all events in the stream identified by id, in
	// order of their offset.
	//
	// Each row contains the offset, media-type and data of an event.
	SelectEvents(
		ctx context.Context,
		db *sql.DB,
		id string,
	) (*sql.Rows, error)
}
