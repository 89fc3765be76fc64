package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/marshalkit"
	"github.com/lib/pq"
)

// convertContextErrors converts PostgreSQL "query_canceled" errors into a
// context.Canceled or DeadlineExceeeded error.
//
// The "pq" postgres driver appears to prefer returning its own error if the
// context is canceled after a query is already started.
//
// See https://github.com/lib/pq/blob/master/go18_test.go#L90
func convertContextErrors(ctx context.Context, err error) error {
	if e, ok := unwrapError(err); ok {
		if e.Code.Name() == "query_canceled" && ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return err
}

// unwrapError returns the *pq.Error within err, if any.
//
// The driver returns *pq.Error, but pq.Error has a value receiver for Error()
// so a non-pointer pq.Error may also appear in the chain.
func unwrapError(err error) (*pq.Error, bool) {
	var ptr *pq.Error
	if errors.As(err, &ptr) {
		return ptr, true
	}

	var val pq.Error
	if errors.As(err, &val) {
		return &val, true
	}

	return nil, false
}

// errorConverter decorates the PostgreSQL driver in order to convert native
// "query_canceled" errors into regular context.Canceled / DeadlineExceeded
// errors.
type errorConverter struct {
	d driver
}

func (d errorConverter) IsCompatibleWith(ctx context.Context, db *sql.DB) error {
	err := d.d.IsCompatibleWith(ctx, db)
	return convertContextErrors(ctx, err)
}

func (d errorConverter) CreateSchema(ctx context.Context, db *sql.DB) error {
	err := d.d.CreateSchema(ctx, db)
	return convertContextErrors(ctx, err)
}

func (d errorConverter) DropSchema(ctx context.Context, db *sql.DB) error {
	err := d.d.DropSchema(ctx, db)
	return convertContextErrors(ctx, err)
}

func (d errorConverter) InsertEvent(
	ctx context.Context,
	db *sql.DB,
	id string,
	p marshalkit.Packet,
) error {
	err := d.d.InsertEvent(ctx, db, id, p)
	return convertContextErrors(ctx, err)
}

func (d errorConverter) SelectEvents(
	ctx context.Context,
	db *sql.DB,
	id string,
) (*sql.Rows, error) {
	rows, err := d.d.SelectEvents(ctx, db, id)
	return rows, convertContextErrors(ctx, err)
}
