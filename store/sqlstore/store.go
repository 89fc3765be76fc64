package sqlstore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/dogmatiq/journal/internal/x/sqlx"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/marshalkit"
)

// Store is an implementation of store.Store that persists events in an SQL
// database.
type Store struct {
	db      *sql.DB
	driver  Driver
	closeDB func(*sql.DB) error

	m      sync.RWMutex
	closed bool
}

var _ store.Store = (*Store)(nil)

// New returns a store that uses an existing open database pool.
//
// d is the driver to use with db. If it is nil, it is chosen automatically
// from one of the built-in drivers. Closing the store does not close db.
func New(ctx context.Context, db *sql.DB, d Driver) (*Store, error) {
	if d == nil {
		var err error
		d, err = selectDriver(ctx, db)
		if err != nil {
			return nil, err
		}
	}

	return &Store{
		db:     db,
		driver: d,
	}, nil
}

// Append appends an event to the end of the stream identified by id.
func (s *Store) Append(
	ctx context.Context,
	id string,
	p marshalkit.Packet,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	if s.closed {
		return store.ErrClosed
	}

	return s.driver.InsertEvent(ctx, s.db, id, p)
}

// ReadAll returns every event in the stream identified by id, in the order
// they were appended.
func (s *Store) ReadAll(ctx context.Context, id string) (_ []store.Record, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	rows, err := s.driver.SelectEvents(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defer sqlx.Recover(&err)

	var records []store.Record

	for rows.Next() {
		r := store.Record{
			PersistenceID: id,
		}

		sqlx.Must(rows.Scan(
			&r.Offset,
			&r.Packet.MediaType,
			&r.Packet.Data,
		))

		records = append(records, r)
	}

	return records, rows.Err()
}

// Close closes the store, and the database pool if it was opened by the
// store.
func (s *Store) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	s.closed = true

	if s.closeDB != nil {
		return s.closeDB(s.db)
	}

	return nil
}
