package sqlstore

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/dogmatiq/journal/store"
)

var (
	// DefaultMaxIdleConns is the default maximum number of idle connections
	// allowed in the database pool.
	DefaultMaxIdleConns = runtime.GOMAXPROCS(0)

	// DefaultMaxOpenConns is the default maximum number of open connections
	// allowed in the database pool.
	DefaultMaxOpenConns = DefaultMaxIdleConns * 10

	// DefaultMaxConnLifetime is the default maximum lifetime of database
	// connections.
	DefaultMaxConnLifetime = 10 * time.Minute
)

// Factory returns a store.Factory that uses an existing open database pool.
//
// d is the driver to use with db. If it is nil, it is chosen automatically
// from one of the built-in drivers. The pool is not closed when the store is
// closed.
func Factory(db *sql.DB, d Driver) store.Factory {
	return func(ctx context.Context) (store.Store, error) {
		return New(ctx, db, d)
	}
}

// DSNFactory opens a database pool using a DSN each time a store is opened.
type DSNFactory struct {
	// DriverName is the driver name to be passed to sql.Open().
	DriverName string

	// DSN is the data-source name to be passed to sql.Open().
	DSN string

	// Driver is the journal SQL driver to use with this database. If it is
	// nil, it is chosen automatically from one of the built-in drivers.
	Driver Driver

	// MaxIdleConns is the maximum number of idle connections allowed in the
	// database pool.
	//
	// If it is zero, DefaultMaxIdleConns is used.
	MaxIdleConns int

	// MaxOpenConns is the maximum number of open connections allowed in the
	// database pool.
	//
	// If it is zero, DefaultMaxOpenConns is used.
	MaxOpenConns int

	// MaxConnLifetime is the maximum lifetime of database connections.
	//
	// If it is zero, DefaultMaxConnLifetime is used.
	MaxConnLifetime time.Duration
}

// Open opens the database pool and returns a store that uses it.
//
// It satisfies the store.Factory signature. The pool is closed when the store
// is closed.
func (f *DSNFactory) Open(ctx context.Context) (store.Store, error) {
	db, err := f.openDB()
	if err != nil {
		return nil, err
	}

	s, err := New(ctx, db, f.Driver)
	if err != nil {
		// Ignore the error from Close() and instead report the causal error.
		db.Close() // nolint:errcheck
		return nil, err
	}

	s.closeDB = (*sql.DB).Close

	return s, nil
}

// openDB opens the database pool and configures the limits.
func (f *DSNFactory) openDB() (*sql.DB, error) {
	db, err := sql.Open(f.DriverName, f.DSN)
	if err != nil {
		return nil, err
	}

	idle := f.MaxIdleConns
	if idle == 0 {
		idle = DefaultMaxIdleConns
	}
	db.SetMaxIdleConns(idle)

	open := f.MaxOpenConns
	if open == 0 {
		open = DefaultMaxOpenConns
	}
	db.SetMaxOpenConns(open)

	ttl := f.MaxConnLifetime
	if ttl == 0 {
		ttl = DefaultMaxConnLifetime
	}
	db.SetConnMaxLifetime(ttl)

	return db, nil
}
