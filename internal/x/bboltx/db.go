package bboltx

import (
	"context"
	"os"

	"github.com/dogmatiq/linger"
	"go.etcd.io/bbolt"
)

// Open creates and opens a database at the given path.
//
// If mode is zero, 0600 is used.
//
// If the deadline from ctx is sooner than opts.Timeout, the context deadline is
// used as the file-lock timeout instead.
func Open(
	ctx context.Context,
	path string,
	mode os.FileMode,
	opts *bbolt.Options,
) (*bbolt.DB, error) {
	if mode == 0 {
		mode = 0600
	}

	// A non-positive timeout means "wait forever" to BoltDB, so an expired
	// context has to be caught here.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if timeout, ok := linger.FromContextDeadline(ctx); ok {
		var clone bbolt.Options
		if opts == nil {
			clone = *bbolt.DefaultOptions
		} else {
			clone = *opts
		}

		if clone.Timeout == 0 || clone.Timeout > timeout {
			clone.Timeout = timeout
		}

		opts = &clone
	}

	db, err := bbolt.Open(path, mode, opts)
	if err == bbolt.ErrTimeout {
		err = context.DeadlineExceeded
	}

	return db, err
}

// View runs fn inside a read-only transaction.
//
// Panics raised by the MustXXX() helpers within fn are returned as errors.
func View(db *bbolt.DB, fn func(tx *bbolt.Tx)) (err error) {
	defer Recover(&err)

	return db.View(func(tx *bbolt.Tx) error {
		fn(tx)
		return nil
	})
}

// Update runs fn inside a read-write transaction.
//
// Panics raised by the MustXXX() helpers within fn roll the transaction back
// and are returned as errors.
func Update(db *bbolt.DB, fn func(tx *bbolt.Tx)) (err error) {
	defer Recover(&err)

	return db.Update(func(tx *bbolt.Tx) error {
		fn(tx)
		return nil
	})
}
