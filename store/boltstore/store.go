package boltstore

import (
	"context"
	"os"
	"sync"

	"github.com/dogmatiq/journal/internal/x/bboltx"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/journal/store/internal/packetcodec"
	"github.com/dogmatiq/marshalkit"
	"go.etcd.io/bbolt"
)

var (
	// rootBucketKey is the key of the top-level bucket used by the journal.
	rootBucketKey = []byte("journal")

	// streamsBucketKey is the key of a child of the root bucket that contains
	// one bucket per stream.
	//
	// The keys of each stream bucket are big-endian offsets, the values are
	// CBOR-encoded event packets. The bucket's sequence is the number of events
	// in the stream.
	streamsBucketKey = []byte("streams")
)

// Store is an implementation of store.Store that persists events in a BoltDB
// database.
type Store struct {
	db      *bbolt.DB
	closeDB func(*bbolt.DB) error

	m      sync.RWMutex
	closed bool
}

var _ store.Store = (*Store)(nil)

// New returns a store that uses an existing open database.
//
// Closing the store does not close db.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// FileFactory returns a store.Factory that opens (or creates) the BoltDB
// database at path.
//
// If mode is zero, 0600 is used. If opts is nil, bbolt.DefaultOptions is used.
// The database is closed when the store is closed.
func FileFactory(
	path string,
	mode os.FileMode,
	opts *bbolt.Options,
) store.Factory {
	return func(ctx context.Context) (store.Store, error) {
		db, err := bboltx.Open(ctx, path, mode, opts)
		if err != nil {
			return nil, err
		}

		return &Store{
			db:      db,
			closeDB: (*bbolt.DB).Close,
		}, nil
	}
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

	data, err := packetcodec.Marshal(p)
	if err != nil {
		return err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	if s.closed {
		return store.ErrClosed
	}

	return bboltx.Update(
		s.db,
		func(tx *bbolt.Tx) {
			b := bboltx.MustCreateBucketIfNotExists(
				tx,
				rootBucketKey,
				streamsBucketKey,
				[]byte(id),
			)

			offset := bboltx.MustNextSequence(b) - 1
			bboltx.MustPut(b, bboltx.MarshalUint64(offset), data)
		},
	)
}

// ReadAll returns every event in the stream identified by id, in the order
// they were appended.
func (s *Store) ReadAll(ctx context.Context, id string) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.m.RLock()
	defer s.m.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	var records []store.Record

	err := bboltx.View(
		s.db,
		func(tx *bbolt.Tx) {
			b := bboltx.Bucket(
				tx,
				rootBucketKey,
				streamsBucketKey,
				[]byte(id),
			)
			if b == nil {
				return
			}

			bboltx.Must(b.ForEach(func(k, v []byte) error {
				p, err := packetcodec.Unmarshal(v)
				if err != nil {
					return err
				}

				records = append(records, store.Record{
					PersistenceID: id,
					Offset:        bboltx.UnmarshalUint64(k),
					Packet:        p,
				})

				return nil
			}))
		},
	)

	return records, err
}

// Close closes the store, and the database if it was opened by the store.
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
