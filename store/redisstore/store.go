package redisstore

import (
	"context"
	"sync"

	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/journal/store/internal/packetcodec"
	"github.com/dogmatiq/marshalkit"
	"github.com/go-redis/redis"
)

// DefaultKeyPrefix is the default prefix applied to the key of each stream's
// list.
const DefaultKeyPrefix = "journal:stream:"

// Client is the subset of the Redis client used by the store.
type Client interface {
	RPush(key string, values ...interface{}) *redis.IntCmd
	LRange(key string, start, stop int64) *redis.StringSliceCmd
}

var _ Client = (*redis.Client)(nil)

// Store is an implementation of store.Store that persists each stream as a
// Redis list of CBOR-encoded event packets.
type Store struct {
	client      Client
	prefix      string
	closeClient func() error

	m      sync.RWMutex
	closed bool
}

var _ store.Store = (*Store)(nil)

// New returns a store that uses an existing client.
//
// prefix is prepended to each persistence ID to produce the key of the
// stream's list. If it is empty, DefaultKeyPrefix is used. Closing the store
// does not close the client.
func New(client Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &Store{
		client: client,
		prefix: prefix,
	}
}

// Factory returns a store.Factory that connects to Redis using the given
// options.
//
// The connection is verified before the store is returned, and is closed
// when the store is closed.
func Factory(opts *redis.Options, prefix string) store.Factory {
	return func(ctx context.Context) (store.Store, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		client := redis.NewClient(opts)

		if err := client.Ping().Err(); err != nil {
			client.Close() // nolint:errcheck
			return nil, err
		}

		s := New(client, prefix)
		s.closeClient = client.Close

		return s, nil
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

	return s.client.RPush(s.prefix+id, data).Err()
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

	values, err := s.client.LRange(s.prefix+id, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var records []store.Record

	for i, v := range values {
		p, err := packetcodec.Unmarshal([]byte(v))
		if err != nil {
			return nil, err
		}

		records = append(records, store.Record{
			PersistenceID: id,
			Offset:        uint64(i),
			Packet:        p,
		})
	}

	return records, nil
}

// Close closes the store, and the client if it was created by the store.
func (s *Store) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	s.closed = true

	if s.closeClient != nil {
		return s.closeClient()
	}

	return nil
}
