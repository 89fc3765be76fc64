package memorystore

import (
	"context"
	"sync"

	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/marshalkit"
)

// Store is an implementation of store.Store that keeps event streams in
// memory.
//
// The zero-value is ready to use.
type Store struct {
	m       sync.RWMutex
	closed  bool
	streams map[string][]store.Record
}

var _ store.Store = (*Store)(nil)

// Factory returns a store.Factory that always returns s.
//
// This allows a single in-memory store to outlive the journal that uses it,
// as a durable store would.
func Factory(s *Store) store.Factory {
	return func(context.Context) (store.Store, error) {
		s.reopen()
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

	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	if s.streams == nil {
		s.streams = map[string][]store.Record{}
	}

	records := s.streams[id]

	s.streams[id] = append(
		records,
		store.Record{
			PersistenceID: id,
			Offset:        uint64(len(records)),
			Packet:        clonePacket(p),
		},
	)

	return nil
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

	records := s.streams[id]
	result := make([]store.Record, len(records))

	for i, r := range records {
		r.Packet = clonePacket(r.Packet)
		result[i] = r
	}

	return result, nil
}

// Close marks the store as closed.
//
// The events remain in memory; a store that is opened again via Factory()
// retains its content.
func (s *Store) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	s.closed = true

	return nil
}

// Flush removes every stream from the store.
func (s *Store) Flush() {
	s.m.Lock()
	defer s.m.Unlock()

	s.streams = nil
}

// reopen marks the store as open.
func (s *Store) reopen() {
	s.m.Lock()
	defer s.m.Unlock()

	s.closed = false
}

// clonePacket returns a deep copy of p, so that callers can not modify the
// data held by the store.
func clonePacket(p marshalkit.Packet) marshalkit.Packet {
	if p.Data != nil {
		p.Data = append([]byte(nil), p.Data...)
	}

	return p
}
