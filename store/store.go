package store

import (
	"context"

	"github.com/dogmatiq/marshalkit"
)

// Store is an interface for a durable, append-only store of event streams.
//
// Each stream is identified by a persistence ID. Implementations must be safe
// for concurrent use across distinct streams. The journal never performs more
// than one concurrent Append() on the same stream.
type Store interface {
	// Append appends an event to the end of the stream identified by id.
	//
	// The event is assigned the next offset in the stream. The first event in
	// a stream has an offset of zero.
	Append(ctx context.Context, id string, p marshalkit.Packet) error

	// ReadAll returns every event in the stream identified by id, in the
	// order they were appended.
	//
	// It returns an empty slice if the stream has no events.
	ReadAll(ctx context.Context, id string) ([]Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// Record is an event persisted within a stream.
type Record struct {
	// PersistenceID identifies the stream that contains the event.
	PersistenceID string

	// Offset is the zero-based position of the event within its stream.
	Offset uint64

	// Packet is the marshaled event.
	Packet marshalkit.Packet
}

// Factory is a function that opens a Store.
//
// The journal calls the factory exactly once when it is started. The store is
// closed when the journal is stopped.
type Factory func(ctx context.Context) (Store, error)
