package fixtures

import (
	"context"

	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/journal/store/memorystore"
	"github.com/dogmatiq/marshalkit"
)

// StoreStub is a test implementation of the store.Store interface.
//
// Calls are forwarded to the embedded store unless the corresponding function
// field is set.
type StoreStub struct {
	store.Store

	AppendFunc  func(context.Context, string, marshalkit.Packet) error
	ReadAllFunc func(context.Context, string) ([]store.Record, error)
	CloseFunc   func() error
}

// NewStoreStub returns a stub that forwards to a new in-memory store.
func NewStoreStub() *StoreStub {
	return &StoreStub{
		Store: &memorystore.Store{},
	}
}

// Factory returns a store.Factory that always returns s.
func (s *StoreStub) Factory() store.Factory {
	return func(context.Context) (store.Store, error) {
		return s, nil
	}
}

// Append appends an event to the stream identified by id.
func (s *StoreStub) Append(ctx context.Context, id string, p marshalkit.Packet) error {
	if s.AppendFunc != nil {
		return s.AppendFunc(ctx, id, p)
	}

	return s.Store.Append(ctx, id, p)
}

// ReadAll returns every event in the stream identified by id.
func (s *StoreStub) ReadAll(ctx context.Context, id string) ([]store.Record, error) {
	if s.ReadAllFunc != nil {
		return s.ReadAllFunc(ctx, id)
	}

	return s.Store.ReadAll(ctx, id)
}

// Close closes the store.
func (s *StoreStub) Close() error {
	if s.CloseFunc != nil {
		return s.CloseFunc()
	}

	return s.Store.Close()
}
