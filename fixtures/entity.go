package fixtures

import (
	"sync"

	"github.com/dogmatiq/journal/registry"
)

// EntityStub is a test implementation of an entity that is not event-sourced.
type EntityStub struct {
	ID registry.Identity
}

// Identity returns the entity's identity.
func (e *EntityStub) Identity() registry.Identity {
	return e.ID
}

// EventSourcedStub is a test implementation of an event-sourced entity.
//
// It records every event applied to it.
type EventSourcedStub struct {
	EntityStub

	PersistenceIDValue string
	ApplyEventFunc     func(ev any)

	m      sync.Mutex
	events []any
}

// NewEventSourcedStub returns a new event-sourced entity with the given
// identity and persistence ID.
func NewEventSourcedStub(id registry.Identity, pid string) *EventSourcedStub {
	return &EventSourcedStub{
		EntityStub:         EntityStub{ID: id},
		PersistenceIDValue: pid,
	}
}

// PersistenceID returns the ID of the entity's event stream.
func (e *EventSourcedStub) PersistenceID() string {
	return e.PersistenceIDValue
}

// ApplyEvent records ev, then calls e.ApplyEventFunc if it is non-nil.
func (e *EventSourcedStub) ApplyEvent(ev any) {
	e.m.Lock()
	e.events = append(e.events, ev)
	e.m.Unlock()

	if e.ApplyEventFunc != nil {
		e.ApplyEventFunc(ev)
	}
}

// Events returns the events that have been applied to the entity, in order.
func (e *EventSourcedStub) Events() []any {
	e.m.Lock()
	defer e.m.Unlock()

	return append([]any(nil), e.events...)
}
