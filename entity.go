package journal

import (
	"github.com/dogmatiq/journal/registry"
	"github.com/google/uuid"
)

// Identity is the runtime identity of a single entity instance.
type Identity = registry.Identity

// NewIdentity returns a new random identity, for use by hosts that do not
// assign their own.
func NewIdentity() Identity {
	return Identity(uuid.NewString())
}

// Entity is an actor-like object hosted by the runtime.
type Entity interface {
	// Identity returns the entity's runtime identity.
	Identity() Identity
}

// EventSourced is an entity whose state is derived solely from its events.
type EventSourced interface {
	Entity

	// PersistenceID returns the ID of the entity's event stream.
	//
	// It must remain the same across restarts of the entity.
	PersistenceID() string

	// ApplyEvent updates the entity's state to reflect the occurrence of ev.
	//
	// It is called for each historical event when the entity is registered,
	// and for each new event after it has been persisted by Emit().
	ApplyEvent(ev any)
}
