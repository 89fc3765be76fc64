package journal

import (
	"errors"
	"fmt"

	"github.com/dogmatiq/journal/registry"
	"github.com/dogmatiq/journal/store"
)

var (
	// ErrNotStarted is returned when the journal is used before Start() is
	// called.
	ErrNotStarted = errors.New("journal has not been started")

	// ErrAlreadyStarted is returned if Start() is called more than once.
	ErrAlreadyStarted = errors.New("journal has already been started")

	// ErrStopped is returned when the journal is used after Stop() is called.
	ErrStopped = errors.New("journal has been stopped")

	// ErrCancelled is returned to callers waiting on an entity's stream when
	// the entity resigns or the journal is stopped.
	ErrCancelled = registry.ErrCancelled
)

type (
	// NotRegisteredError indicates that an entity has not completed
	// registration.
	NotRegisteredError = registry.NotRegisteredError

	// AlreadyRegisteredError indicates that an entity is already registered.
	// It contains the existing persistence ID.
	AlreadyRegisteredError = registry.AlreadyRegisteredError

	// ClaimedError indicates that a persistence ID is in use by another
	// entity.
	ClaimedError = registry.ClaimedError

	// StoreError indicates that the store failed to append or read events.
	StoreError = store.Error
)

// ConfigurationError indicates that an event-sourced entity does not declare
// a valid persistence ID. It is not recoverable.
type ConfigurationError struct {
	Entity        Identity
	PersistenceID string
	Reason        string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(
		"entity '%s' has an invalid persistence ID (%q): %s",
		e.Entity,
		e.PersistenceID,
		e.Reason,
	)
}
