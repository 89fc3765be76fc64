package registry

import (
	"errors"
	"fmt"
)

// ErrCancelled is the cause attached to a binding's context when the binding
// is released, either because its entity resigned or because the registry was
// closed.
var ErrCancelled = errors.New("entity binding was released")

// ErrClosed is returned by Register() after the registry has been closed.
var ErrClosed = errors.New("registry is closed")

// NotRegisteredError indicates that an entity has no active binding.
type NotRegisteredError struct {
	Entity Identity
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("entity '%s' is not registered", e.Entity)
}

// AlreadyRegisteredError indicates that an entity is already bound to a
// persistence ID.
type AlreadyRegisteredError struct {
	Entity Identity

	// PersistenceID is the ID of the existing binding.
	PersistenceID string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf(
		"entity '%s' is already registered with persistence ID '%s'",
		e.Entity,
		e.PersistenceID,
	)
}

// ClaimedError indicates that a persistence ID is already bound to a
// different live entity.
type ClaimedError struct {
	PersistenceID string
	Owner         Identity
}

func (e *ClaimedError) Error() string {
	return fmt.Sprintf(
		"persistence ID '%s' is already claimed by entity '%s'",
		e.PersistenceID,
		e.Owner,
	)
}
