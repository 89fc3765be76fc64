package store

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when performing an operation on a closed Handle.
var ErrClosed = errors.New("store handle is closed")

// Op is an enumeration of the operations performed on a store.
type Op string

const (
	// OpenOp is the operation that opens the store.
	OpenOp Op = "open"

	// AppendOp is the operation that appends an event to a stream.
	AppendOp Op = "append"

	// ReadOp is the operation that reads the events in a stream.
	ReadOp Op = "read"
)

// Error is an error returned by a store operation.
type Error struct {
	// Op is the operation that failed.
	Op Op

	// PersistenceID is the ID of the stream being operated on. It is empty
	// for operations that do not apply to a specific stream.
	PersistenceID string

	// Cause is the underlying error.
	Cause error
}

func (e *Error) Error() string {
	if e.PersistenceID == "" {
		return fmt.Sprintf("store %s failed: %s", e.Op, e.Cause)
	}

	return fmt.Sprintf(
		"store %s failed for stream '%s': %s",
		e.Op,
		e.PersistenceID,
		e.Cause,
	)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}
