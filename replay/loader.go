// Package replay restores entity state from historical events.
package replay

import (
	"context"
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/journal/store"
	"github.com/dogmatiq/marshalkit"
)

// Target is the recipient of replayed events.
type Target interface {
	// ApplyEvent updates the target's state to reflect the occurrence of ev.
	ApplyEvent(ev any)
}

// Reader is the interface used to read historical events.
type Reader interface {
	ReadAll(ctx context.Context, id string) ([]store.Record, error)
}

var _ Reader = (*store.Handle)(nil)

// Loader restores entity state by applying historical events.
type Loader struct {
	// Reader is used to read the historical events.
	Reader Reader

	// Marshaler is used to unmarshal historical events.
	Marshaler marshalkit.ValueMarshaler

	// Logger is the target for log messages about restored entities. If it is
	// nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

// Restore applies every event in the stream identified by id to target, in
// the order they were appended.
//
// It returns the number of events applied. If ctx is canceled before all
// events are applied, the target retains only the events applied so far and
// the cause of the cancellation is returned.
func (l *Loader) Restore(
	ctx context.Context,
	id string,
	target Target,
) (int, error) {
	records, err := l.Reader.ReadAll(ctx, id)
	if err != nil {
		return 0, err
	}

	for i, rec := range records {
		if ctx.Err() != nil {
			logging.Debug(
				l.logger(),
				"restore of stream '%s' canceled after %d of %d event(s)",
				id,
				i,
				len(records),
			)

			return i, context.Cause(ctx)
		}

		ev, err := l.Marshaler.Unmarshal(rec.Packet)
		if err != nil {
			return i, &DecodeError{
				PersistenceID: id,
				Offset:        rec.Offset,
				Cause:         err,
			}
		}

		target.ApplyEvent(ev)
	}

	logging.Debug(
		l.logger(),
		"restored stream '%s' from %d event(s)",
		id,
		len(records),
	)

	return len(records), nil
}

// logger returns the logger to use for log messages.
func (l *Loader) logger() logging.Logger {
	if l.Logger == nil {
		return logging.DefaultLogger
	}
	return l.Logger
}

// DecodeError indicates that a historical event could not be unmarshaled.
type DecodeError struct {
	PersistenceID string
	Offset        uint64
	Cause         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf(
		"unable to decode event at offset %d of stream '%s': %s",
		e.Offset,
		e.PersistenceID,
		e.Cause,
	)
}

// Unwrap returns the underlying cause of the error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}
