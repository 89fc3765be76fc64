// Package journal persists the events of event-sourced entities and restores
// their state when they are admitted to the runtime.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/journal/internal/x/loggingx"
	"github.com/dogmatiq/journal/registry"
	"github.com/dogmatiq/journal/replay"
	"github.com/dogmatiq/journal/serializer"
	"github.com/dogmatiq/journal/store"
)

// Journal coordinates the persistence of events produced by event-sourced
// entities.
//
// Each entity is bound to the event stream identified by its persistence ID.
// Historical events are replayed when the entity is registered, and new
// events are appended to the stream in the order they are emitted.
type Journal struct {
	opts       *journalOptions
	registry   registry.Registry
	serializer serializer.Serializer

	m      sync.RWMutex
	state  state
	handle *store.Handle
	loader *replay.Loader
}

// state is the lifecycle state of a journal.
type state int

const (
	notStarted state = iota
	started
	stopped
)

// New returns a new journal.
//
// It panics if neither WithEventTypes() nor WithMarshaler() is given.
func New(options ...Option) *Journal {
	return &Journal{
		opts: resolveOptions(options),
	}
}

// Start opens the store.
//
// The journal can not be used until Start() returns successfully.
func (j *Journal) Start(ctx context.Context) error {
	j.m.Lock()
	defer j.m.Unlock()

	switch j.state {
	case started:
		return ErrAlreadyStarted
	case stopped:
		return ErrStopped
	}

	h, err := store.Open(
		ctx,
		j.opts.StoreFactory,
		store.WithConcurrencyLimit(j.opts.StoreConcurrencyLimit),
		store.WithTracerProvider(j.opts.TracerProvider),
		store.WithLogger(&loggingx.Component{Target: j.opts.Logger, Name: "store"}),
	)
	if err != nil {
		return err
	}

	j.handle = h
	j.loader = &replay.Loader{
		Reader:    h,
		Marshaler: j.opts.Marshaler,
		Logger:    &loggingx.Component{Target: j.opts.Logger, Name: "replay"},
	}
	j.state = started

	logging.Debug(j.opts.Logger, "journal started")

	return nil
}

// Stop releases every entity and closes the store.
//
// Calls to Register() and Emit() that are waiting on an entity's stream
// return ErrCancelled. Appends that are already in progress are allowed to
// complete before the store is closed.
func (j *Journal) Stop() error {
	j.m.Lock()
	defer j.m.Unlock()

	switch j.state {
	case notStarted:
		return ErrNotStarted
	case stopped:
		return ErrStopped
	}

	j.state = stopped
	j.registry.Close()

	err := j.handle.Close()

	logging.Debug(j.opts.Logger, "journal stopped")

	return err
}

// Register binds e to the event stream identified by id and restores its
// state by applying the stream's historical events.
//
// It returns once every historical event has been applied, after which e
// accepts new events via Emit(). Replay waits for any append to the stream
// that is already in progress. If e resigns or the journal is stopped while
// its events are being replayed, ErrCancelled is returned and e is left
// unregistered.
func (j *Journal) Register(
	ctx context.Context,
	e EventSourced,
	id string,
) error {
	_, loader, err := j.components()
	if err != nil {
		return err
	}

	// An existing binding takes precedence over validation, so that a repeated
	// registration always reports the persistence ID already in use.
	if existing, err := j.registry.Resolve(e.Identity()); err == nil {
		return &AlreadyRegisteredError{
			Entity:        e.Identity(),
			PersistenceID: existing,
		}
	}

	if err := ValidatePersistenceID(id); err != nil {
		return &ConfigurationError{
			Entity:        e.Identity(),
			PersistenceID: id,
			Reason:        err.Error(),
		}
	}

	b, err := j.registry.Register(context.Background(), e.Identity(), id)
	if err != nil {
		if errors.Is(err, registry.ErrClosed) {
			return ErrStopped
		}
		return err
	}

	ctx, cancel := withBinding(ctx, b)
	defer cancel()

	// The restore joins the stream's write chain, so that any append still in
	// progress for a previous owner of id is stored before it is read.
	var n int
	err = j.serializer.Do(
		ctx,
		id,
		func() error {
			var err error
			n, err = loader.Restore(ctx, id, e)
			return err
		},
	)
	if err != nil {
		j.registry.Discard(b)

		// A read that fails because the binding was released is reported as
		// a cancellation, not as a store failure.
		if b.Released() {
			return context.Cause(b.Context())
		}

		return err
	}

	if err := j.registry.Activate(b); err != nil {
		return err
	}

	logging.Debug(
		j.opts.Logger,
		"entity '%s' registered with persistence ID '%s' (%d historical event(s))",
		e.Identity(),
		id,
		n,
	)

	return nil
}

// Emit appends ev to the event stream of e, then applies it to e.
//
// Events emitted by the same entity are appended in the order that the calls
// to Emit() are made. Emit() blocks until ev has been appended, or until the
// attempt has failed.
//
// It returns a *NotRegisteredError if e has not completed registration, and
// ErrCancelled if e resigns before ev is appended. An append that has already
// started is allowed to complete, and ev is not retried if it fails.
func (j *Journal) Emit(
	ctx context.Context,
	e EventSourced,
	ev any,
) error {
	h, _, err := j.components()
	if err != nil {
		return err
	}

	b, err := j.registry.Acquire(e.Identity())
	if err != nil {
		return err
	}

	p, err := j.opts.Marshaler.Marshal(ev)
	if err != nil {
		return fmt.Errorf("unable to marshal %T event: %w", ev, err)
	}

	waitCtx, cancel := withBinding(ctx, b)
	defer cancel()

	return j.serializer.Do(
		waitCtx,
		b.PersistenceID,
		func() error {
			if err := h.Append(ctx, b.PersistenceID, p); err != nil {
				return err
			}

			e.ApplyEvent(ev)

			return nil
		},
	)
}

// Resolve returns the persistence ID that the entity with the identity e is
// bound to.
func (j *Journal) Resolve(e Identity) (string, error) {
	if _, _, err := j.components(); err != nil {
		return "", err
	}

	return j.registry.Resolve(e)
}

// components returns the store handle and replay loader, or an error if the
// journal is not running.
func (j *Journal) components() (*store.Handle, *replay.Loader, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	switch j.state {
	case notStarted:
		return nil, nil, ErrNotStarted
	case stopped:
		return nil, nil, ErrStopped
	}

	return j.handle, j.loader, nil
}

// withBinding returns a context that is canceled when either ctx or the
// context of b is canceled.
//
// When b is released the context's cause is ErrCancelled.
func withBinding(
	ctx context.Context,
	b *registry.Binding,
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)

	stop := context.AfterFunc(b.Context(), func() {
		cancel(context.Cause(b.Context()))
	})

	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
