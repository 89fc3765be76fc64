package registry

import (
	"context"
	"sync"
)

// Registry tracks which entities are bound to which persistence IDs.
//
// It is safe for concurrent use. All mutations are serialized by a single
// mutex.
type Registry struct {
	m        sync.Mutex
	closed   bool
	byEntity map[Identity]*Binding
	byStream map[string]*Binding
}

// Register binds e to the persistence ID id.
//
// The new binding is in the Registering state; it must be passed to Activate()
// before it accepts writes, or to Discard() if registration fails. Its context
// is derived from parent.
//
// If e is already bound, an *AlreadyRegisteredError containing the existing
// persistence ID is returned and the existing binding is left unchanged. If
// id is bound to a different entity, a *ClaimedError is returned.
func (r *Registry) Register(
	parent context.Context,
	e Identity,
	id string,
) (*Binding, error) {
	r.m.Lock()
	defer r.m.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	if b, ok := r.byEntity[e]; ok {
		return nil, &AlreadyRegisteredError{
			Entity:        e,
			PersistenceID: b.PersistenceID,
		}
	}

	if b, ok := r.byStream[id]; ok {
		return nil, &ClaimedError{
			PersistenceID: id,
			Owner:         b.Entity,
		}
	}

	ctx, cancel := context.WithCancelCause(parent)

	b := &Binding{
		Entity:        e,
		PersistenceID: id,
		ctx:           ctx,
		cancel:        cancel,
		state:         Registering,
	}

	if r.byEntity == nil {
		r.byEntity = map[Identity]*Binding{}
		r.byStream = map[string]*Binding{}
	}

	r.byEntity[e] = b
	r.byStream[id] = b

	return b, nil
}

// Activate moves b from the Registering state to the Active state.
//
// It returns the cause of b's cancellation if b has already been released.
func (r *Registry) Activate(b *Binding) error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.byEntity[b.Entity] != b || b.Released() {
		return context.Cause(b.ctx)
	}

	b.state = Active

	return nil
}

// Discard releases b if it is still the current binding for its entity.
func (r *Registry) Discard(b *Binding) {
	r.m.Lock()
	defer r.m.Unlock()

	if r.byEntity[b.Entity] == b {
		r.remove(b)
	}

	b.release()
}

// Unregister releases the binding for e, if any.
//
// It returns the released binding, and false if e was not registered.
func (r *Registry) Unregister(e Identity) (*Binding, bool) {
	r.m.Lock()
	defer r.m.Unlock()

	b, ok := r.byEntity[e]
	if !ok {
		return nil, false
	}

	r.remove(b)
	b.release()

	return b, true
}

// Resolve returns the persistence ID that e is bound to.
//
// Entities are resolvable from the moment Register() succeeds, including
// while their events are being replayed.
func (r *Registry) Resolve(e Identity) (string, error) {
	r.m.Lock()
	defer r.m.Unlock()

	if b, ok := r.byEntity[e]; ok {
		return b.PersistenceID, nil
	}

	return "", &NotRegisteredError{Entity: e}
}

// Acquire returns the active binding for e.
//
// It returns a *NotRegisteredError if e is not registered, or if its events
// are still being replayed.
func (r *Registry) Acquire(e Identity) (*Binding, error) {
	r.m.Lock()
	defer r.m.Unlock()

	if b, ok := r.byEntity[e]; ok && b.state == Active {
		return b, nil
	}

	return nil, &NotRegisteredError{Entity: e}
}

// State returns the state of the binding for e, and false if e is not
// registered.
func (r *Registry) State(e Identity) (State, bool) {
	r.m.Lock()
	defer r.m.Unlock()

	if b, ok := r.byEntity[e]; ok {
		return b.state, true
	}

	return 0, false
}

// Len returns the number of bindings in the registry.
func (r *Registry) Len() int {
	r.m.Lock()
	defer r.m.Unlock()

	return len(r.byEntity)
}

// Close releases every binding. Any future calls to Register() fail with
// ErrClosed.
func (r *Registry) Close() {
	r.m.Lock()
	defer r.m.Unlock()

	r.closed = true

	for _, b := range r.byEntity {
		b.release()
	}

	r.byEntity = nil
	r.byStream = nil
}

// remove deletes b from the tables. r.m must be held.
func (r *Registry) remove(b *Binding) {
	delete(r.byEntity, b.Entity)
	delete(r.byStream, b.PersistenceID)
}
