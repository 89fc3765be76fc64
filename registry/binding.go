package registry

import (
	"context"
	"fmt"
)

// Identity is the runtime identity of a single entity instance.
type Identity string

// State is the state of a binding.
type State int

const (
	// Registering is the state of a binding whose events are being replayed.
	Registering State = iota

	// Active is the state of a binding that accepts writes.
	Active
)

func (s State) String() string {
	switch s {
	case Registering:
		return "registering"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Binding associates an entity with the persistence ID of its event stream.
//
// Its context is canceled with ErrCancelled when the binding is released.
type Binding struct {
	Entity        Identity
	PersistenceID string

	ctx    context.Context
	cancel context.CancelCauseFunc
	state  State // guarded by the registry's mutex
}

// Context returns a context that is canceled when the binding is released.
func (b *Binding) Context() context.Context {
	return b.ctx
}

// Released returns true if the binding has been released.
func (b *Binding) Released() bool {
	return b.ctx.Err() != nil
}

// release cancels the binding's context.
func (b *Binding) release() {
	b.cancel(ErrCancelled)
}
