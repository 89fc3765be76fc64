// Package serializer orders writes to each event stream.
package serializer

import (
	"context"
	"sync"
)

// Serializer runs functions one at a time per key, in the order they were
// submitted.
//
// Functions with different keys run concurrently.
type Serializer struct {
	m     sync.Mutex
	tails map[string]*link
}

// link is a single call to Do() in a key's chain.
type link struct {
	// done is closed when the link is complete, after which the next link in
	// the chain may proceed.
	done chan struct{}
}

// Do calls fn once every earlier call to Do() with the same key has
// completed.
//
// If ctx is canceled while waiting, Do() returns the cause of the
// cancellation immediately and fn is never called. The next call with the
// same key still waits for the earlier calls to complete, so at most one
// function runs per key at any time.
//
// fn is not called with ctx. Once started it is allowed to run to completion
// regardless of ctx.
func (s *Serializer) Do(ctx context.Context, key string, fn func() error) error {
	l, prev := s.enqueue(key)

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			go func() {
				<-prev.done
				s.complete(key, l)
			}()
			return context.Cause(ctx)
		}
	}

	defer s.complete(key, l)

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	return fn()
}

// Len returns the number of keys that have calls in progress.
func (s *Serializer) Len() int {
	s.m.Lock()
	defer s.m.Unlock()

	return len(s.tails)
}

// enqueue installs a new link as the tail of the chain for the given key.
//
// prev is the previous tail, or nil if the chain was empty.
func (s *Serializer) enqueue(key string) (l, prev *link) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.tails == nil {
		s.tails = map[string]*link{}
	}

	l = &link{
		done: make(chan struct{}),
	}

	prev = s.tails[key]
	s.tails[key] = l

	return l, prev
}

// complete marks l as complete, removing the chain for the key if l is its
// tail.
func (s *Serializer) complete(key string, l *link) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.tails[key] == l {
		delete(s.tails, key)
	}

	close(l.done)
}
