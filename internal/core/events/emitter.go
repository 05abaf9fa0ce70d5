// Package events provides the synchronous, typed notification primitive that
// scene entities use to announce attribute changes and disposal.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Handler is invoked synchronously, in subscription order, for every emitted value.
type Handler[T any] func(T)

// Subscription is a registered handler. Cancel is idempotent.
type Subscription interface {
	ID() string
	IsActive() bool
	Cancel()
}

type subscription[T any] struct {
	id      string
	handler Handler[T]
	emitter *Emitter[T]
	active  bool
}

func (s *subscription[T]) ID() string { return s.id }

func (s *subscription[T]) IsActive() bool {
	s.emitter.mu.RLock()
	defer s.emitter.mu.RUnlock()
	return s.active
}

func (s *subscription[T]) Cancel() {
	s.emitter.remove(s)
}

// Emitter fans a value out to its subscribers. The zero value is ready to use.
//
// Handlers run in the emitting goroutine, outside the lock, so a handler may
// subscribe, cancel, or emit again. Handlers added during an Emit are not called
// for that value; handlers cancelled during an Emit are skipped if not yet reached.
type Emitter[T any] struct {
	mu   sync.RWMutex
	subs []*subscription[T]
}

func (e *Emitter[T]) Subscribe(handler Handler[T]) Subscription {
	s := &subscription[T]{id: uuid.NewString(), handler: handler, emitter: e, active: true}
	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()
	return s
}

// Once subscribes a handler that cancels itself after its first call.
func (e *Emitter[T]) Once(handler Handler[T]) Subscription {
	var sub Subscription
	sub = e.Subscribe(func(v T) {
		sub.Cancel()
		handler(v)
	})
	return sub
}

func (e *Emitter[T]) Emit(value T) {
	e.mu.RLock()
	subs := make([]*subscription[T], len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()

	for _, s := range subs {
		e.mu.RLock()
		active := s.active
		e.mu.RUnlock()
		if active {
			s.handler(value)
		}
	}
}

// Len reports the number of active subscriptions.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Clear cancels every subscription.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	for _, s := range e.subs {
		s.active = false
	}
	e.subs = nil
	e.mu.Unlock()
}

func (e *Emitter[T]) remove(target *subscription[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !target.active {
		return
	}
	target.active = false
	for i, s := range e.subs {
		if s == target {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}
