package scene

import (
	"github.com/zeusync/scenesync/internal/core/events"
)

// Entity is the constraint shared by the synced kinds. Every implementation is a
// pointer type, so identity is pointer identity.
type Entity interface {
	comparable
	Kind() Kind
	Document() *Document
	IsDisposed() bool
	Dispose()
	OnDispose(fn func()) events.Subscription
}

// Observable is implemented by entities that announce attribute-scoped changes.
// A is the kind's attribute enum.
type Observable[A comparable] interface {
	OnChange(fn func(attr A)) events.Subscription
}

// entity carries the parts every kind shares: its owning document, change and
// dispose notification, and the disposed flag.
type entity[A comparable] struct {
	doc      *Document
	changes  events.Emitter[A]
	disposal events.Emitter[struct{}]
	disposed bool
}

func (e *entity[A]) Document() *Document { return e.doc }

func (e *entity[A]) IsDisposed() bool { return e.disposed }

// OnChange subscribes to attribute changes. The handler receives which attribute
// changed; the new value is read from the entity.
func (e *entity[A]) OnChange(fn func(attr A)) events.Subscription {
	return e.changes.Subscribe(fn)
}

// OnDispose subscribes to the entity's single dispose notification.
func (e *entity[A]) OnDispose(fn func()) events.Subscription {
	return e.disposal.Subscribe(func(struct{}) { fn() })
}

func (e *entity[A]) changed(attr A) {
	if e.disposed {
		return
	}
	e.changes.Emit(attr)
}

// beginDispose flips the disposed flag. It reports false when the entity was
// already disposed, which makes every Dispose idempotent.
func (e *entity[A]) beginDispose() bool {
	if e.disposed {
		return false
	}
	e.disposed = true
	return true
}

// endDispose notifies dispose listeners and drops every subscription.
func (e *entity[A]) endDispose() {
	e.disposal.Emit(struct{}{})
	e.disposal.Clear()
	e.changes.Clear()
}

func (e *entity[A]) mustShare(doc *Document) {
	if doc != nil && doc != e.doc {
		panic("scene: entities belong to different documents")
	}
}
