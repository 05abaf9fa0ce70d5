package reactive

import (
	"slices"

	"github.com/zeusync/scenesync/internal/core/events"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// Signal is a readable value that announces its changes.
type Signal[V any] interface {
	Get() V
	// Watch calls fn with the new value after every change until stop is called.
	Watch(fn func(V)) (stop func())
}

// Subscribe binds fn to sig under parent. fn runs immediately with the current
// value and again after every change; each run gets a fresh child scope, and
// the previous run's scope is disposed before the next run starts. Disposing
// the returned scope (or any ancestor) disposes the latest run and stops
// watching. A nil parent makes the binding a root.
func Subscribe[V any](parent *Scope, sig Signal[V], fn func(s *Scope, v V)) *Scope {
	if parent == nil {
		parent = NewScope()
	}
	binding := parent.Child()
	var run *Scope
	apply := func(v V) {
		if run != nil {
			run.Dispose()
		}
		run = binding.Child()
		fn(run, v)
	}
	apply(sig.Get())
	if binding.IsDisposed() {
		return binding
	}
	binding.OnCleanup(sig.Watch(func(v V) {
		if !binding.IsDisposed() {
			apply(v)
		}
	}))
	return binding
}

type attrSignal[A comparable, V any] struct {
	src   scene.Observable[A]
	attrs []A
	get   func() V
}

// Attr adapts an entity attribute (or group of attributes) to a Signal. get
// reads the current value; it is called once per matching change event.
func Attr[A comparable, V any](src scene.Observable[A], get func() V, attrs ...A) Signal[V] {
	return attrSignal[A, V]{src: src, attrs: attrs, get: get}
}

func (s attrSignal[A, V]) Get() V { return s.get() }

func (s attrSignal[A, V]) Watch(fn func(V)) func() {
	sub := s.src.OnChange(func(attr A) {
		if slices.Contains(s.attrs, attr) {
			fn(s.get())
		}
	})
	return sub.Cancel
}

type selectSignal[V any, W comparable] struct {
	src Signal[V]
	sel func(V) W
}

// Select derives a signal that only fires when the selected value differs from
// the one it last reported.
func Select[V any, W comparable](src Signal[V], sel func(V) W) Signal[W] {
	return selectSignal[V, W]{src: src, sel: sel}
}

func (s selectSignal[V, W]) Get() W { return s.sel(s.src.Get()) }

func (s selectSignal[V, W]) Watch(fn func(W)) func() {
	last := s.Get()
	return s.src.Watch(func(v V) {
		if w := s.sel(v); w != last {
			last = w
			fn(w)
		}
	})
}

// Value is a settable Signal.
type Value[V comparable] struct {
	v       V
	changes events.Emitter[V]
}

func NewValue[V comparable](v V) *Value[V] { return &Value[V]{v: v} }

func (x *Value[V]) Get() V { return x.v }

// Set stores v and notifies watchers if it differs from the current value.
func (x *Value[V]) Set(v V) {
	if x.v == v {
		return
	}
	x.v = v
	x.changes.Emit(v)
}

func (x *Value[V]) Watch(fn func(V)) func() {
	return x.changes.Subscribe(fn).Cancel
}
