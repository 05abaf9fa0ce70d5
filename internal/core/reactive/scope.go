// Package reactive binds callbacks to changing values with nested, owned
// cleanup. A Scope is a node in a tree: disposing it disposes its children,
// newest first, and then runs its own cleanups in reverse registration order.
//
// Scopes are not safe for concurrent use; a scope tree belongs to the goroutine
// that drives the signals feeding it.
package reactive

import "slices"

type Scope struct {
	parent   *Scope
	children []*Scope
	cleanups []func()
	disposed bool
}

// NewScope returns a root scope.
func NewScope() *Scope { return &Scope{} }

// Child returns a new scope owned by s. A child of a disposed scope is born
// disposed.
func (s *Scope) Child() *Scope {
	c := &Scope{parent: s}
	if s.disposed {
		c.disposed = true
		return c
	}
	s.children = append(s.children, c)
	return c
}

// OnCleanup registers fn to run when s is disposed. On an already disposed
// scope fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed {
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
}

func (s *Scope) IsDisposed() bool { return s.disposed }

// Dispose tears the scope down exactly once and detaches it from its parent.
func (s *Scope) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	for i := len(s.children) - 1; i >= 0; i-- {
		c := s.children[i]
		c.parent = nil
		c.Dispose()
	}
	s.children = nil
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
	if s.parent != nil {
		s.parent.children = slices.DeleteFunc(s.parent.children, func(c *Scope) bool { return c == s })
		s.parent = nil
	}
}

// Len is the number of live child scopes.
func (s *Scope) Len() int { return len(s.children) }
