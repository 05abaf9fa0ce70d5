package generic

import (
	"bytes"
	"sync"
)

// Pool is a typed sync.Pool. Values are passed through reset, when set,
// before they go back; reset returning false drops the value instead.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) bool
}

func NewPool[T any](generate func() T, reset func(T) bool) *Pool[T] {
	return &Pool[T]{
		pool:  sync.Pool{New: func() any { return generate() }},
		reset: reset,
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.reset != nil && !p.reset(value) {
		return
	}
	p.pool.Put(value)
}

// NewBufferPool pools byte buffers. A buffer that grew past maxRetain bytes is
// left to the collector so one huge frame does not pin its memory.
func NewBufferPool(maxRetain int) *Pool[*bytes.Buffer] {
	return NewPool(
		func() *bytes.Buffer { return new(bytes.Buffer) },
		func(b *bytes.Buffer) bool {
			if b.Cap() > maxRetain {
				return false
			}
			b.Reset()
			return true
		},
	)
}
