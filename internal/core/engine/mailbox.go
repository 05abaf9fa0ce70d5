package engine

import (
	"sync"

	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/pkg/sequence"
)

// mailbox hands envelopes from a channel's delivery goroutine to the loop that
// owns the context. The loop takes everything at a frame or tick boundary.
type mailbox struct {
	mu sync.Mutex
	q  *sequence.Queue[protocol.Envelope]
}

func newMailbox() *mailbox {
	return &mailbox{q: sequence.NewQueue[protocol.Envelope](128)}
}

func (m *mailbox) put(e protocol.Envelope) {
	m.mu.Lock()
	m.q.Enqueue(e)
	m.mu.Unlock()
}

func (m *mailbox) take() []protocol.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Drain()
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Len()
}
