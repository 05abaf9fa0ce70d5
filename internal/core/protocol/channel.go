package protocol

import (
	"runtime"
	"sync"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/pkg/sequence"
)

// Handler receives inbound envelopes. A channel never runs two handler calls
// at once.
type Handler func(Envelope)

// Channel is one endpoint of a bidirectional, per-direction FIFO link between
// two contexts. Envelopes that arrive before Handle is called are held and
// delivered once a handler is installed.
type Channel interface {
	Send(e Envelope) error
	Handle(h Handler)
	Close() error
}

// inbox buffers inbound envelopes and delivers them in arrival order from
// whichever goroutine drains it. Only one goroutine drains at a time; anything
// pushed meanwhile is delivered by that goroutine before it returns.
type inbox struct {
	mu       sync.Mutex
	handler  Handler
	queue    *sequence.Queue[Envelope]
	draining bool
	closed   bool
}

func newInbox() *inbox {
	return &inbox{queue: sequence.NewQueue[Envelope](64)}
}

func (b *inbox) setHandler(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

func (b *inbox) push(e Envelope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.queue.Enqueue(e)
	return true
}

func (b *inbox) drain() {
	b.mu.Lock()
	if b.draining || b.handler == nil {
		b.mu.Unlock()
		return
	}
	b.draining = true
	for !b.closed {
		e, ok := b.queue.Dequeue()
		if !ok {
			break
		}
		h := b.handler
		b.mu.Unlock()
		h(e)
		b.mu.Lock()
	}
	b.draining = false
	b.mu.Unlock()
}

func (b *inbox) close() {
	b.mu.Lock()
	b.closed = true
	b.queue.Drain()
	b.mu.Unlock()
}

func (b *inbox) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// PairMode selects how NewPair connects two in-process contexts.
type PairMode string

const (
	// PairAuto uses worker channels when more than one OS thread may run Go
	// code and local channels otherwise.
	PairAuto   PairMode = "auto"
	PairWorker PairMode = "worker"
	PairLocal  PairMode = "local"
)

func (m PairMode) Valid() bool {
	return m == PairAuto || m == PairWorker || m == PairLocal
}

// NewPair connects two in-process contexts. Callers see the same Channel
// behavior whichever implementation is picked.
func NewPair(mode PairMode, logger log.Log) (Channel, Channel) {
	if mode == PairAuto || mode == "" {
		mode = PairLocal
		if runtime.GOMAXPROCS(0) > 1 {
			mode = PairWorker
		}
	}
	if mode == PairLocal {
		return NewLocalPair()
	}
	return NewWorkerPair(logger)
}
