package protocol

import (
	"sync"

	"github.com/zeusync/scenesync/internal/core/observability/log"
)

// WorkerChannel gives each endpoint its own goroutine. Send only enqueues into
// the peer's unbounded mailbox; the peer's goroutine runs its handler.
type WorkerChannel struct {
	in   *inbox
	peer *WorkerChannel
	wake chan struct{}
	done chan struct{}
	once sync.Once
	log  log.Log
}

func NewWorkerPair(logger log.Log) (*WorkerChannel, *WorkerChannel) {
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With(log.Component("protocol.worker"))
	a, b := newWorker(logger), newWorker(logger)
	a.peer, b.peer = b, a
	go a.run()
	go b.run()
	return a, b
}

func newWorker(logger log.Log) *WorkerChannel {
	return &WorkerChannel{
		in:   newInbox(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  logger,
	}
}

func (c *WorkerChannel) run() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
			c.in.drain()
		}
	}
}

func (c *WorkerChannel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *WorkerChannel) Send(e Envelope) error {
	if c.in.isClosed() || !c.peer.in.push(e) {
		return ErrClosed
	}
	c.peer.signal()
	return nil
}

func (c *WorkerChannel) Handle(h Handler) {
	c.in.setHandler(h)
	c.signal()
}

// Close stops this endpoint's goroutine and drops undelivered envelopes. The
// peer's sends fail with ErrClosed from then on.
func (c *WorkerChannel) Close() error {
	c.once.Do(func() {
		c.in.close()
		close(c.done)
		c.log.Debug("worker channel closed")
	})
	return nil
}
