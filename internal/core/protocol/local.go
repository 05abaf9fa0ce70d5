package protocol

import (
	"sync/atomic"
)

// LocalChannel delivers on the sender's goroutine. An envelope sent to an
// endpoint whose handler is already running is delivered after that handler
// returns, so handlers may reply without unbounded recursion.
type LocalChannel struct {
	in     *inbox
	peer   *LocalChannel
	closed atomic.Bool
}

func NewLocalPair() (*LocalChannel, *LocalChannel) {
	a := &LocalChannel{in: newInbox()}
	b := &LocalChannel{in: newInbox()}
	a.peer, b.peer = b, a
	return a, b
}

func (c *LocalChannel) Send(e Envelope) error {
	if c.closed.Load() || !c.peer.in.push(e) {
		return ErrClosed
	}
	c.peer.in.drain()
	return nil
}

func (c *LocalChannel) Handle(h Handler) {
	c.in.setHandler(h)
	c.in.drain()
}

func (c *LocalChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.in.close()
	return nil
}
