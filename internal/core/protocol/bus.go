package protocol

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/pkg/sequence"
)

// Bus is a context's endpoint of one channel. Until the peer announces it is
// ready every send is queued, without bound, in send order; on readiness the
// queue is flushed in that order and later sends pass straight through.
//
// Bus implements scene.Sender.
type Bus struct {
	ch  Channel
	log log.Log

	mu       sync.Mutex
	ready    bool
	flushing bool
	pending  *sequence.Queue[Envelope]
	handlers map[string]Handler
	fallback Handler
}

// NewBus wraps ch. Inbound envelopes stay held by the channel until Listen.
func NewBus(ch Channel, logger log.Log) *Bus {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Bus{
		ch:       ch,
		log:      logger.With(log.Component("protocol.bus")),
		pending:  sequence.NewQueue[Envelope](64),
		handlers: make(map[string]Handler),
	}
}

// Listen starts dispatching inbound envelopes. Register handlers first.
func (b *Bus) Listen() {
	b.ch.Handle(b.dispatch)
}

// Send queues or sends one envelope. Subjects outside the enumerated sets are
// rejected.
func (b *Bus) Send(subject string, data any) error {
	if !Known(subject) {
		return errors.Wrap(ErrUnknownSubject, subject)
	}
	e := Envelope{Subject: subject, Data: data}
	b.mu.Lock()
	if !b.ready {
		b.pending.Enqueue(e)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	return errors.WithMessagef(b.ch.Send(e), "send %s", subject)
}

// Announce tells the peer this side is ready. It bypasses the queue.
func (b *Bus) Announce() error {
	return errors.WithMessage(b.ch.Send(Envelope{Subject: SubjectReady}), "announce ready")
}

// MarkReady flushes the queue and switches to passthrough. It is called on
// the peer's ready envelope and may be called directly when the peer is known
// to be up. Sends racing with the flush are queued behind it, so send order is
// kept.
func (b *Bus) MarkReady() error {
	b.mu.Lock()
	if b.ready || b.flushing {
		b.mu.Unlock()
		return nil
	}
	b.flushing = true
	flushed := 0
	for {
		batch := b.pending.Drain()
		if len(batch) == 0 {
			break
		}
		b.mu.Unlock()
		for _, e := range batch {
			if err := b.ch.Send(e); err != nil {
				b.mu.Lock()
				b.flushing = false
				b.mu.Unlock()
				return errors.WithMessagef(err, "flush %s", e.Subject)
			}
			flushed++
		}
		b.mu.Lock()
	}
	b.ready, b.flushing = true, false
	b.mu.Unlock()
	b.log.Debug("peer ready", log.Int("flushed", flushed))
	return nil
}

func (b *Bus) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Pending is the number of queued envelopes.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

// Handle routes inbound envelopes with subject to h. A handler for
// SubjectReady runs after the queue has been flushed.
func (b *Bus) Handle(subject string, h Handler) {
	b.mu.Lock()
	b.handlers[subject] = h
	b.mu.Unlock()
}

// HandleDefault receives every inbound envelope without a dedicated handler.
func (b *Bus) HandleDefault(h Handler) {
	b.mu.Lock()
	b.fallback = h
	b.mu.Unlock()
}

func (b *Bus) dispatch(e Envelope) {
	if e.Subject == SubjectReady {
		if err := b.MarkReady(); err != nil {
			b.log.Error("flush after ready failed", log.Error(err))
		}
	}
	b.mu.Lock()
	h, ok := b.handlers[e.Subject]
	if !ok && e.Subject != SubjectReady {
		h = b.fallback
	}
	b.mu.Unlock()
	if h == nil {
		if e.Subject != SubjectReady {
			b.log.Debug("unhandled envelope", log.String("subject", e.Subject))
		}
		return
	}
	h(e)
}

// Close closes the underlying channel. Queued envelopes are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	dropped := b.pending.Len()
	b.pending.Drain()
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Warn("bus closed before peer was ready", log.Int("dropped", dropped))
	}
	return b.ch.Close()
}
