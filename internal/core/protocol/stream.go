package protocol

import (
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/pkg/generic"
)

// DefaultMaxFrameSize bounds a single frame on stream channels.
const DefaultMaxFrameSize = 16 << 20

const frameHeaderSize = 4

var frameBuffers = generic.NewBufferPool(1 << 20)

// WriteFrame writes payload behind a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := frameBuffers.Get()
	defer frameBuffers.Put(buf)
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	buf.Write(header[:])
	buf.Write(payload)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFrame reads one length-prefixed frame. Frames longer than limit are
// rejected before their payload is read.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if int64(n) > int64(limit) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes, limit %d", n, limit)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(ErrInvalidFrame, "truncated frame")
	}
	return payload, nil
}

// StreamChannel carries JSON envelopes as length-prefixed frames over any
// byte stream: a QUIC stream, a TCP connection, or a pipe.
type StreamChannel struct {
	rw       io.ReadWriteCloser
	codec    JSONCodec
	in       *inbox
	maxFrame int
	log      log.Log

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

// StreamOption tunes a StreamChannel.
type StreamOption func(*StreamChannel)

func WithMaxFrameSize(n int) StreamOption {
	return func(c *StreamChannel) { c.maxFrame = n }
}

// NewStreamChannel starts reading rw immediately. The channel owns rw and
// closes it on Close or when the peer sends a malformed or oversized frame.
func NewStreamChannel(rw io.ReadWriteCloser, logger log.Log, opts ...StreamOption) *StreamChannel {
	if logger == nil {
		logger = log.NewNop()
	}
	c := &StreamChannel{
		rw:       rw,
		in:       newInbox(),
		maxFrame: DefaultMaxFrameSize,
		log:      logger.With(log.Component("protocol.stream")),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

func (c *StreamChannel) readLoop() {
	defer close(c.done)
	for {
		frame, err := ReadFrame(c.rw, c.maxFrame)
		if err != nil {
			if !c.closed.Load() && !errors.Is(err, io.EOF) {
				c.log.Error("stream read failed", log.Error(err))
			}
			_ = c.Close()
			return
		}
		e, err := c.codec.Decode(frame)
		if err != nil {
			c.log.Error("closing stream on malformed frame", log.Error(err))
			_ = c.Close()
			return
		}
		if c.in.push(e) {
			c.in.drain()
		}
	}
}

func (c *StreamChannel) Send(e Envelope) error {
	if c.closed.Load() {
		return ErrClosed
	}
	payload, err := c.codec.Encode(e)
	if err != nil {
		return err
	}
	if len(payload) > c.maxFrame {
		return errors.Wrapf(ErrFrameTooLarge, "%s: %d bytes", e.Subject, len(payload))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteFrame(c.rw, payload); err != nil {
		return errors.Wrapf(err, "write %s", e.Subject)
	}
	return nil
}

func (c *StreamChannel) Handle(h Handler) {
	c.in.setHandler(h)
	c.in.drain()
}

// Done is closed once the read side has stopped.
func (c *StreamChannel) Done() <-chan struct{} { return c.done }

func (c *StreamChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.in.close()
	return c.rw.Close()
}
