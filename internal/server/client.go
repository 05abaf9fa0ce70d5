package server

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// Client is a remote mirror of a served scene. It applies the stream as it
// arrives and may send input and control subjects back.
type Client struct {
	bus    *protocol.Bus
	logger log.Log

	mu      sync.Mutex
	mirror  *scene.Mirror
	applied int
	err     error
}

// NewClient mirrors the scene streamed over ch.
func NewClient(ch protocol.Channel, logger log.Log) (*Client, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	c := &Client{
		bus:    protocol.NewBus(ch, logger),
		logger: logger.With(log.Component("server.client")),
		mirror: scene.NewMirror(scene.NewDocument()),
	}
	c.bus.HandleDefault(c.apply)
	c.bus.Listen()
	if err := c.bus.Announce(); err != nil {
		_ = c.bus.Close()
		return nil, err
	}
	return c, nil
}

// DialWebSocket connects to a server's WebSocket endpoint, e.g.
// ws://host:port/scene.
func DialWebSocket(ctx context.Context, url string, logger log.Log) (*Client, error) {
	ch, err := protocol.DialWebSocket(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	return NewClient(ch, logger)
}

// DialQUIC connects to a server's QUIC endpoint. The server's certificate is
// not verified.
func DialQUIC(ctx context.Context, addr string, logger log.Log) (*Client, error) {
	ch, err := protocol.DialQUIC(ctx, addr, protocol.ClientTLS(), logger)
	if err != nil {
		return nil, err
	}
	return NewClient(ch, logger)
}

func (c *Client) apply(e protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil || !c.mirror.Handles(e.Subject) {
		return
	}
	if err := c.mirror.Apply(e.Subject, e.Data); err != nil {
		c.err = err
		c.logger.Error("scene stream broken", log.Error(err))
		return
	}
	c.applied++
}

// View runs fn against the mirror while no message is being applied. It
// returns the error that broke the stream, if any; the mirror stops changing
// after one.
func (c *Client) View(fn func(m *scene.Mirror)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.mirror)
	return c.err
}

// Applied is the number of scene messages applied so far.
func (c *Client) Applied() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// Send forwards an input or control subject to the server's engine.
func (c *Client) Send(subject string, data any) error {
	if _, _, ok := scene.ParseSubject(subject); ok {
		return errors.Wrapf(protocol.ErrUnknownSubject, "mirrors do not send %s", subject)
	}
	return c.bus.Send(subject, data)
}

func (c *Client) Close() error {
	return c.bus.Close()
}
