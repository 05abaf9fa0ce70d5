package protocol

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketChannel sends one JSON text frame per envelope.
type WebSocketChannel struct {
	conn  *websocket.Conn
	codec JSONCodec
	in    *inbox
	log   log.Log

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

// WebSocketOption configures a connection before its read loop starts.
type WebSocketOption func(*websocket.Conn)

// WithReadLimit closes the connection on any message larger than n bytes.
func WithReadLimit(n int) WebSocketOption {
	return func(c *websocket.Conn) { c.SetReadLimit(int64(n)) }
}

// NewWebSocketChannel takes ownership of conn and starts reading it.
func NewWebSocketChannel(conn *websocket.Conn, logger log.Log, opts ...WebSocketOption) *WebSocketChannel {
	if logger == nil {
		logger = log.NewNop()
	}
	for _, opt := range opts {
		opt(conn)
	}
	c := &WebSocketChannel{
		conn: conn,
		in:   newInbox(),
		log:  logger.With(log.Component("protocol.websocket"), log.String("remote", conn.RemoteAddr().String())),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// DialWebSocket connects to a ws:// or wss:// endpoint served by
// WebSocketHandler.
func DialWebSocket(ctx context.Context, url string, logger log.Log, opts ...WebSocketOption) (*WebSocketChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewWebSocketChannel(conn, logger, opts...), nil
}

// WebSocketHandler upgrades every request and hands the channel to accept.
func WebSocketHandler(logger log.Log, accept func(*WebSocketChannel), opts ...WebSocketOption) http.Handler {
	if logger == nil {
		logger = log.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", log.String("remote", r.RemoteAddr), log.Error(err))
			return
		}
		accept(NewWebSocketChannel(conn, logger, opts...))
	})
}

func (c *WebSocketChannel) readLoop() {
	defer close(c.done)
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Error("websocket read failed", log.Error(err))
			}
			_ = c.Close()
			return
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		e, err := c.codec.Decode(data)
		if err != nil {
			c.log.Warn("dropping malformed frame", log.Error(err))
			continue
		}
		if c.in.push(e) {
			c.in.drain()
		}
	}
}

func (c *WebSocketChannel) Send(e Envelope) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := c.codec.Encode(e)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(err, "write %s", e.Subject)
	}
	return nil
}

func (c *WebSocketChannel) Handle(h Handler) {
	c.in.setHandler(h)
	c.in.drain()
}

// Done is closed once the read side has stopped.
func (c *WebSocketChannel) Done() <-chan struct{} { return c.done }

// Close sends a close frame and releases the connection.
func (c *WebSocketChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.in.close()
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
