package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/config"
	"github.com/zeusync/scenesync/internal/core/engine"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/protocol"
)

// WebSocketPath is where the scene stream is served over HTTP.
const WebSocketPath = "/scene"

// Server exposes an engine's scene stream to remote mirrors over WebSocket
// and QUIC. Each connection becomes one attached peer.
type Server struct {
	eng    *engine.Engine
	config config.Transport
	logger log.Log

	http *http.Server
	wsLn net.Listener
	quic *protocol.QUICListener

	clientCount int64  // atomic
	nextID      uint64 // atomic
	running     int32  // atomic bool
	closed      int32  // atomic bool

	workerGroup sync.WaitGroup
	stopChan    chan struct{}
}

// session is a connected remote mirror.
type session struct {
	id      string
	channel channel
	since   time.Time
}

// channel is what both network transports provide.
type channel interface {
	protocol.Channel
	Done() <-chan struct{}
}

func New(eng *engine.Engine, cfg config.Transport, logger log.Log) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	return &Server{
		eng:      eng,
		config:   cfg,
		logger:   logger.With(log.Component("server")),
		stopChan: make(chan struct{}),
	}
}

// Start opens every configured endpoint. An endpoint with an empty address
// stays closed.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	if addr := s.config.WebSocketAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			atomic.StoreInt32(&s.running, 0)
			return errors.Wrapf(ErrListenerFailed, "websocket on %s: %v", addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle(WebSocketPath, protocol.WebSocketHandler(s.logger, func(c *protocol.WebSocketChannel) {
			s.handleClient(c)
		}, protocol.WithReadLimit(s.config.MaxFrameSize)))
		s.wsLn = ln
		s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		s.workerGroup.Add(1)
		go func() {
			defer s.workerGroup.Done()
			if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("websocket endpoint failed", log.Error(err))
			}
		}()
		s.logger.Info("websocket endpoint listening", log.String("addr", ln.Addr().String()))
	}

	if addr := s.config.QUICAddr; addr != "" {
		tlsConf, err := protocol.SelfSignedTLS()
		if err != nil {
			_ = s.Stop(ctx)
			return err
		}
		ln, err := protocol.ListenQUIC(addr, tlsConf, s.logger, protocol.WithMaxFrameSize(s.config.MaxFrameSize))
		if err != nil {
			_ = s.Stop(ctx)
			return errors.Wrapf(ErrListenerFailed, "%v", err)
		}
		s.quic = ln
		s.workerGroup.Add(1)
		go s.acceptConnections()
	}
	return nil
}

func (s *Server) WebSocketAddr() net.Addr {
	if s.wsLn == nil {
		return nil
	}
	return s.wsLn.Addr()
}

func (s *Server) QUICAddr() net.Addr {
	if s.quic == nil {
		return nil
	}
	return s.quic.Addr()
}

// Clients is the number of connected mirrors.
func (s *Server) Clients() int {
	return int(atomic.LoadInt64(&s.clientCount))
}

// Stop closes the endpoints and disconnects every mirror.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.logger.Info("stopping server")
	close(s.stopChan)

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.quic != nil {
		_ = s.quic.Close()
	}

	done := make(chan struct{})
	go func() {
		s.workerGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("server stopped")
	return err
}

// Close stops the server if needed. A closed server cannot be started again.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(ctx)
	}
	return nil
}

func (s *Server) acceptConnections() {
	defer s.workerGroup.Done()
	s.logger.Debug("quic acceptor started")
	defer s.logger.Debug("quic acceptor stopped")

	for atomic.LoadInt32(&s.running) == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		ch, err := s.quic.Accept(ctx)
		cancel()
		if err != nil {
			if atomic.LoadInt32(&s.running) == 0 {
				return
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				s.logger.Error("failed to accept connection", log.Error(err))
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		s.workerGroup.Add(1)
		go func() {
			defer s.workerGroup.Done()
			s.handleClient(ch)
		}()
	}
}

// handleClient attaches ch to the engine and holds it until either side
// goes away.
func (s *Server) handleClient(ch channel) {
	sess := &session{
		id:      "peer-" + strconv.FormatUint(atomic.AddUint64(&s.nextID, 1), 10),
		channel: ch,
		since:   time.Now(),
	}
	clientLogger := s.logger.With(log.String("client_id", sess.id))

	detach, err := s.eng.Attach(sess.id, ch)
	if err != nil {
		clientLogger.Error("attach failed", log.Error(err))
		_ = ch.Close()
		return
	}
	atomic.AddInt64(&s.clientCount, 1)
	clientLogger.Info("client connected", log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))

	defer func() {
		detach()
		_ = ch.Close()
		atomic.AddInt64(&s.clientCount, -1)
		clientLogger.Info("client disconnected",
			log.Duration("connected_for", time.Since(sess.since)),
			log.Int64("total_clients", atomic.LoadInt64(&s.clientCount)))
	}()

	select {
	case <-ch.Done():
	case <-s.stopChan:
	}
}
