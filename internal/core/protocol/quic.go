package protocol

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/scenesync/internal/core/observability/log"
)

// ALPN is the application protocol negotiated on QUIC connections.
const ALPN = "scenesync"

var quicConfig = &quic.Config{
	KeepAlivePeriod: 10 * time.Second,
	MaxIdleTimeout:  30 * time.Second,
}

// quicStream ties a stream's lifetime to its connection: one channel, one
// connection.
type quicStream struct {
	*quic.Stream
	conn *quic.Conn
}

func (s quicStream) Close() error {
	s.CancelRead(0)
	err := s.Stream.Close()
	_ = s.conn.CloseWithError(0, "channel closed")
	return err
}

// QUICListener accepts stream channels over QUIC.
type QUICListener struct {
	ln   *quic.Listener
	log  log.Log
	opts []StreamOption
}

// ListenQUIC listens on addr. opts apply to every accepted channel.
func ListenQUIC(addr string, tlsConf *tls.Config, logger log.Log, opts ...StreamOption) (*QUICListener, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "listen quic on %s", addr)
	}
	logger = logger.With(log.Component("protocol.quic"))
	logger.Info("quic listener started", log.String("addr", ln.Addr().String()))
	return &QUICListener{ln: ln, log: logger, opts: opts}, nil
}

func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

// Accept waits for a connection and its first stream. A dialed stream becomes
// visible to the listener with the dialer's first frame.
func (l *QUICListener) Accept(ctx context.Context) (*StreamChannel, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "accept quic connection")
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return nil, errors.Wrap(err, "accept quic stream")
	}
	l.log.Debug("quic channel accepted", log.String("remote", conn.RemoteAddr().String()))
	return NewStreamChannel(quicStream{Stream: stream, conn: conn}, l.log, l.opts...), nil
}

func (l *QUICListener) Close() error { return l.ln.Close() }

// DialQUIC opens a connection with one bidirectional stream and wraps it.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config, logger log.Log, opts ...StreamOption) (*StreamChannel, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "dial quic %s", addr)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return nil, errors.Wrap(err, "open quic stream")
	}
	return NewStreamChannel(quicStream{Stream: stream, conn: conn}, logger.With(log.Component("protocol.quic")), opts...), nil
}

// ClientTLS skips verification and is meant for self-signed development
// servers.
func ClientTLS() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
	}
}

// SelfSignedTLS creates an in-memory server certificate for loopback use.
func SelfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"scenesync"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.Wrap(err, "create certificate")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
