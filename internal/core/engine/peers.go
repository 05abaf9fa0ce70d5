package engine

import (
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// peers is the set of remote mirrors attached after start. It is one more
// receiver of the authority's stream. A peer whose send fails is dropped; it
// never fails the authority.
type peers struct {
	log   log.Log
	mu    sync.Mutex
	buses map[string]*protocol.Bus
}

func newPeers(logger log.Log) *peers {
	return &peers{log: logger, buses: make(map[string]*protocol.Bus)}
}

func (p *peers) Send(subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, b := range p.buses {
		if err := b.Send(subject, data); err != nil {
			p.log.Warn("dropping peer", log.String("peer", name), log.Error(err))
			delete(p.buses, name)
			_ = b.Close()
		}
	}
	return nil
}

func (p *peers) add(name string, b *protocol.Bus) {
	p.mu.Lock()
	if old, ok := p.buses[name]; ok {
		_ = old.Close()
	}
	p.buses[name] = b
	p.mu.Unlock()
}

func (p *peers) remove(name string) {
	p.mu.Lock()
	b, ok := p.buses[name]
	delete(p.buses, name)
	p.mu.Unlock()
	if ok {
		_ = b.Close()
	}
}

func (p *peers) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buses)
}

func (p *peers) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	for name, b := range p.buses {
		err = multierr.Append(err, b.Close())
		delete(p.buses, name)
	}
	return err
}

// Attach streams the scene to a remote mirror on ch: a snapshot of the
// current document, then every later change. The remote may send input and
// control subjects, which are forwarded as if sent locally; scene subjects
// from it are dropped. The returned func detaches it.
func (e *Engine) Attach(name string, ch protocol.Channel) (func(), error) {
	b := protocol.NewBus(ch, e.log)
	logger := e.log.With(log.String("peer", name))
	limiter := newWindowLimiter(e.opts.PeerInputRate, time.Second)
	b.HandleDefault(func(env protocol.Envelope) {
		if ok, first := limiter.allow(time.Now()); !ok {
			if first {
				logger.Warn("peer over input rate, dropping", log.Int("limit", e.opts.PeerInputRate))
			}
			return
		}
		var err error
		switch {
		case isOneOf(env.Subject, protocol.InputSubjects()):
			err = e.Input(env.Subject, env.Data)
		case isOneOf(env.Subject, protocol.ControlSubjects()):
			err = e.Control(env.Subject, env.Data)
		default:
			logger.Warn("dropping envelope from mirror", log.String("subject", env.Subject))
			return
		}
		if err != nil {
			logger.Warn("forward from peer failed", log.String("subject", env.Subject), log.Error(err))
		}
	})
	b.Listen()
	if err := b.Announce(); err != nil {
		_ = b.Close()
		return nil, err
	}

	err := e.authority.join(b, func() { e.remote.add(name, b) })
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	logger.Info("peer attached")
	return func() {
		e.remote.remove(name)
		logger.Info("peer detached")
	}, nil
}

// Peers is the number of attached remote mirrors.
func (e *Engine) Peers() int { return e.remote.len() }

func isOneOf(s string, set []string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

var _ scene.Sender = (*peers)(nil)
