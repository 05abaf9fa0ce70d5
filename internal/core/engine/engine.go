// Package engine runs the three execution contexts of a scene session. The
// authority owns the document and diffs it into messages; the render and
// physics contexts each replay those messages into a mirror of their own and
// run on their own schedule. Besides messages the contexts share only the
// atomic player state in SharedState.
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/physics"
	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/pkg/concurrent"
)

// Options configures an Engine.
type Options struct {
	Channel   protocol.PairMode `yaml:"channel"`
	SyncRate  int               `yaml:"sync_rate"`
	FrameRate int               `yaml:"frame_rate"`
	Physics   PhysicsOptions    `yaml:"physics"`

	// PeerInputRate caps the input and control messages one remote peer may
	// send per second. Zero means no cap.
	PeerInputRate int `yaml:"peer_input_rate"`
}

func DefaultOptions() Options {
	return Options{
		Channel:   protocol.PairAuto,
		SyncRate:  30,
		FrameRate: 60,
		Physics:   DefaultPhysicsOptions(),

		PeerInputRate: 240,
	}
}

// Engine wires an authority to a render and a physics context over in-process
// channels.
type Engine struct {
	opts      Options
	log       log.Log
	shared    *SharedState
	world     *physics.MemoryWorld
	authority *Authority
	render    *RenderContext
	physics   *PhysicsContext
	toRender  *protocol.Bus
	toPhysics *protocol.Bus
	remote    *peers
}

// New builds the contexts around doc. Nothing runs until Run; scene changes
// and controls sent before the peers announce themselves are queued.
func New(doc *scene.Document, opts Options, logger log.Log) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.SyncRate <= 0 {
		opts.SyncRate = DefaultOptions().SyncRate
	}
	e := &Engine{
		opts:   opts,
		log:    logger.With(log.Component("engine")),
		shared: NewSharedState(),
		world:  physics.NewMemoryWorld(),
	}
	e.remote = newPeers(e.log)

	authRender, renderSide := protocol.NewPair(opts.Channel, logger)
	authPhysics, physicsSide := protocol.NewPair(opts.Channel, logger)
	e.toRender = protocol.NewBus(authRender, logger)
	e.toPhysics = protocol.NewBus(authPhysics, logger)
	e.toRender.Listen()
	e.toPhysics.Listen()

	e.render = NewRenderContext(renderSide, e.shared, opts.FrameRate, logger)
	e.physics = NewPhysicsContext(physicsSide, e.world, e.shared, opts.Physics, logger)
	e.authority = NewAuthority(doc, broadcast{e.toRender, e.toPhysics, e.remote}, logger)
	return e
}

func (e *Engine) Authority() *Authority { return e.authority }
func (e *Engine) Render() *RenderContext { return e.render }
func (e *Engine) Physics() *PhysicsContext { return e.physics }
func (e *Engine) Shared() *SharedState { return e.shared }
func (e *Engine) World() *physics.MemoryWorld { return e.world }

// Input forwards a device event to the render context.
func (e *Engine) Input(subject string, data any) error {
	if isOneOf(subject, protocol.InputSubjects()) {
		return e.toRender.Send(subject, data)
	}
	return errors.Wrapf(protocol.ErrUnknownSubject, "input %s", subject)
}

// Control forwards a start, stop, respawn or set_controls message to physics.
func (e *Engine) Control(subject string, data any) error {
	if isOneOf(subject, protocol.ControlSubjects()) {
		return e.toPhysics.Send(subject, data)
	}
	return errors.Wrapf(protocol.ErrUnknownSubject, "control %s", subject)
}

// Run drives every context until ctx ends or one of them fails. The first
// failure stops the rest and is returned.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting",
		log.String("channel", string(e.opts.Channel)),
		log.Int("sync_rate", e.opts.SyncRate),
		log.Int("frame_rate", e.opts.FrameRate),
		log.Int("tick_rate", e.opts.Physics.TickRate))
	err := concurrent.Run(ctx, e.render.Run, e.physics.Run, e.sync)
	if err != nil {
		e.log.Error("engine stopped", log.Error(err))
		return err
	}
	e.log.Info("engine stopped")
	return nil
}

func (e *Engine) sync(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(e.opts.SyncRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return e.authority.Tick()
		case <-ticker.C:
			if err := e.authority.Tick(); err != nil {
				return err
			}
		}
	}
}

// Close tears down every context and channel.
func (e *Engine) Close() error {
	e.authority.Close()
	return multierr.Combine(
		e.render.Close(),
		e.physics.Close(),
		e.toRender.Close(),
		e.toPhysics.Close(),
		e.remote.close(),
	)
}

// broadcast sends each message to every peer in turn, so each channel keeps
// the authority's emission order.
type broadcast []scene.Sender

func (b broadcast) Send(subject string, data any) error {
	var err error
	for _, s := range b {
		err = multierr.Append(err, s.Send(subject, data))
	}
	return err
}
