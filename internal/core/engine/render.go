package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/internal/core/scene"
)

const (
	dragSensitivity = 2.0
	minCameraDist   = 1
	maxCameraDist   = 20
	cameraHeight    = 1.5
)

// RenderStats is what the last frame saw.
type RenderStats struct {
	Frames    uint64
	Nodes     int
	DrawCalls int
}

// RenderContext keeps a mirror of the scene, turns device input into the
// shared input axes, and frames the camera on the player pose physics
// publishes. Drawing itself happens outside this package.
type RenderContext struct {
	bus      *protocol.Bus
	mirror   *scene.Mirror
	shared   *SharedState
	log      log.Log
	mail     *mailbox
	interval time.Duration

	keys     map[string]bool
	dragging bool
	pointer  [2]float32
	touches  map[int][2]float32
	yaw      float32
	distance float32
	camera   [3]float32

	frames atomic.Uint64
	nodes  atomic.Int64
	draws  atomic.Int64
}

// NewRenderContext listens on ch immediately; envelopes wait in the mailbox
// until the next Frame.
func NewRenderContext(ch protocol.Channel, shared *SharedState, frameRate int, logger log.Log) *RenderContext {
	if logger == nil {
		logger = log.NewNop()
	}
	if frameRate <= 0 {
		frameRate = 60
	}
	r := &RenderContext{
		mirror:   scene.NewMirror(scene.NewDocument()),
		shared:   shared,
		log:      logger.With(log.Component("engine.render")),
		mail:     newMailbox(),
		interval: time.Second / time.Duration(frameRate),
		keys:     make(map[string]bool),
		touches:  make(map[int][2]float32),
		distance: 5,
	}
	r.bus = protocol.NewBus(ch, logger)
	r.bus.HandleDefault(r.mail.put)
	r.bus.Listen()
	return r
}

func (r *RenderContext) Mirror() *scene.Mirror { return r.mirror }

// Camera is the eye position chosen on the last frame.
func (r *RenderContext) Camera() [3]float32 { return r.camera }

func (r *RenderContext) Stats() RenderStats {
	return RenderStats{
		Frames:    r.frames.Load(),
		Nodes:     int(r.nodes.Load()),
		DrawCalls: int(r.draws.Load()),
	}
}

// Run announces readiness and renders frames until ctx ends.
func (r *RenderContext) Run(ctx context.Context) error {
	if err := r.bus.Announce(); err != nil {
		return err
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Frame(); err != nil {
				r.log.Error("frame failed", log.Error(err))
				return err
			}
		}
	}
}

// Frame applies everything received since the previous frame, then places
// the camera. A broken scene stream aborts the frame.
func (r *RenderContext) Frame() error {
	for _, e := range r.mail.take() {
		if r.mirror.Handles(e.Subject) {
			if err := r.mirror.Apply(e.Subject, e.Data); err != nil {
				return err
			}
			continue
		}
		if err := r.input(e); err != nil {
			r.log.Warn("dropping input", log.String("subject", e.Subject), log.Error(err))
		}
	}

	pos := r.shared.Position()
	sin, cos := math32.Sincos(r.yaw)
	r.camera = [3]float32{pos[0] + sin*r.distance, pos[1] + cameraHeight, pos[2] + cos*r.distance}

	draws := 0
	nodes := r.mirror.Document().Nodes()
	for _, n := range nodes {
		if m := n.Mesh(); m != nil {
			draws += len(m.Primitives())
		}
	}
	r.nodes.Store(int64(len(nodes)))
	r.draws.Store(int64(draws))
	r.frames.Add(1)
	return nil
}

func (r *RenderContext) Close() error {
	return r.bus.Close()
}

func (r *RenderContext) input(e protocol.Envelope) error {
	switch e.Subject {
	case protocol.SubjectKeyDown, protocol.SubjectKeyUp:
		ev, err := protocol.Decode[protocol.KeyEvent](e)
		if err != nil {
			return err
		}
		if ev.Repeat {
			return nil
		}
		r.keys[ev.Code] = e.Subject == protocol.SubjectKeyDown
		r.publishKeys()
	case protocol.SubjectPointerDown:
		ev, err := protocol.Decode[protocol.PointerEvent](e)
		if err != nil {
			return err
		}
		r.dragging = ev.Button == 0
		r.pointer = [2]float32{ev.X, ev.Y}
	case protocol.SubjectPointerUp:
		r.dragging = false
	case protocol.SubjectPointerMove:
		ev, err := protocol.Decode[protocol.PointerEvent](e)
		if err != nil {
			return err
		}
		if r.dragging {
			r.turn(ev.X - r.pointer[0])
		}
		r.pointer = [2]float32{ev.X, ev.Y}
	case protocol.SubjectWheel:
		ev, err := protocol.Decode[protocol.WheelEvent](e)
		if err != nil {
			return err
		}
		r.distance = min(max(r.distance+ev.DeltaY*0.01, minCameraDist), maxCameraDist)
	case protocol.SubjectTouchStart:
		ev, err := protocol.Decode[protocol.TouchEvent](e)
		if err != nil {
			return err
		}
		r.touches[ev.ID] = [2]float32{ev.X, ev.Y}
	case protocol.SubjectTouchMove:
		ev, err := protocol.Decode[protocol.TouchEvent](e)
		if err != nil {
			return err
		}
		if last, ok := r.touches[ev.ID]; ok {
			r.turn(ev.X - last[0])
		}
		r.touches[ev.ID] = [2]float32{ev.X, ev.Y}
	case protocol.SubjectTouchEnd:
		ev, err := protocol.Decode[protocol.TouchEvent](e)
		if err != nil {
			return err
		}
		delete(r.touches, ev.ID)
	default:
		return errors.Wrap(protocol.ErrUnknownSubject, e.Subject)
	}
	return nil
}

func (r *RenderContext) turn(dx float32) {
	r.yaw -= dx * dragSensitivity
	r.shared.SetInput(AxisYaw, r.yaw)
}

func (r *RenderContext) publishKeys() {
	flag := func(codes ...string) float32 {
		for _, k := range codes {
			if r.keys[k] {
				return 1
			}
		}
		return 0
	}
	axis := func(pos []string, neg ...string) float32 {
		return flag(pos...) - flag(neg...)
	}
	r.shared.SetInput(AxisForward, axis([]string{"KeyW", "ArrowUp"}, "KeyS", "ArrowDown"))
	r.shared.SetInput(AxisRight, axis([]string{"KeyD", "ArrowRight"}, "KeyA", "ArrowLeft"))
	r.shared.SetInput(AxisJump, flag("Space"))
	r.shared.SetInput(AxisSprint, flag("ShiftLeft", "ShiftRight"))
}
