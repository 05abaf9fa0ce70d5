package engine

import (
	"context"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/physics"
	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// PhysicsOptions tunes the simulation loop and the player capsule.
type PhysicsOptions struct {
	TickRate     int     `yaml:"tick_rate"`
	Gravity      float32 `yaml:"gravity"`
	MoveSpeed    float32 `yaml:"move_speed"`
	SprintFactor float32 `yaml:"sprint_factor"`
	JumpSpeed    float32 `yaml:"jump_speed"`
	PlayerRadius float32 `yaml:"player_radius"`
	PlayerHeight float32 `yaml:"player_height"`
}

func DefaultPhysicsOptions() PhysicsOptions {
	return PhysicsOptions{
		TickRate:     60,
		Gravity:      9.81,
		MoveSpeed:    4,
		SprintFactor: 2,
		JumpSpeed:    5,
		PlayerRadius: 0.3,
		PlayerHeight: 1.8,
	}
}

// groundSlack is how far below the feet a surface still counts as ground.
const groundSlack = 0.05

// PhysicsContext mirrors the scene, keeps the physics world in step with it,
// and moves the player capsule at a fixed rate. Messages never drive the
// loop: they wait in the mailbox and are applied at the next tick.
type PhysicsContext struct {
	bus     *protocol.Bus
	mirror  *scene.Mirror
	world   physics.World
	builder *physics.Builder
	shared  *SharedState
	log     log.Log
	mail    *mailbox
	opts    PhysicsOptions
	dt      float32

	running   bool
	controls  protocol.Controls
	player    physics.BodyHandle
	hasPlayer bool
	vy        float32
	grounded  bool
	ticks     uint64
}

func NewPhysicsContext(ch protocol.Channel, world physics.World, shared *SharedState, opts PhysicsOptions, logger log.Log) *PhysicsContext {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultPhysicsOptions().TickRate
	}
	mirror := scene.NewMirror(scene.NewDocument())
	p := &PhysicsContext{
		mirror:  mirror,
		world:   world,
		builder: physics.NewBuilder(mirror.Document(), world, logger),
		shared:  shared,
		log:     logger.With(log.Component("engine.physics")),
		mail:    newMailbox(),
		opts:    opts,
		dt:      1 / float32(opts.TickRate),
	}
	p.bus = protocol.NewBus(ch, logger)
	p.bus.HandleDefault(p.mail.put)
	p.bus.Listen()
	return p
}

func (p *PhysicsContext) Mirror() *scene.Mirror      { return p.mirror }
func (p *PhysicsContext) Builder() *physics.Builder { return p.builder }
func (p *PhysicsContext) Running() bool             { return p.running }
func (p *PhysicsContext) Grounded() bool            { return p.grounded }
func (p *PhysicsContext) Ticks() uint64             { return p.ticks }

// Player returns the capsule's body once start has spawned it.
func (p *PhysicsContext) Player() (physics.BodyHandle, bool) { return p.player, p.hasPlayer }

// Run announces readiness and ticks at the configured rate until ctx ends.
func (p *PhysicsContext) Run(ctx context.Context) error {
	if err := p.bus.Announce(); err != nil {
		return err
	}
	ticker := time.NewTicker(time.Second / time.Duration(p.opts.TickRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Tick(); err != nil {
				p.log.Error("tick failed", log.Error(err))
				return err
			}
		}
	}
}

// Tick applies queued messages in arrival order and then advances the
// simulation by one fixed step when running.
func (p *PhysicsContext) Tick() error {
	for _, e := range p.mail.take() {
		if err := p.apply(e); err != nil {
			return err
		}
	}
	p.ticks++
	if !p.running || !p.hasPlayer {
		return nil
	}
	return p.step()
}

func (p *PhysicsContext) Close() error {
	p.builder.Close()
	if p.hasPlayer {
		p.world.RemoveBody(p.player)
		p.hasPlayer = false
	}
	return p.bus.Close()
}

func (p *PhysicsContext) apply(e protocol.Envelope) error {
	if p.mirror.Handles(e.Subject) {
		return p.mirror.Apply(e.Subject, e.Data)
	}
	switch e.Subject {
	case protocol.SubjectStart:
		p.running = true
		if !p.hasPlayer {
			return p.spawn(p.spawnPoint())
		}
	case protocol.SubjectStop:
		p.running = false
		p.controls = protocol.Controls{}
	case protocol.SubjectRespawn:
		msg, err := protocol.Decode[protocol.Respawn](e)
		if err != nil {
			p.log.Warn("dropping respawn", log.Error(err))
			return nil
		}
		at := p.spawnPoint()
		if msg.Position != nil {
			at = *msg.Position
		}
		return p.spawn(at)
	case protocol.SubjectSetControls:
		c, err := protocol.Decode[protocol.Controls](e)
		if err != nil {
			p.log.Warn("dropping controls", log.Error(err))
			return nil
		}
		p.controls = c
	default:
		p.log.Debug("ignoring envelope", log.String("subject", e.Subject))
	}
	return nil
}

// spawnPoint is the world position of the first node marked as a spawn
// point, or the origin.
func (p *PhysicsContext) spawnPoint() [3]float32 {
	for _, n := range p.mirror.Document().Nodes() {
		if n.Extensions().SpawnPoint != nil {
			return n.WorldTranslation()
		}
	}
	return [3]float32{}
}

// feet is the distance from the capsule's centre to its lowest point.
func (p *PhysicsContext) feet() float32 {
	return p.opts.PlayerHeight / 2
}

// spawn places the capsule standing on at, creating it on first use.
func (p *PhysicsContext) spawn(at [3]float32) error {
	pose := physics.Pose{
		Translation: [3]float32{at[0], at[1] + p.feet(), at[2]},
		Rotation:    physics.Identity.Rotation,
	}
	p.vy, p.grounded = 0, false
	if p.hasPlayer {
		return errors.WithMessage(p.world.SetBodyPose(p.player, pose), "respawn player")
	}
	body := p.world.CreateBody(physics.Dynamic, pose)
	halfHeight := max(p.opts.PlayerHeight/2-p.opts.PlayerRadius, 0)
	shape := physics.Shape{Type: scene.ColliderCapsule, Radius: p.opts.PlayerRadius, HalfHeight: halfHeight}
	if _, err := p.world.CreateCollider(body, shape, physics.PlayerGroups); err != nil {
		p.world.RemoveBody(body)
		return errors.WithMessage(err, "player collider")
	}
	p.player, p.hasPlayer = body, true
	p.log.Info("player spawned", log.Float32("x", at[0]), log.Float32("y", at[1]), log.Float32("z", at[2]))
	return nil
}

func (p *PhysicsContext) step() error {
	forward := clamp(p.controls.Forward + p.shared.Input(AxisForward))
	right := clamp(p.controls.Right + p.shared.Input(AxisRight))
	yaw := p.controls.Yaw + p.shared.Input(AxisYaw)
	jump := p.controls.Jump || p.shared.Input(AxisJump) > 0
	sprint := p.controls.Sprint || p.shared.Input(AxisSprint) > 0

	speed := p.opts.MoveSpeed
	if sprint {
		speed *= p.opts.SprintFactor
	}
	// Forward is -Z at zero yaw.
	sin, cos := math32.Sincos(yaw)
	vx := (-sin*forward + cos*right) * speed
	vz := (-cos*forward - sin*right) * speed

	if p.grounded && jump {
		p.vy = p.opts.JumpSpeed
		p.grounded = false
	} else if !p.grounded {
		p.vy -= p.opts.Gravity * p.dt
	}
	if err := p.world.SetLinearVelocity(p.player, [3]float32{vx, p.vy, vz}); err != nil {
		return errors.WithMessage(err, "player velocity")
	}
	p.world.Step(p.dt)

	pose, err := p.world.BodyPose(p.player)
	if err != nil {
		return errors.WithMessage(err, "player pose")
	}
	feet := p.feet()
	hit, ok := p.world.CastRay(pose.Translation, [3]float32{0, -1, 0}, feet+groundSlack, physics.ExceptPlayer)
	p.grounded = ok && p.vy <= 0
	if p.grounded {
		p.vy = 0
		pose.Translation[1] = hit.Point[1] + feet
	}
	half := yaw / 2
	pose.Rotation = [4]float32{0, math32.Sin(half), 0, math32.Cos(half)}
	if err := p.world.SetBodyPose(p.player, pose); err != nil {
		return errors.WithMessage(err, "player pose")
	}
	p.shared.SetPosition(pose.Translation)
	p.shared.SetRotation(pose.Rotation)
	return nil
}

func clamp(v float32) float32 {
	return min(max(v, -1), 1)
}
