package engine

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/internal/core/scene"
)

type recorder struct {
	subjects []string
}

func (r *recorder) Send(subject string, _ any) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

func nodeByName(doc *scene.Document, name string) *scene.Node {
	for _, n := range doc.Nodes() {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

func localEngine(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Channel = protocol.PairLocal
	e := New(scene.NewDocument(), opts, log.NewNop())
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// announce does what Run does first in each peer context.
func announce(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.render.bus.Announce())
	require.NoError(t, e.physics.bus.Announce())
}

func ticks(t *testing.T, p *PhysicsContext, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, p.Tick())
	}
}

func TestAuthorityEntityLifecycle(t *testing.T) {
	rec := &recorder{}
	a := NewAuthority(scene.NewDocument(), rec, nil)
	defer a.Close()

	id, err := a.Create(scene.KindNode, []byte(`{"name":"crate","translation":[1,0,0]}`))
	require.NoError(t, err)
	require.NoError(t, a.Tick())

	require.NoError(t, a.Update(scene.KindNode, id, []byte(`{"translation":[2,0,0]}`)))
	require.NoError(t, a.Tick())

	raw, err := a.Get(scene.KindNode, id)
	require.NoError(t, err)
	var snap scene.NodeJSON
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.NotNil(t, snap.Translation)
	assert.Equal(t, [3]float32{2, 0, 0}, *snap.Translation)

	require.NoError(t, a.Dispose(scene.KindNode, id))
	require.NoError(t, a.Dispose(scene.KindNode, id), "second dispose is a no-op")
	require.NoError(t, a.Tick())

	assert.Equal(t, []string{
		scene.Subject(scene.OpCreate, scene.KindNode),
		scene.Subject(scene.OpChange, scene.KindNode),
		scene.Subject(scene.OpDispose, scene.KindNode),
	}, rec.subjects)
}

func TestAuthorityRejectsBadCalls(t *testing.T) {
	a := NewAuthority(scene.NewDocument(), &recorder{}, nil)
	defer a.Close()

	assert.ErrorIs(t, a.Update(scene.KindMesh, "missing", []byte(`{}`)), ErrNotFound)
	_, err := a.Get(scene.KindTexture, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = a.Create(scene.KindMaterial, []byte(`{"name":`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = a.Create(scene.KindNode, []byte(`{"children":["nobody"]}`))
	assert.ErrorIs(t, err, scene.ErrUnresolved)

	child, err := a.Create(scene.KindNode, []byte(`{"name":"child"}`))
	require.NoError(t, err)
	_, err = a.Create(scene.KindNode, []byte(`{"children":[""]}`))
	assert.ErrorIs(t, err, scene.ErrInvalidValue)
	_, err = a.Create(scene.KindNode, []byte(`{"children":["`+string(child)+`","`+string(child)+`"]}`))
	assert.ErrorIs(t, err, scene.ErrInvalidValue)

	prim, err := a.Create(scene.KindPrimitive, nil)
	require.NoError(t, err)
	mesh, err := a.Create(scene.KindMesh, nil)
	require.NoError(t, err)
	err = a.Update(scene.KindMesh, mesh, []byte(`{"primitives":["`+string(prim)+`","`+string(prim)+`"]}`))
	assert.ErrorIs(t, err, scene.ErrInvalidValue)

	var parented int
	require.NoError(t, a.Do(func(doc *scene.Document, _ *scene.Registries) error {
		for _, n := range doc.Nodes() {
			if n.Parent() != nil {
				parented++
			}
		}
		return nil
	}))
	assert.Zero(t, parented, "rejected creates leave no parent behind")
}

func TestAuthorityCreatedThenDisposedBeforeTickSendsNothing(t *testing.T) {
	rec := &recorder{}
	a := NewAuthority(scene.NewDocument(), rec, nil)
	defer a.Close()

	id, err := a.Create(scene.KindMaterial, []byte(`{"name":"temp"}`))
	require.NoError(t, err)
	require.NoError(t, a.Dispose(scene.KindMaterial, id))
	require.NoError(t, a.Tick())
	assert.Empty(t, rec.subjects)
}

func TestAuthorityRefusesReferencedBuffer(t *testing.T) {
	a := NewAuthority(scene.NewDocument(), &recorder{}, nil)
	defer a.Close()

	var bufID scene.ID
	require.NoError(t, a.Do(func(doc *scene.Document, _ *scene.Registries) error {
		buf := doc.CreateBuffer("data")
		doc.CreateAccessor("positions", buf)
		return nil
	}))
	require.NoError(t, a.Tick())
	require.NoError(t, a.Do(func(doc *scene.Document, regs *scene.Registries) error {
		bufID, _ = regs.Buffers.GetID(doc.Buffers()[0])
		return nil
	}))
	assert.ErrorIs(t, a.Dispose(scene.KindBuffer, bufID), ErrInUse)
}

func TestMirrorsSeeWorldTransforms(t *testing.T) {
	e := localEngine(t)
	a := e.Authority()

	child, err := a.Create(scene.KindNode, []byte(`{"name":"n2","translation":[0,1,0]}`))
	require.NoError(t, err)
	_, err = a.Create(scene.KindNode, []byte(`{"name":"n1","translation":[1,0,0],"children":["`+string(child)+`"]}`))
	require.NoError(t, err)
	require.NoError(t, a.Tick())

	require.NoError(t, e.render.Frame())
	assert.Nil(t, nodeByName(e.render.Mirror().Document(), "n2"), "nothing crosses before the peer is ready")

	announce(t, e)
	require.NoError(t, e.render.Frame())
	require.NoError(t, e.physics.Tick())

	for _, doc := range []*scene.Document{e.render.Mirror().Document(), e.physics.Mirror().Document()} {
		n2 := nodeByName(doc, "n2")
		require.NotNil(t, n2)
		assert.Equal(t, [3]float32{1, 1, 0}, n2.WorldTranslation())
	}
	assert.Equal(t, 2, e.render.Stats().Nodes)

	patch, err := scene.Compare(a.graph.Registries(), e.physics.Mirror().Registries())
	require.NoError(t, err)
	assert.Empty(t, patch)
}

// groundScene builds a 10x1x10 box whose top face is at y=0 and a spawn point
// two units above it.
func groundScene(t *testing.T, e *Engine) scene.ID {
	t.Helper()
	ground, err := e.Authority().Create(scene.KindNode, []byte(`{
		"name":"ground","translation":[0,-0.5,0],
		"extensions":{"OMI_collider":{"type":"box","size":[10,1,10]}}}`))
	require.NoError(t, err)
	_, err = e.Authority().Create(scene.KindNode, []byte(`{
		"name":"spawn","translation":[0,2,0],
		"extensions":{"OMI_spawn_point":{"title":"start"}}}`))
	require.NoError(t, err)
	require.NoError(t, e.Authority().Tick())
	return ground
}

func TestPlayerFallsOntoGround(t *testing.T) {
	e := localEngine(t)
	groundScene(t, e)
	require.NoError(t, e.Control(protocol.SubjectStart, nil))
	announce(t, e)

	p := e.Physics()
	require.NoError(t, p.Tick())
	require.True(t, p.Running())
	_, ok := p.Player()
	require.True(t, ok)
	assert.InDelta(t, 2.9, e.Shared().Position()[1], 0.2, "spawned standing on the spawn point")
	assert.False(t, p.Grounded())

	ticks(t, p, 120)
	assert.True(t, p.Grounded())
	assert.InDelta(t, 0.9, e.Shared().Position()[1], 1e-3)
}

func TestPlayerWalksAlongYaw(t *testing.T) {
	e := localEngine(t)
	groundScene(t, e)
	require.NoError(t, e.Control(protocol.SubjectStart, nil))
	require.NoError(t, e.Control(protocol.SubjectRespawn, protocol.Respawn{Position: &[3]float32{0, 0, 0}}))
	announce(t, e)

	p := e.Physics()
	ticks(t, p, 2)
	require.True(t, p.Grounded())

	require.NoError(t, e.Control(protocol.SubjectSetControls, protocol.Controls{Forward: 1}))
	ticks(t, p, 60)
	pos := e.Shared().Position()
	assert.InDelta(t, 0, pos[0], 1e-3)
	assert.InDelta(t, -4, pos[2], 0.1)
	assert.InDelta(t, 0.9, pos[1], 1e-3)

	require.NoError(t, e.Control(protocol.SubjectStop, nil))
	ticks(t, p, 10)
	assert.Equal(t, pos, e.Shared().Position(), "stopped simulation holds still")
}

func TestControlsAreAppliedAtTickBoundary(t *testing.T) {
	e := localEngine(t)
	announce(t, e)
	p := e.Physics()

	require.NoError(t, e.Control(protocol.SubjectStart, nil))
	assert.False(t, p.Running(), "queued until the next tick")
	assert.Equal(t, 1, p.mail.len())
	require.NoError(t, p.Tick())
	assert.True(t, p.Running())
}

func TestColliderSwapReachesPhysicsMirror(t *testing.T) {
	e := localEngine(t)
	ground := groundScene(t, e)
	announce(t, e)
	p := e.Physics()
	require.NoError(t, p.Tick())

	n := nodeByName(p.Mirror().Document(), "ground")
	require.NotNil(t, n)
	body, ok := p.Builder().Body(n)
	require.True(t, ok)
	before := e.World().Stats()

	require.NoError(t, e.Authority().Update(scene.KindNode, ground,
		[]byte(`{"extensions":{"OMI_collider":{"type":"sphere","radius":1}}}`)))
	require.NoError(t, e.Authority().Tick())
	require.NoError(t, p.Tick())

	after := e.World().Stats()
	assert.Equal(t, before.CollidersRemoved+1, after.CollidersRemoved)
	assert.Equal(t, before.CollidersCreated+1, after.CollidersCreated)
	still, ok := p.Builder().Body(n)
	require.True(t, ok)
	assert.Equal(t, body, still)

	collider, ok := p.Builder().Collider(n)
	require.True(t, ok)
	shape, ok := e.World().Shape(collider)
	require.True(t, ok)
	assert.Equal(t, scene.ColliderSphere, shape.Type)
}

func TestRenderTurnsKeysIntoSharedAxes(t *testing.T) {
	e := localEngine(t)
	announce(t, e)
	r := e.Render()

	require.NoError(t, e.Input(protocol.SubjectKeyDown, protocol.KeyEvent{Code: "KeyW"}))
	require.NoError(t, e.Input(protocol.SubjectKeyDown, protocol.KeyEvent{Code: "KeyA"}))
	require.NoError(t, e.Input(protocol.SubjectKeyDown, protocol.KeyEvent{Code: "Space"}))
	require.NoError(t, r.Frame())
	assert.Equal(t, float32(1), e.Shared().Input(AxisForward))
	assert.Equal(t, float32(-1), e.Shared().Input(AxisRight))
	assert.Equal(t, float32(1), e.Shared().Input(AxisJump))

	require.NoError(t, e.Input(protocol.SubjectKeyUp, protocol.KeyEvent{Code: "KeyW"}))
	require.NoError(t, r.Frame())
	assert.Zero(t, e.Shared().Input(AxisForward))
}

func TestRenderDragTurnsCamera(t *testing.T) {
	e := localEngine(t)
	announce(t, e)
	r := e.Render()

	require.NoError(t, e.Input(protocol.SubjectPointerMove, protocol.PointerEvent{X: 0.5}))
	require.NoError(t, r.Frame())
	assert.Zero(t, e.Shared().Input(AxisYaw), "moving without a button held does nothing")

	require.NoError(t, e.Input(protocol.SubjectPointerDown, protocol.PointerEvent{X: 0}))
	require.NoError(t, e.Input(protocol.SubjectPointerMove, protocol.PointerEvent{X: 0.25}))
	require.NoError(t, e.Input(protocol.SubjectPointerUp, protocol.PointerEvent{X: 0.25}))
	require.NoError(t, e.Input(protocol.SubjectWheel, protocol.WheelEvent{DeltaY: 1e6}))
	require.NoError(t, r.Frame())
	assert.InDelta(t, -0.5, e.Shared().Input(AxisYaw), 1e-6)
	assert.Equal(t, float32(maxCameraDist), r.distance)
}

func TestEngineRejectsMisroutedSubjects(t *testing.T) {
	e := localEngine(t)
	assert.ErrorIs(t, e.Input(protocol.SubjectStart, nil), protocol.ErrUnknownSubject)
	assert.ErrorIs(t, e.Control(protocol.SubjectKeyDown, nil), protocol.ErrUnknownSubject)
}

func TestEngineRunsContextsOnWorkers(t *testing.T) {
	opts := DefaultOptions()
	opts.Channel = protocol.PairWorker
	opts.Physics.TickRate = 200
	opts.FrameRate = 200
	opts.SyncRate = 200
	e := New(scene.NewDocument(), opts, log.NewNop())
	defer e.Close()

	groundScene(t, e)
	require.NoError(t, e.Control(protocol.SubjectStart, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return e.Render().Stats().Nodes == 2 && e.Render().Stats().Frames > 2
	}, 5*time.Second, 10*time.Millisecond)

	_, err := e.Authority().Create(scene.KindNode, []byte(`{"name":"late"}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Render().Stats().Nodes == 3 }, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		y := e.Shared().Position()[1]
		return y > 0.89 && y < 0.91
	}, 5*time.Second, 10*time.Millisecond, "player lands")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestSharedStateDefaults(t *testing.T) {
	s := NewSharedState()
	assert.Equal(t, [4]float32{0, 0, 0, 1}, s.Rotation())
	s.SetPosition([3]float32{1, -2, 3.5})
	assert.Equal(t, [3]float32{1, -2, 3.5}, s.Position())
	s.SetInput(axisCount, 7)
	assert.Zero(t, s.Input(axisCount))
	s.SetInput(AxisSprint, 1)
	s.ResetInput()
	assert.Zero(t, s.Input(AxisSprint))
}

func TestWindowLimiterCapsPerWindow(t *testing.T) {
	l := newWindowLimiter(2, time.Second)
	now := time.Unix(100, 0)

	ok, _ := l.allow(now)
	assert.True(t, ok)
	ok, _ = l.allow(now.Add(10 * time.Millisecond))
	assert.True(t, ok)

	ok, first := l.allow(now.Add(20 * time.Millisecond))
	assert.False(t, ok)
	assert.True(t, first)
	ok, first = l.allow(now.Add(30 * time.Millisecond))
	assert.False(t, ok)
	assert.False(t, first, "only the first refusal per window is flagged")

	ok, _ = l.allow(now.Add(time.Second))
	assert.True(t, ok, "a new window starts fresh")

	var unlimited *windowLimiter
	ok, _ = unlimited.allow(now)
	assert.True(t, ok)
}
