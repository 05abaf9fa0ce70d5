package physics

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/events"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/reactive"
	"github.com/zeusync/scenesync/internal/core/scene"
)

var ErrNoMesh = errors.New("physics: trimesh collider has no mesh")

// colliderSpec is everything a collider's shape is derived from, apart from the
// node's transform. Two equal specs produce the same local shape.
type colliderSpec struct {
	Type   scene.ColliderType
	Size   [3]float32
	Radius float32
	Height float32
	Mesh   *scene.Mesh
}

func specOf(n *scene.Node) colliderSpec {
	c := n.Collider()
	if c == nil {
		return colliderSpec{}
	}
	spec := colliderSpec{Type: c.Type, Size: c.Size, Radius: c.Radius, Height: c.Height}
	if c.Type == scene.ColliderTrimesh {
		spec.Mesh = c.Mesh
		if spec.Mesh == nil {
			spec.Mesh = n.Mesh()
		}
	}
	return spec
}

type tracked struct {
	scope    *reactive.Scope
	children []*scene.Node

	body     BodyHandle
	hasBody  bool
	collider ColliderHandle
	hasShape bool
	spec     colliderSpec
	local    Shape // trimesh only: vertices in node space
	linear   mgl32.Mat3
	scale    [3]float32
}

// Builder keeps one kinematic body per collider-bearing node of a document and
// the collider on it shaped after the node's extension and world transform.
//
// A node's body lives while the node carries a collider extension. Changing the
// collider parameters replaces only the collider. Any transform or child-list
// change on a node re-syncs every body in its subtree.
type Builder struct {
	world World
	log   log.Log
	doc   *scene.Document

	root  *reactive.Scope
	nodes map[*scene.Node]*tracked
	added events.Subscription
}

// NewBuilder tracks every node already in doc and every node added later.
func NewBuilder(doc *scene.Document, world World, logger log.Log) *Builder {
	b := &Builder{
		world: world,
		log:   logger.With(log.Component("physics.builder")),
		doc:   doc,
		root:  reactive.NewScope(),
		nodes: make(map[*scene.Node]*tracked),
	}
	for _, n := range doc.Nodes() {
		b.track(n)
	}
	b.added = doc.OnAdd(func(e any) {
		if n, ok := e.(*scene.Node); ok {
			b.track(n)
		}
	})
	return b
}

// Close removes every body the builder created and stops tracking.
func (b *Builder) Close() {
	b.added.Cancel()
	b.root.Dispose()
	clear(b.nodes)
}

// Len is the number of live bodies.
func (b *Builder) Len() int {
	count := 0
	for _, t := range b.nodes {
		if t.hasBody {
			count++
		}
	}
	return count
}

func (b *Builder) Body(n *scene.Node) (BodyHandle, bool) {
	if t, ok := b.nodes[n]; ok && t.hasBody {
		return t.body, true
	}
	return 0, false
}

func (b *Builder) Collider(n *scene.Node) (ColliderHandle, bool) {
	if t, ok := b.nodes[n]; ok && t.hasShape {
		return t.collider, true
	}
	return 0, false
}

func (b *Builder) track(n *scene.Node) {
	if _, ok := b.nodes[n]; ok || n.IsDisposed() {
		return
	}
	t := &tracked{scope: b.root.Child(), children: n.Children()}
	b.nodes[n] = t

	disposed := n.OnDispose(func() {
		t.scope.Dispose()
		delete(b.nodes, n)
	})
	t.scope.OnCleanup(disposed.Cancel)

	moved := n.OnChange(func(attr scene.NodeAttr) {
		switch {
		case attr.IsTransform():
			b.walk(n)
		case attr == scene.NodeChildren:
			previous := t.children
			t.children = n.Children()
			for _, c := range previous {
				if !slices.Contains(t.children, c) {
					b.walk(c)
				}
			}
			b.walk(n)
		}
	})
	t.scope.OnCleanup(moved.Cancel)

	hasCollider := reactive.Select(
		reactive.Attr[scene.NodeAttr](n, n.Collider, scene.NodeExtensionsAttr),
		func(c *scene.Collider) bool { return c != nil },
	)
	reactive.Subscribe(t.scope, hasCollider, func(s *reactive.Scope, has bool) {
		if !has {
			return
		}
		b.attachBody(s, n, t)
		spec := reactive.Attr[scene.NodeAttr](n, func() colliderSpec { return specOf(n) }, scene.NodeExtensionsAttr, scene.NodeMesh)
		reactive.Subscribe(s, reactive.Select(spec, func(c colliderSpec) colliderSpec { return c }),
			func(s *reactive.Scope, spec colliderSpec) {
				b.attachCollider(s, n, t, spec)
			})
	})
}

func (b *Builder) attachBody(s *reactive.Scope, n *scene.Node, t *tracked) {
	tr, rot, _ := scene.Decompose(n.WorldMatrix())
	t.body = b.world.CreateBody(Kinematic, Pose{Translation: tr, Rotation: rot})
	t.hasBody = true
	s.OnCleanup(func() {
		b.world.RemoveBody(t.body)
		t.hasBody = false
	})
}

func (b *Builder) attachCollider(s *reactive.Scope, n *scene.Node, t *tracked, spec colliderSpec) {
	if spec.Type == "" || !t.hasBody {
		return
	}
	t.spec = spec
	if spec.Type == scene.ColliderTrimesh {
		local, err := bakeTrimesh(spec.Mesh)
		if err != nil {
			b.warn(n, "bake trimesh", err)
			return
		}
		t.local = local
	}

	world := n.WorldMatrix()
	shape, pose := b.shapeFor(t, world)
	if err := b.world.SetBodyPose(t.body, pose); err != nil {
		b.warn(n, "pose body", err)
		return
	}
	h, err := b.world.CreateCollider(t.body, shape, StaticGroups)
	if err != nil {
		b.warn(n, "create collider", err)
		return
	}
	t.collider, t.hasShape = h, true
	s.OnCleanup(func() {
		b.world.RemoveCollider(h)
		t.hasShape = false
		t.local = Shape{}
	})
}

// walk re-syncs every live body in the subtree rooted at n.
func (b *Builder) walk(n *scene.Node) {
	n.Traverse(func(d *scene.Node) bool {
		if t, ok := b.nodes[d]; ok && t.hasShape {
			b.sync(d, t)
		}
		return true
	})
}

func (b *Builder) sync(n *scene.Node, t *tracked) {
	world := n.WorldMatrix()
	reshape := world.Mat3() != t.linear
	if t.spec.Type != scene.ColliderTrimesh {
		_, _, scale := scene.Decompose(world)
		reshape = scale != t.scale
	}

	var (
		shape Shape
		pose  Pose
	)
	if reshape {
		shape, pose = b.shapeFor(t, world)
	} else {
		pose = poseFor(t.spec.Type, world)
	}
	if err := b.world.SetBodyPose(t.body, pose); err != nil {
		b.warn(n, "pose body", err)
		return
	}
	if !reshape {
		return
	}
	if err := b.world.SetColliderShape(t.collider, shape); err != nil {
		b.warn(n, "reshape collider", err)
	}
}

// shapeFor derives the body-space shape and body pose for a world matrix and
// records the transform it was derived from.
func (b *Builder) shapeFor(t *tracked, world mgl32.Mat4) (Shape, Pose) {
	_, _, scale := scene.Decompose(world)
	t.linear, t.scale = world.Mat3(), scale
	pose := poseFor(t.spec.Type, world)
	if t.spec.Type == scene.ColliderTrimesh {
		return projectTrimesh(t.local, world), pose
	}
	return scaledShape(t.spec, scale), pose
}

// poseFor places primitive shapes with the full world rotation. Trimesh
// vertices already carry rotation and scale, so their body only translates.
func poseFor(typ scene.ColliderType, world mgl32.Mat4) Pose {
	tr, rot, _ := scene.Decompose(world)
	if typ == scene.ColliderTrimesh {
		return Pose{Translation: tr, Rotation: Identity.Rotation}
	}
	return Pose{Translation: tr, Rotation: rot}
}

func scaledShape(spec colliderSpec, scale [3]float32) Shape {
	sx, sy, sz := math32.Abs(scale[0]), math32.Abs(scale[1]), math32.Abs(scale[2])
	switch spec.Type {
	case scene.ColliderBox:
		return Shape{Type: spec.Type, HalfExtents: [3]float32{spec.Size[0] / 2 * sx, spec.Size[1] / 2 * sy, spec.Size[2] / 2 * sz}}
	case scene.ColliderSphere:
		return Shape{Type: spec.Type, Radius: spec.Radius * math32.Max(sx, math32.Max(sy, sz))}
	case scene.ColliderCylinder:
		return Shape{Type: spec.Type, Radius: spec.Radius * math32.Max(sx, sz), HalfHeight: spec.Height / 2 * sy}
	case scene.ColliderCapsule:
		// Height includes both caps.
		r := spec.Radius * math32.Max(sx, sz)
		return Shape{Type: spec.Type, Radius: r, HalfHeight: math32.Max(spec.Height/2*sy-r, 0)}
	}
	return Shape{Type: spec.Type}
}

// bakeTrimesh collects the triangle-list primitives of m into one node-space
// shape. Non-triangle primitives are skipped.
func bakeTrimesh(m *scene.Mesh) (Shape, error) {
	if m == nil {
		return Shape{}, ErrNoMesh
	}
	shape := Shape{Type: scene.ColliderTrimesh}
	var el []float32
	for _, p := range m.Primitives() {
		if p.Mode() != scene.Triangles {
			continue
		}
		pos := p.Attribute("POSITION")
		if pos == nil || pos.ElementType() != scene.Vec3 {
			return Shape{}, errors.Wrapf(ErrInvalidShape, "mesh %q primitive without VEC3 POSITION", m.Name())
		}
		base := uint32(len(shape.Vertices) / 3)
		for i := 0; i < pos.Count(); i++ {
			el = pos.NormalizedElement(i, el)
			shape.Vertices = append(shape.Vertices, el...)
		}
		if idx := p.Indices(); idx != nil {
			for _, v := range idx.Array() {
				shape.Indices = append(shape.Indices, base+uint32(v))
			}
		} else {
			for i := 0; i < pos.Count(); i++ {
				shape.Indices = append(shape.Indices, base+uint32(i))
			}
		}
	}
	if len(shape.Indices) == 0 {
		return Shape{}, errors.Wrapf(ErrInvalidShape, "mesh %q has no triangles", m.Name())
	}
	return shape, shape.Validate()
}

// projectTrimesh applies the rotation and scale of world to node-space vertices.
func projectTrimesh(local Shape, world mgl32.Mat4) Shape {
	linear := world.Mat3()
	out := Shape{Type: local.Type, Indices: local.Indices, Vertices: make([]float32, len(local.Vertices))}
	for i := 0; i+2 < len(local.Vertices); i += 3 {
		v := linear.Mul3x1(mgl32.Vec3{local.Vertices[i], local.Vertices[i+1], local.Vertices[i+2]})
		copy(out.Vertices[i:i+3], v[:])
	}
	return out
}

func (b *Builder) warn(n *scene.Node, op string, err error) {
	b.log.Warn("physics node skipped",
		log.String("node", n.Name()),
		log.String("op", op),
		log.Error(err),
	)
}
