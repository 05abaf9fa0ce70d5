package scene

import (
	"slices"

	"github.com/zeusync/scenesync/internal/core/events"
)

// Document is the live listing of every entity in one scene. Entities enter it
// when constructed through a Create method and leave it when disposed.
type Document struct {
	buffers    []*Buffer
	accessors  []*Accessor
	textures   []*Texture
	materials  []*Material
	primitives []*Primitive
	meshes     []*Mesh
	nodes      []*Node
	skins      []*Skin

	added events.Emitter[any]
}

func NewDocument() *Document {
	return &Document{}
}

// OnAdd subscribes to entities entering the listing. The handler receives the
// entity pointer (*Node, *Mesh, ...).
func (d *Document) OnAdd(fn func(entity any)) events.Subscription {
	return d.added.Subscribe(fn)
}

func (d *Document) CreateBuffer(name string) *Buffer {
	b := &Buffer{name: name}
	b.doc = d
	d.buffers = append(d.buffers, b)
	d.added.Emit(b)
	return b
}

func (d *Document) CreateAccessor(name string, buffer *Buffer) *Accessor {
	a := &Accessor{name: name, componentType: Float, elementType: Scalar}
	a.doc = d
	if buffer != nil {
		a.mustShare(buffer.doc)
		a.buffer = buffer
	}
	d.accessors = append(d.accessors, a)
	d.added.Emit(a)
	return a
}

func (d *Document) CreateTexture(name string) *Texture {
	t := &Texture{name: name}
	t.doc = d
	d.textures = append(d.textures, t)
	d.added.Emit(t)
	return t
}

func (d *Document) CreateMaterial(name string) *Material {
	m := newMaterial(name)
	m.doc = d
	d.materials = append(d.materials, m)
	d.added.Emit(m)
	return m
}

func (d *Document) CreatePrimitive() *Primitive {
	p := &Primitive{mode: Triangles, attributes: map[string]*Accessor{}}
	p.doc = d
	d.primitives = append(d.primitives, p)
	d.added.Emit(p)
	return p
}

func (d *Document) CreateMesh(name string) *Mesh {
	m := &Mesh{name: name}
	m.doc = d
	d.meshes = append(d.meshes, m)
	d.added.Emit(m)
	return m
}

func (d *Document) CreateNode(name string) *Node {
	n := &Node{name: name, rotation: [4]float32{0, 0, 0, 1}, scale: [3]float32{1, 1, 1}}
	n.doc = d
	d.nodes = append(d.nodes, n)
	d.added.Emit(n)
	return n
}

func (d *Document) CreateSkin(name string) *Skin {
	s := &Skin{name: name, doc: d}
	d.skins = append(d.skins, s)
	d.added.Emit(s)
	return s
}

func (d *Document) Buffers() []*Buffer       { return slices.Clone(d.buffers) }
func (d *Document) Accessors() []*Accessor   { return slices.Clone(d.accessors) }
func (d *Document) Textures() []*Texture     { return slices.Clone(d.textures) }
func (d *Document) Materials() []*Material   { return slices.Clone(d.materials) }
func (d *Document) Primitives() []*Primitive { return slices.Clone(d.primitives) }
func (d *Document) Meshes() []*Mesh          { return slices.Clone(d.meshes) }
func (d *Document) Nodes() []*Node           { return slices.Clone(d.nodes) }
func (d *Document) Skins() []*Skin           { return slices.Clone(d.skins) }

// Roots returns the parentless nodes in listing order.
func (d *Document) Roots() []*Node {
	var roots []*Node
	for _, n := range d.nodes {
		if n.parent == nil {
			roots = append(roots, n)
		}
	}
	return roots
}

// DefaultBuffer returns the first buffer, creating one if the document has none.
func (d *Document) DefaultBuffer() *Buffer {
	if len(d.buffers) == 0 {
		return d.CreateBuffer("")
	}
	return d.buffers[0]
}

func remove[T comparable](s []T, v T) []T {
	if i := slices.Index(s, v); i >= 0 {
		return slices.Delete(s, i, i+1)
	}
	return s
}
