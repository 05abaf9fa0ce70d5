package scene

import "slices"

// MeshAttr names a Mesh field in change events.
type MeshAttr uint8

const (
	MeshName MeshAttr = iota
	MeshPrimitives
	MeshWeights
)

var meshAttrs = [...]MeshAttr{MeshName, MeshPrimitives, MeshWeights}

func (a MeshAttr) String() string {
	switch a {
	case MeshName:
		return "name"
	case MeshPrimitives:
		return "primitives"
	case MeshWeights:
		return "weights"
	default:
		return "unknown"
	}
}

// Mesh is an ordered list of primitives plus default morph weights.
type Mesh struct {
	entity[MeshAttr]
	name       string
	primitives []*Primitive
	weights    []float32
}

// MeshJSON is the snapshot and partial-update shape of a Mesh.
type MeshJSON struct {
	Name       *string    `json:"name,omitempty"`
	Primitives *[]ID      `json:"primitives,omitempty"`
	Weights    *[]float32 `json:"weights,omitempty"`
}

func (m *Mesh) Kind() Kind { return KindMesh }

func (m *Mesh) Name() string              { return m.name }
func (m *Mesh) Primitives() []*Primitive  { return slices.Clone(m.primitives) }
func (m *Mesh) Weights() []float32        { return slices.Clone(m.weights) }

func (m *Mesh) SetName(name string) {
	if m.name != name {
		m.name = name
		m.changed(MeshName)
	}
}

func (m *Mesh) AddPrimitive(p *Primitive) {
	m.mustShare(p.doc)
	m.primitives = append(m.primitives, p)
	m.changed(MeshPrimitives)
}

func (m *Mesh) RemovePrimitive(p *Primitive) {
	if i := slices.Index(m.primitives, p); i >= 0 {
		m.primitives = slices.Delete(m.primitives, i, i+1)
		m.changed(MeshPrimitives)
	}
}

func (m *Mesh) SetPrimitives(prims []*Primitive) {
	for _, p := range prims {
		m.mustShare(p.doc)
	}
	if !slices.Equal(m.primitives, prims) {
		m.primitives = prims
		m.changed(MeshPrimitives)
	}
}

func (m *Mesh) SetWeights(w []float32) {
	if !slices.Equal(m.weights, w) {
		m.weights = w
		m.changed(MeshWeights)
	}
}

// Dispose removes the mesh, clearing it from nodes and trimesh colliders.
func (m *Mesh) Dispose() {
	if !m.beginDispose() {
		return
	}
	for _, n := range m.doc.nodes {
		if n.mesh == m {
			n.SetMesh(nil)
		}
		if c := n.extensions.Collider; c != nil && c.Mesh == m {
			next := *c
			next.Mesh = nil
			n.SetCollider(&next)
		}
	}
	m.doc.meshes = remove(m.doc.meshes, m)
	m.endDispose()
}
