package scene

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// NodeAttr names a Node field in change events.
type NodeAttr uint8

const (
	NodeName NodeAttr = iota
	NodeTranslation
	NodeRotation
	NodeScale
	NodeMesh
	NodeChildren
	NodeExtensionsAttr
	NodeExtras
)

var nodeAttrs = [...]NodeAttr{
	NodeName, NodeTranslation, NodeRotation, NodeScale, NodeMesh, NodeChildren, NodeExtensionsAttr, NodeExtras,
}

func (a NodeAttr) String() string {
	switch a {
	case NodeName:
		return "name"
	case NodeTranslation:
		return "translation"
	case NodeRotation:
		return "rotation"
	case NodeScale:
		return "scale"
	case NodeMesh:
		return "mesh"
	case NodeChildren:
		return "children"
	case NodeExtensionsAttr:
		return "extensions"
	case NodeExtras:
		return "extras"
	default:
		return "unknown"
	}
}

// IsTransform reports whether the attribute feeds the local matrix.
func (a NodeAttr) IsTransform() bool {
	return a == NodeTranslation || a == NodeRotation || a == NodeScale
}

// Node is a transform in the scene tree. A node has at most one parent; the
// parent/child relation never forms a cycle.
type Node struct {
	entity[NodeAttr]
	name        string
	translation [3]float32
	rotation    [4]float32 // x, y, z, w
	scale       [3]float32
	mesh        *Mesh
	skin        *Skin
	parent      *Node
	children    []*Node
	extensions  NodeExtensions
	extras      Extras
}

// NodeJSON is the snapshot and partial-update shape of a Node.
type NodeJSON struct {
	Name        *string             `json:"name,omitempty"`
	Translation *[3]float32         `json:"translation,omitempty"`
	Rotation    *[4]float32         `json:"rotation,omitempty"`
	Scale       *[3]float32         `json:"scale,omitempty"`
	Mesh        *ID                 `json:"mesh,omitempty"`
	Children    *[]ID               `json:"children,omitempty"`
	Extensions  *NodeExtensionsJSON `json:"extensions,omitempty"`
	Extras      *Extras             `json:"extras,omitempty"`
}

func (n *Node) Kind() Kind { return KindNode }

func (n *Node) Name() string                { return n.name }
func (n *Node) Translation() [3]float32     { return n.translation }
func (n *Node) Rotation() [4]float32        { return n.rotation }
func (n *Node) Scale() [3]float32           { return n.scale }
func (n *Node) Mesh() *Mesh                 { return n.mesh }
func (n *Node) Skin() *Skin                 { return n.skin }
func (n *Node) Parent() *Node               { return n.parent }
func (n *Node) Children() []*Node           { return slices.Clone(n.children) }
func (n *Node) Extensions() NodeExtensions  { return n.extensions.clone() }
func (n *Node) Collider() *Collider         { return n.Extensions().Collider }
func (n *Node) Extras() Extras              { return n.extras.Clone() }

func (n *Node) SetName(name string) {
	if n.name != name {
		n.name = name
		n.changed(NodeName)
	}
}

func (n *Node) SetTranslation(v [3]float32) {
	if n.translation != v {
		n.translation = v
		n.changed(NodeTranslation)
	}
}

// SetRotation sets the local rotation quaternion in x, y, z, w order.
func (n *Node) SetRotation(q [4]float32) {
	if n.rotation != q {
		n.rotation = q
		n.changed(NodeRotation)
	}
}

func (n *Node) SetScale(v [3]float32) {
	if n.scale != v {
		n.scale = v
		n.changed(NodeScale)
	}
}

func (n *Node) SetMesh(m *Mesh) {
	if m != nil {
		n.mustShare(m.doc)
	}
	if n.mesh != m {
		n.mesh = m
		n.changed(NodeMesh)
	}
}

// SetSkin binds a skin. Skins are codec-side data and raise no change event.
func (n *Node) SetSkin(s *Skin) {
	if s != nil && s.doc != n.doc {
		panic("scene: entities belong to different documents")
	}
	n.skin = s
}

// SetExtensions replaces the whole extension map.
func (n *Node) SetExtensions(ext NodeExtensions) {
	if ext.Collider != nil && ext.Collider.Mesh != nil {
		n.mustShare(ext.Collider.Mesh.doc)
	}
	n.extensions = ext.clone()
	n.changed(NodeExtensionsAttr)
}

// SetCollider attaches, replaces, or (with nil) removes the collider extension.
func (n *Node) SetCollider(c *Collider) {
	ext := n.extensions.clone()
	ext.Collider = c
	n.SetExtensions(ext)
}

func (n *Node) SetSpawnPoint(s *SpawnPoint) {
	ext := n.extensions.clone()
	ext.SpawnPoint = s
	n.SetExtensions(ext)
}

func (n *Node) SetExtras(x Extras) {
	n.extras = x.Clone()
	n.changed(NodeExtras)
}

// IsAncestorOf reports whether n is a strict ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// AddChild appends c, detaching it from its previous parent first. Making a
// node its own ancestor panics.
func (n *Node) AddChild(c *Node) {
	n.mustShare(c.doc)
	if c == n || c.IsAncestorOf(n) {
		panic("scene: node cannot be its own ancestor")
	}
	if c.parent == n {
		return
	}
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	c.parent = n
	n.children = append(n.children, c)
	n.changed(NodeChildren)
}

func (n *Node) RemoveChild(c *Node) {
	i := slices.Index(n.children, c)
	if i < 0 {
		return
	}
	n.children = slices.Delete(n.children, i, i+1)
	c.parent = nil
	n.changed(NodeChildren)
}

// SetChildren replaces the child list. Every incoming child is detached from its
// previous parent before it is attached here.
func (n *Node) SetChildren(children []*Node) {
	for _, c := range children {
		n.mustShare(c.doc)
		if c == n || c.IsAncestorOf(n) {
			panic("scene: node cannot be its own ancestor")
		}
	}
	if slices.Equal(n.children, children) {
		return
	}
	for _, c := range n.children {
		if !slices.Contains(children, c) {
			c.parent = nil
		}
	}
	for _, c := range children {
		if c.parent != nil && c.parent != n {
			c.parent.RemoveChild(c)
		}
		c.parent = n
	}
	n.children = slices.Clone(children)
	n.changed(NodeChildren)
}

// Traverse visits n and its descendants depth-first, parents before children.
// Returning false from fn skips that node's subtree.
func (n *Node) Traverse(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Traverse(fn)
	}
}

// LocalMatrix composes translation, rotation, and scale.
func (n *Node) LocalMatrix() mgl32.Mat4 {
	t, r, s := n.translation, n.rotation, n.scale
	q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
	return mgl32.Translate3D(t[0], t[1], t[2]).Mul4(q.Mat4()).Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// WorldMatrix composes every ancestor's local matrix from the root down.
func (n *Node) WorldMatrix() mgl32.Mat4 {
	m := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		m = p.LocalMatrix().Mul4(m)
	}
	return m
}

// WorldTranslation is the translation column of WorldMatrix.
func (n *Node) WorldTranslation() [3]float32 {
	c := n.WorldMatrix().Col(3)
	return [3]float32{c[0], c[1], c[2]}
}

// Decompose splits an affine matrix without shear into translation, rotation
// (x, y, z, w), and scale.
func Decompose(m mgl32.Mat4) (t [3]float32, r [4]float32, s [3]float32) {
	c3 := m.Col(3)
	t = [3]float32{c3[0], c3[1], c3[2]}
	var rot mgl32.Mat4
	for i := 0; i < 3; i++ {
		col := m.Col(i).Vec3()
		s[i] = col.Len()
		if s[i] != 0 {
			col = col.Mul(1 / s[i])
		}
		rot.SetCol(i, col.Vec4(0))
	}
	rot.SetCol(3, mgl32.Vec4{0, 0, 0, 1})
	q := mgl32.Mat4ToQuat(rot).Normalize()
	r = [4]float32{q.V[0], q.V[1], q.V[2], q.W}
	return t, r, s
}

// Dispose removes the node, detaches it from its parent, and orphans its
// children. Shared meshes stay in the document.
func (n *Node) Dispose() {
	if !n.beginDispose() {
		return
	}
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
	for _, c := range n.children {
		c.parent = nil
	}
	n.children = nil
	for _, s := range n.doc.skins {
		s.detachJoint(n)
	}
	n.doc.nodes = remove(n.doc.nodes, n)
	n.endDispose()
}
