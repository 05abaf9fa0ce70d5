package scene

import (
	"maps"
	"slices"
)

// Mode is the primitive topology.
type Mode int

const (
	Points Mode = iota
	Lines
	LineLoop
	LineStrip
	Triangles
	TriangleStrip
	TriangleFan
)

func (m Mode) Valid() bool { return m >= Points && m <= TriangleFan }

// IsTriangles reports whether the mode produces surfaces.
func (m Mode) IsTriangles() bool {
	return m == Triangles || m == TriangleStrip || m == TriangleFan
}

// PrimitiveAttr names a Primitive field in change events.
type PrimitiveAttr uint8

const (
	PrimitiveMode PrimitiveAttr = iota
	PrimitiveAttributes
	PrimitiveIndices
	PrimitiveMaterial
	PrimitiveTargets
)

var primitiveAttrs = [...]PrimitiveAttr{
	PrimitiveMode, PrimitiveAttributes, PrimitiveIndices, PrimitiveMaterial, PrimitiveTargets,
}

func (a PrimitiveAttr) String() string {
	switch a {
	case PrimitiveMode:
		return "mode"
	case PrimitiveAttributes:
		return "attributes"
	case PrimitiveIndices:
		return "indices"
	case PrimitiveMaterial:
		return "material"
	case PrimitiveTargets:
		return "targets"
	default:
		return "unknown"
	}
}

// Target is one morph target: semantic name to displacement accessor.
type Target map[string]*Accessor

// Primitive is one draw unit of a mesh.
type Primitive struct {
	entity[PrimitiveAttr]
	mode       Mode
	attributes map[string]*Accessor
	indices    *Accessor
	material   *Material
	targets    []Target
}

// PrimitiveJSON is the snapshot and partial-update shape of a Primitive.
type PrimitiveJSON struct {
	Mode       *Mode            `json:"mode,omitempty"`
	Attributes *map[string]ID   `json:"attributes,omitempty"`
	Indices    *ID              `json:"indices,omitempty"`
	Material   *ID              `json:"material,omitempty"`
	Targets    *[]map[string]ID `json:"targets,omitempty"`
}

func (p *Primitive) Kind() Kind { return KindPrimitive }

func (p *Primitive) Mode() Mode            { return p.mode }
func (p *Primitive) Indices() *Accessor    { return p.indices }
func (p *Primitive) Material() *Material   { return p.material }
func (p *Primitive) Attribute(semantic string) *Accessor {
	return p.attributes[semantic]
}

// Semantics returns the attribute names in sorted order.
func (p *Primitive) Semantics() []string {
	return slices.Sorted(maps.Keys(p.attributes))
}

// Targets returns a copy of the morph targets.
func (p *Primitive) Targets() []Target {
	out := make([]Target, len(p.targets))
	for i, t := range p.targets {
		out[i] = maps.Clone(t)
	}
	return out
}

func (p *Primitive) SetMode(m Mode) {
	if p.mode != m {
		p.mode = m
		p.changed(PrimitiveMode)
	}
}

// SetAttribute binds semantic to a; a nil accessor removes the attribute.
func (p *Primitive) SetAttribute(semantic string, a *Accessor) {
	if a != nil {
		p.mustShare(a.doc)
	}
	if p.attributes[semantic] == a {
		return
	}
	if a == nil {
		delete(p.attributes, semantic)
	} else {
		p.attributes[semantic] = a
	}
	p.changed(PrimitiveAttributes)
}

func (p *Primitive) setAttributes(attrs map[string]*Accessor) {
	if maps.Equal(p.attributes, attrs) {
		return
	}
	p.attributes = attrs
	p.changed(PrimitiveAttributes)
}

func (p *Primitive) SetIndices(a *Accessor) {
	if a != nil {
		p.mustShare(a.doc)
	}
	if p.indices != a {
		p.indices = a
		p.changed(PrimitiveIndices)
	}
}

func (p *Primitive) SetMaterial(m *Material) {
	if m != nil {
		p.mustShare(m.doc)
	}
	if p.material != m {
		p.material = m
		p.changed(PrimitiveMaterial)
	}
}

// AddTarget appends a morph target.
func (p *Primitive) AddTarget(t Target) {
	for _, a := range t {
		p.mustShare(a.doc)
	}
	p.targets = append(p.targets, maps.Clone(t))
	p.changed(PrimitiveTargets)
}

func (p *Primitive) SetTargets(targets []Target) {
	if slices.EqualFunc(p.targets, targets, func(a, b Target) bool { return maps.Equal(a, b) }) {
		return
	}
	p.targets = targets
	p.changed(PrimitiveTargets)
}

func (p *Primitive) detachAccessor(a *Accessor) {
	if p.indices == a {
		p.SetIndices(nil)
	}
	for name, v := range p.attributes {
		if v == a {
			p.SetAttribute(name, nil)
		}
	}
	touched := false
	for _, t := range p.targets {
		for name, v := range t {
			if v == a {
				delete(t, name)
				touched = true
			}
		}
	}
	if touched {
		p.changed(PrimitiveTargets)
	}
}

// Dispose removes the primitive from its document and every mesh.
func (p *Primitive) Dispose() {
	if !p.beginDispose() {
		return
	}
	for _, m := range p.doc.meshes {
		m.RemovePrimitive(p)
	}
	p.doc.primitives = remove(p.doc.primitives, p)
	p.endDispose()
}
