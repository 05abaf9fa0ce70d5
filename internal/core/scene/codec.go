package scene

import (
	"slices"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Registries is the per-document set of registries, one per kind. Codecs
// resolve relational ids through it, so a Registries value is the complete id
// space of one context.
type Registries struct {
	Buffers    *Registry[*Buffer, BufferJSON]
	Accessors  *Registry[*Accessor, AccessorJSON]
	Textures   *Registry[*Texture, TextureJSON]
	Materials  *Registry[*Material, MaterialJSON]
	Primitives *Registry[*Primitive, PrimitiveJSON]
	Meshes     *Registry[*Mesh, MeshJSON]
	Nodes      *Registry[*Node, NodeJSON]
}

// NewRegistries builds the registries for doc. Quiet registries (mirrors) do
// not queue their creates for ProcessChanges.
func NewRegistries(doc *Document, quiet bool) *Registries {
	r := &Registries{}
	r.Buffers = newRegistry[*Buffer, BufferJSON](KindBuffer, doc, bufferCodec{}, doc.Buffers, quiet)
	r.Accessors = newRegistry[*Accessor, AccessorJSON](KindAccessor, doc, accessorCodec{r}, doc.Accessors, quiet)
	r.Textures = newRegistry[*Texture, TextureJSON](KindTexture, doc, textureCodec{}, doc.Textures, quiet)
	r.Materials = newRegistry[*Material, MaterialJSON](KindMaterial, doc, materialCodec{r}, doc.Materials, quiet)
	r.Primitives = newRegistry[*Primitive, PrimitiveJSON](KindPrimitive, doc, primitiveCodec{r}, doc.Primitives, quiet)
	r.Meshes = newRegistry[*Mesh, MeshJSON](KindMesh, doc, meshCodec{r}, doc.Meshes, quiet)
	r.Nodes = newRegistry[*Node, NodeJSON](KindNode, doc, nodeCodec{r}, doc.Nodes, quiet)
	return r
}

func ptr[V any](v V) *V { return &v }

func snapshot[T any, A any, J any](obj T, attrs []A, fill func(T, A, *J) error) (J, error) {
	var j J
	for _, a := range attrs {
		if err := fill(obj, a, &j); err != nil {
			return j, err
		}
	}
	return j, nil
}

func refList[T Entity, J any](r *Registry[T, J], objs []T) ([]ID, error) {
	ids := make([]ID, 0, len(objs))
	for _, o := range objs {
		id, err := ref(r, o)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// resolveList resolves every id of a list field. Lists hold distinct live
// entities, so an empty or repeated id is invalid.
func resolveList[T Entity, J any](r *Registry[T, J], ids []ID) ([]T, error) {
	objs := make([]T, 0, len(ids))
	seen := make(map[ID]struct{}, len(ids))
	for i, id := range ids {
		if id == "" {
			return nil, errors.Wrapf(ErrInvalidValue, "%s list entry %d is empty", r.kind, i)
		}
		if _, dup := seen[id]; dup {
			return nil, errors.Wrapf(ErrInvalidValue, "%s %s listed twice", r.kind, id)
		}
		seen[id] = struct{}{}
		o, err := resolve(r, id)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return objs, nil
}

func refMap(r *Registry[*Accessor, AccessorJSON], m map[string]*Accessor) (map[string]ID, error) {
	out := make(map[string]ID, len(m))
	for k, a := range m {
		id, err := ref(r, a)
		if err != nil {
			return nil, errors.Wrap(err, k)
		}
		out[k] = id
	}
	return out, nil
}

func resolveMap(r *Registry[*Accessor, AccessorJSON], m map[string]ID) (map[string]*Accessor, error) {
	out := make(map[string]*Accessor, len(m))
	for k, id := range m {
		a, err := resolve(r, id)
		if err != nil {
			return nil, errors.Wrap(err, k)
		}
		if a != nil {
			out[k] = a
		}
	}
	return out, nil
}

type bufferCodec struct{}

func (bufferCodec) New(doc *Document) *Buffer { return doc.CreateBuffer("") }

func (bufferCodec) fill(b *Buffer, attr BufferAttr, j *BufferJSON) error {
	switch attr {
	case BufferName:
		j.Name = ptr(b.name)
	case BufferURI:
		j.URI = ptr(b.uri)
	}
	return nil
}

func (c bufferCodec) ToJSON(b *Buffer) (BufferJSON, error) {
	return snapshot(b, bufferAttrs[:], c.fill)
}

func (bufferCodec) ApplyJSON(b *Buffer, j BufferJSON) error {
	if j.Name != nil {
		b.SetName(*j.Name)
	}
	if j.URI != nil {
		b.SetURI(*j.URI)
	}
	return nil
}

type accessorCodec struct{ regs *Registries }

func (accessorCodec) New(doc *Document) *Accessor { return doc.CreateAccessor("", nil) }

func (c accessorCodec) fill(a *Accessor, attr AccessorAttr, j *AccessorJSON) error {
	switch attr {
	case AccessorName:
		j.Name = ptr(a.name)
	case AccessorBuffer:
		id, err := ref(c.regs.Buffers, a.buffer)
		if err != nil {
			return err
		}
		j.Buffer = &id
	case AccessorComponentType:
		j.ComponentType = ptr(a.componentType)
	case AccessorType:
		j.Type = ptr(a.elementType)
	case AccessorNormalized:
		j.Normalized = ptr(a.normalized)
	case AccessorArray:
		j.Array = ptr(slices.Clone(a.array))
	case AccessorSparse:
		j.Sparse = ptr(a.sparse)
	}
	return nil
}

func (c accessorCodec) ToJSON(a *Accessor) (AccessorJSON, error) {
	return snapshot(a, accessorAttrs[:], c.fill)
}

func (c accessorCodec) ApplyJSON(a *Accessor, j AccessorJSON) error {
	if j.ComponentType != nil && !j.ComponentType.Valid() {
		return errors.Wrapf(ErrInvalidValue, "componentType %d", *j.ComponentType)
	}
	if j.Type != nil && !j.Type.Valid() {
		return errors.Wrapf(ErrInvalidValue, "type %q", *j.Type)
	}
	if j.Buffer != nil {
		b, err := resolve(c.regs.Buffers, *j.Buffer)
		if err != nil {
			return err
		}
		a.SetBuffer(b)
	}
	if j.Name != nil {
		a.SetName(*j.Name)
	}
	if j.ComponentType != nil {
		a.SetComponentType(*j.ComponentType)
	}
	if j.Type != nil {
		a.SetElementType(*j.Type)
	}
	if j.Normalized != nil {
		a.SetNormalized(*j.Normalized)
	}
	if j.Array != nil {
		a.SetArray(slices.Clone(*j.Array))
	}
	if j.Sparse != nil {
		a.SetSparse(*j.Sparse)
	}
	return nil
}

type textureCodec struct{}

func (textureCodec) New(doc *Document) *Texture { return doc.CreateTexture("") }

func (textureCodec) fill(t *Texture, attr TextureAttr, j *TextureJSON) error {
	switch attr {
	case TextureName:
		j.Name = ptr(t.name)
	case TextureImage:
		j.Image = ptr(slices.Clone(t.image))
	case TextureURI:
		j.URI = ptr(t.uri)
	case TextureMIMEType:
		j.MIMEType = ptr(t.mimeType)
	}
	return nil
}

func (c textureCodec) ToJSON(t *Texture) (TextureJSON, error) {
	return snapshot(t, textureAttrs[:], c.fill)
}

func (textureCodec) ApplyJSON(t *Texture, j TextureJSON) error {
	if j.Name != nil {
		t.SetName(*j.Name)
	}
	if j.Image != nil {
		t.SetImage(slices.Clone(*j.Image))
	}
	if j.URI != nil {
		t.SetURI(*j.URI)
	}
	if j.MIMEType != nil {
		t.SetMIMEType(*j.MIMEType)
	}
	return nil
}

type materialCodec struct{ regs *Registries }

func (materialCodec) New(doc *Document) *Material { return doc.CreateMaterial("") }

func (c materialCodec) fill(m *Material, attr MaterialAttr, j *MaterialJSON) error {
	texRef := func(t *Texture) (*ID, error) {
		id, err := ref(c.regs.Textures, t)
		return &id, err
	}
	var err error
	switch attr {
	case MaterialName:
		j.Name = ptr(m.name)
	case MaterialBaseColorFactor:
		j.BaseColorFactor = ptr(m.baseColorFactor)
	case MaterialBaseColorTexture:
		j.BaseColorTexture, err = texRef(m.baseColorTexture)
	case MaterialMetallicFactor:
		j.MetallicFactor = ptr(m.metallicFactor)
	case MaterialRoughnessFactor:
		j.RoughnessFactor = ptr(m.roughnessFactor)
	case MaterialMetallicRoughnessTexture:
		j.MetallicRoughnessTexture, err = texRef(m.metallicRoughnessTexture)
	case MaterialNormalTexture:
		j.NormalTexture, err = texRef(m.normalTexture)
	case MaterialNormalScale:
		j.NormalScale = ptr(m.normalScale)
	case MaterialOcclusionTexture:
		j.OcclusionTexture, err = texRef(m.occlusionTexture)
	case MaterialOcclusionStrength:
		j.OcclusionStrength = ptr(m.occlusionStrength)
	case MaterialEmissiveFactor:
		j.EmissiveFactor = ptr(m.emissiveFactor)
	case MaterialEmissiveTexture:
		j.EmissiveTexture, err = texRef(m.emissiveTexture)
	case MaterialAlphaMode:
		j.AlphaMode = ptr(m.alphaMode)
	case MaterialAlphaCutoff:
		j.AlphaCutoff = ptr(m.alphaCutoff)
	case MaterialDoubleSided:
		j.DoubleSided = ptr(m.doubleSided)
	}
	return err
}

func (c materialCodec) ToJSON(m *Material) (MaterialJSON, error) {
	return snapshot(m, materialAttrs[:], c.fill)
}

func (c materialCodec) ApplyJSON(m *Material, j MaterialJSON) error {
	if j.AlphaMode != nil && !j.AlphaMode.Valid() {
		return errors.Wrapf(ErrInvalidValue, "alphaMode %q", *j.AlphaMode)
	}
	slots := []struct {
		id  *ID
		set func(*Texture)
	}{
		{j.BaseColorTexture, m.SetBaseColorTexture},
		{j.MetallicRoughnessTexture, m.SetMetallicRoughnessTexture},
		{j.NormalTexture, m.SetNormalTexture},
		{j.OcclusionTexture, m.SetOcclusionTexture},
		{j.EmissiveTexture, m.SetEmissiveTexture},
	}
	textures := make([]*Texture, len(slots))
	for i, s := range slots {
		if s.id == nil {
			continue
		}
		t, err := resolve(c.regs.Textures, *s.id)
		if err != nil {
			return err
		}
		textures[i] = t
	}
	for i, s := range slots {
		if s.id != nil {
			s.set(textures[i])
		}
	}
	if j.Name != nil {
		m.SetName(*j.Name)
	}
	if j.BaseColorFactor != nil {
		m.SetBaseColorFactor(*j.BaseColorFactor)
	}
	if j.MetallicFactor != nil {
		m.SetMetallicFactor(*j.MetallicFactor)
	}
	if j.RoughnessFactor != nil {
		m.SetRoughnessFactor(*j.RoughnessFactor)
	}
	if j.NormalScale != nil {
		m.SetNormalScale(*j.NormalScale)
	}
	if j.OcclusionStrength != nil {
		m.SetOcclusionStrength(*j.OcclusionStrength)
	}
	if j.EmissiveFactor != nil {
		m.SetEmissiveFactor(*j.EmissiveFactor)
	}
	if j.AlphaMode != nil {
		m.SetAlphaMode(*j.AlphaMode)
	}
	if j.AlphaCutoff != nil {
		m.SetAlphaCutoff(*j.AlphaCutoff)
	}
	if j.DoubleSided != nil {
		m.SetDoubleSided(*j.DoubleSided)
	}
	return nil
}

type primitiveCodec struct{ regs *Registries }

func (primitiveCodec) New(doc *Document) *Primitive { return doc.CreatePrimitive() }

func (c primitiveCodec) fill(p *Primitive, attr PrimitiveAttr, j *PrimitiveJSON) error {
	switch attr {
	case PrimitiveMode:
		j.Mode = ptr(p.mode)
	case PrimitiveAttributes:
		m, err := refMap(c.regs.Accessors, p.attributes)
		if err != nil {
			return err
		}
		j.Attributes = &m
	case PrimitiveIndices:
		id, err := ref(c.regs.Accessors, p.indices)
		if err != nil {
			return err
		}
		j.Indices = &id
	case PrimitiveMaterial:
		id, err := ref(c.regs.Materials, p.material)
		if err != nil {
			return err
		}
		j.Material = &id
	case PrimitiveTargets:
		targets := make([]map[string]ID, 0, len(p.targets))
		for _, t := range p.targets {
			m, err := refMap(c.regs.Accessors, t)
			if err != nil {
				return err
			}
			targets = append(targets, m)
		}
		j.Targets = &targets
	}
	return nil
}

func (c primitiveCodec) ToJSON(p *Primitive) (PrimitiveJSON, error) {
	return snapshot(p, primitiveAttrs[:], c.fill)
}

func (c primitiveCodec) ApplyJSON(p *Primitive, j PrimitiveJSON) error {
	if j.Mode != nil && !j.Mode.Valid() {
		return errors.Wrapf(ErrInvalidValue, "mode %d", *j.Mode)
	}
	var (
		attrs    map[string]*Accessor
		indices  *Accessor
		material *Material
		targets  []Target
		err      error
	)
	if j.Attributes != nil {
		if attrs, err = resolveMap(c.regs.Accessors, *j.Attributes); err != nil {
			return err
		}
	}
	if j.Indices != nil {
		if indices, err = resolve(c.regs.Accessors, *j.Indices); err != nil {
			return err
		}
	}
	if j.Material != nil {
		if material, err = resolve(c.regs.Materials, *j.Material); err != nil {
			return err
		}
	}
	if j.Targets != nil {
		for _, t := range *j.Targets {
			m, err := resolveMap(c.regs.Accessors, t)
			if err != nil {
				return err
			}
			targets = append(targets, Target(m))
		}
	}
	if j.Mode != nil {
		p.SetMode(*j.Mode)
	}
	if j.Attributes != nil {
		p.setAttributes(attrs)
	}
	if j.Indices != nil {
		p.SetIndices(indices)
	}
	if j.Material != nil {
		p.SetMaterial(material)
	}
	if j.Targets != nil {
		p.SetTargets(targets)
	}
	return nil
}

type meshCodec struct{ regs *Registries }

func (meshCodec) New(doc *Document) *Mesh { return doc.CreateMesh("") }

func (c meshCodec) fill(m *Mesh, attr MeshAttr, j *MeshJSON) error {
	switch attr {
	case MeshName:
		j.Name = ptr(m.name)
	case MeshPrimitives:
		ids, err := refList(c.regs.Primitives, m.primitives)
		if err != nil {
			return err
		}
		j.Primitives = &ids
	case MeshWeights:
		j.Weights = ptr(slices.Clone(m.weights))
	}
	return nil
}

func (c meshCodec) ToJSON(m *Mesh) (MeshJSON, error) {
	return snapshot(m, meshAttrs[:], c.fill)
}

func (c meshCodec) ApplyJSON(m *Mesh, j MeshJSON) error {
	if j.Primitives != nil {
		prims, err := resolveList(c.regs.Primitives, *j.Primitives)
		if err != nil {
			return err
		}
		m.SetPrimitives(prims)
	}
	if j.Name != nil {
		m.SetName(*j.Name)
	}
	if j.Weights != nil {
		m.SetWeights(slices.Clone(*j.Weights))
	}
	return nil
}

type nodeCodec struct{ regs *Registries }

func (nodeCodec) New(doc *Document) *Node { return doc.CreateNode("") }

func (c nodeCodec) fill(n *Node, attr NodeAttr, j *NodeJSON) error {
	switch attr {
	case NodeName:
		j.Name = ptr(n.name)
	case NodeTranslation:
		j.Translation = ptr(n.translation)
	case NodeRotation:
		j.Rotation = ptr(n.rotation)
	case NodeScale:
		j.Scale = ptr(n.scale)
	case NodeMesh:
		id, err := ref(c.regs.Meshes, n.mesh)
		if err != nil {
			return err
		}
		j.Mesh = &id
	case NodeChildren:
		ids, err := refList(c.regs.Nodes, n.children)
		if err != nil {
			return err
		}
		j.Children = &ids
	case NodeExtensionsAttr:
		ext, err := c.extensionsJSON(n.extensions)
		if err != nil {
			return err
		}
		j.Extensions = &ext
	case NodeExtras:
		j.Extras = ptr(n.extras.Clone())
	}
	return nil
}

func (c nodeCodec) extensionsJSON(e NodeExtensions) (NodeExtensionsJSON, error) {
	out := NodeExtensionsJSON{SpawnPoint: e.SpawnPoint}
	if e.BehaviorGraph != nil {
		out.BehaviorGraph = append(json.RawMessage(nil), e.BehaviorGraph...)
	}
	if col := e.Collider; col != nil {
		mesh, err := ref(c.regs.Meshes, col.Mesh)
		if err != nil {
			return out, err
		}
		out.Collider = &ColliderJSON{Type: col.Type, Radius: col.Radius, Height: col.Height, Mesh: mesh}
		if col.Size != [3]float32{} {
			out.Collider.Size = ptr(col.Size)
		}
	}
	if out.SpawnPoint != nil {
		out.SpawnPoint = ptr(*out.SpawnPoint)
	}
	return out, nil
}

func (c nodeCodec) extensions(j NodeExtensionsJSON) (NodeExtensions, error) {
	out := NodeExtensions{SpawnPoint: j.SpawnPoint, BehaviorGraph: j.BehaviorGraph}
	if col := j.Collider; col != nil {
		if !col.Type.Valid() {
			return out, errors.Wrapf(ErrInvalidValue, "collider type %q", col.Type)
		}
		mesh, err := resolve(c.regs.Meshes, col.Mesh)
		if err != nil {
			return out, err
		}
		out.Collider = &Collider{Type: col.Type, Radius: col.Radius, Height: col.Height, Mesh: mesh}
		if col.Size != nil {
			out.Collider.Size = *col.Size
		}
	}
	return out, nil
}

func (c nodeCodec) ToJSON(n *Node) (NodeJSON, error) {
	return snapshot(n, nodeAttrs[:], c.fill)
}

func (c nodeCodec) ApplyJSON(n *Node, j NodeJSON) error {
	var (
		mesh     *Mesh
		children []*Node
		ext      NodeExtensions
		err      error
	)
	if j.Mesh != nil {
		if mesh, err = resolve(c.regs.Meshes, *j.Mesh); err != nil {
			return err
		}
	}
	if j.Children != nil {
		if children, err = resolveList(c.regs.Nodes, *j.Children); err != nil {
			return err
		}
		for _, ch := range children {
			if ch == n || ch.IsAncestorOf(n) {
				return errors.Wrap(ErrProtocol, "children would form a cycle")
			}
		}
	}
	if j.Extensions != nil {
		if ext, err = c.extensions(*j.Extensions); err != nil {
			return err
		}
	}
	if j.Name != nil {
		n.SetName(*j.Name)
	}
	if j.Translation != nil {
		n.SetTranslation(*j.Translation)
	}
	if j.Rotation != nil {
		n.SetRotation(*j.Rotation)
	}
	if j.Scale != nil {
		n.SetScale(*j.Scale)
	}
	if j.Mesh != nil {
		n.SetMesh(mesh)
	}
	if j.Children != nil {
		n.SetChildren(children)
	}
	if j.Extensions != nil {
		n.SetExtensions(ext)
	}
	if j.Extras != nil {
		n.SetExtras(*j.Extras)
	}
	return nil
}
