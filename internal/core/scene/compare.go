package scene

import (
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/wI2L/jsondiff"
)

// Dump renders every registered entity as kind -> id -> snapshot.
func (r *Registries) Dump() (map[string]map[ID]any, error) {
	out := make(map[string]map[ID]any, len(Kinds))
	var err error
	add := func(kind Kind, id ID, j any, e error) {
		if err == nil && e != nil {
			err = errors.Wrapf(e, "%s %s", kind, id)
		}
		if out[kind.String()] == nil {
			out[kind.String()] = make(map[ID]any)
		}
		out[kind.String()][id] = j
	}
	r.Buffers.Each(func(id ID, b *Buffer) { j, e := r.Buffers.ToJSON(b); add(KindBuffer, id, j, e) })
	r.Accessors.Each(func(id ID, a *Accessor) { j, e := r.Accessors.ToJSON(a); add(KindAccessor, id, j, e) })
	r.Textures.Each(func(id ID, t *Texture) { j, e := r.Textures.ToJSON(t); add(KindTexture, id, j, e) })
	r.Materials.Each(func(id ID, m *Material) { j, e := r.Materials.ToJSON(m); add(KindMaterial, id, j, e) })
	r.Primitives.Each(func(id ID, p *Primitive) { j, e := r.Primitives.ToJSON(p); add(KindPrimitive, id, j, e) })
	r.Meshes.Each(func(id ID, m *Mesh) { j, e := r.Meshes.ToJSON(m); add(KindMesh, id, j, e) })
	r.Nodes.Each(func(id ID, n *Node) { j, e := r.Nodes.ToJSON(n); add(KindNode, id, j, e) })
	return out, err
}

// Compare reports how b diverges from a as a JSON patch over their dumps. An
// empty patch means both hold the same entities with the same ids and values.
func Compare(a, b *Registries) (jsondiff.Patch, error) {
	da, err := a.Dump()
	if err != nil {
		return nil, err
	}
	db, err := b.Dump()
	if err != nil {
		return nil, err
	}
	ja, err := json.Marshal(da)
	if err != nil {
		return nil, errors.Wrap(err, "marshal source")
	}
	jb, err := json.Marshal(db)
	if err != nil {
		return nil, errors.Wrap(err, "marshal target")
	}
	return jsondiff.CompareJSON(ja, jb)
}

// Schema is the JSON schema of kind's snapshot and change payload.
func Schema(kind Kind) *jsonschema.Schema {
	switch kind {
	case KindBuffer:
		return jsonschema.Reflect(&BufferJSON{})
	case KindAccessor:
		return jsonschema.Reflect(&AccessorJSON{})
	case KindTexture:
		return jsonschema.Reflect(&TextureJSON{})
	case KindMaterial:
		return jsonschema.Reflect(&MaterialJSON{})
	case KindPrimitive:
		return jsonschema.Reflect(&PrimitiveJSON{})
	case KindMesh:
		return jsonschema.Reflect(&MeshJSON{})
	case KindNode:
		return jsonschema.Reflect(&NodeJSON{})
	default:
		return nil
	}
}
