package gltf

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/scene"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R', 0, 0, 0, 1, 0, 0, 0, 1, 8, 6, 0, 0, 0}

func floats(doc *scene.Document, b *scene.Buffer, name string, et scene.ElementType, values ...float64) *scene.Accessor {
	a := doc.CreateAccessor(name, b)
	a.SetElementType(et)
	a.SetArray(values)
	return a
}

func indices(doc *scene.Document, b *scene.Buffer, values ...float64) *scene.Accessor {
	a := doc.CreateAccessor("indices", b)
	a.SetComponentType(scene.UnsignedShort)
	a.SetArray(values)
	return a
}

type quadScene struct {
	doc       *scene.Document
	root      *scene.Node
	child     *scene.Node
	material  *scene.Material
	primitive *scene.Primitive
}

func newQuadScene() quadScene {
	doc := scene.NewDocument()
	geo := doc.CreateBuffer("geometry")

	prim := doc.CreatePrimitive()
	prim.SetAttribute("POSITION", floats(doc, geo, "pos", scene.Vec3, 0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0))
	prim.SetAttribute("NORMAL", floats(doc, geo, "nrm", scene.Vec3, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1))
	prim.SetAttribute("TEXCOORD_0", floats(doc, geo, "uv", scene.Vec2, 0, 0, 1, 0, 1, 1, 0, 1))
	prim.SetIndices(indices(doc, geo, 0, 1, 2, 0, 2, 3))

	tex := doc.CreateTexture("albedo")
	tex.SetImage(bytes.Clone(pngHeader))
	tex.SetMIMEType("image/png")

	mat := doc.CreateMaterial("paint")
	mat.SetBaseColorFactor([4]float32{0.5, 0.5, 0.5, 1})
	mat.SetBaseColorTexture(tex)
	mat.SetAlphaMode(scene.AlphaMask)
	mat.SetAlphaCutoff(0.25)
	mat.SetDoubleSided(true)
	prim.SetMaterial(mat)

	mesh := doc.CreateMesh("quad")
	mesh.AddPrimitive(prim)

	root := doc.CreateNode("root")
	root.SetTranslation([3]float32{1, 2, 3})
	child := doc.CreateNode("child")
	child.SetMesh(mesh)
	child.SetRotation([4]float32{0, float32(math.Sqrt2 / 2), 0, float32(math.Sqrt2 / 2)})
	child.SetScale([3]float32{2, 2, 2})
	child.SetCollider(&scene.Collider{Type: scene.ColliderBox, Size: [3]float32{1, 2, 3}})
	child.SetSpawnPoint(&scene.SpawnPoint{Title: "start", Team: "red"})
	child.SetExtras(scene.Extras{"score": 3.5, "tag": "x"})
	root.AddChild(child)
	child.AddChild(doc.CreateNode("grandchild"))

	return quadScene{doc: doc, root: root, child: child, material: mat, primitive: prim}
}

func writeGLB(t *testing.T, doc *scene.Document) []byte {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, NewExporter(Options{}).Write(context.Background(), doc, &out))
	return out.Bytes()
}

func decodeRoot(t *testing.T, glb []byte) (Root, []byte) {
	t.Helper()
	jsonChunk, bin, err := ReadGLB(glb)
	require.NoError(t, err)
	var root Root
	require.NoError(t, json.Unmarshal(jsonChunk, &root))
	return root, bin
}

func nodeByName(doc *scene.Document, name string) *scene.Node {
	for _, n := range doc.Nodes() {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

func TestGLBByteLayout(t *testing.T) {
	doc := scene.NewDocument()
	prim := doc.CreatePrimitive()
	prim.SetAttribute("POSITION", floats(doc, nil, "pos", scene.Vec3, 0, 0, 0, 1, 0, 0, 0, 1, 0))
	prim.SetIndices(indices(doc, nil, 0, 1, 2))
	mesh := doc.CreateMesh("tri")
	mesh.AddPrimitive(prim)
	doc.CreateNode("n").SetMesh(mesh)

	glb := writeGLB(t, doc)
	le := binary.LittleEndian

	assert.Equal(t, uint32(0x46546C67), le.Uint32(glb[0:]))
	assert.Equal(t, uint32(2), le.Uint32(glb[4:]))
	assert.Equal(t, uint32(len(glb)), le.Uint32(glb[8:]))

	jsonLen := int(le.Uint32(glb[12:]))
	assert.Equal(t, uint32(0x4E4F534A), le.Uint32(glb[16:]))
	assert.Zero(t, jsonLen%4)
	jsonChunk := glb[20 : 20+jsonLen]
	trimmed := bytes.TrimRight(jsonChunk, " ")
	assert.Equal(t, byte('}'), trimmed[len(trimmed)-1])
	assert.True(t, json.Valid(jsonChunk), "space padding keeps the chunk valid JSON")

	binAt := 20 + jsonLen
	binLen := int(le.Uint32(glb[binAt:]))
	assert.Equal(t, uint32(0x004E4942), le.Uint32(glb[binAt+4:]))
	assert.Zero(t, binLen%4)
	assert.Equal(t, len(glb), binAt+8+binLen)

	// 36 bytes of positions, then 6 bytes of indices zero-padded to 8.
	assert.Equal(t, 44, binLen)
	assert.Equal(t, []byte{0, 0}, glb[len(glb)-2:])

	root, _ := decodeRoot(t, glb)
	require.Len(t, root.Accessors, 2)
	assert.Equal(t, []float64{0, 0, 0}, root.Accessors[0].Min)
	assert.Equal(t, []float64{1, 1, 0}, root.Accessors[0].Max)
	assert.Equal(t, ElementArrayBuffer, root.BufferViews[*root.Accessors[1].BufferView].Target)
}

func TestReadGLBRejectsGarbage(t *testing.T) {
	_, _, err := ReadGLB([]byte("not a glb at all"))
	assert.ErrorIs(t, err, ErrInvalid)

	var out bytes.Buffer
	require.NoError(t, WriteGLB(&out, []byte(`{"asset":{"version":"2.0"}}`), nil))
	truncated := out.Bytes()[:out.Len()-4]
	_, _, err = ReadGLB(truncated)
	assert.ErrorIs(t, err, ErrInvalid)
}

// Scenario C: a material shared by two primitives is written once.
func TestSharedMaterialExportedOnce(t *testing.T) {
	doc := scene.NewDocument()
	mat := doc.CreateMaterial("shared")
	mesh := doc.CreateMesh("pair")
	for i := 0; i < 2; i++ {
		p := doc.CreatePrimitive()
		p.SetAttribute("POSITION", floats(doc, nil, "pos", scene.Vec3, 0, 0, 0, 1, 0, 0, 0, 1, 0))
		p.SetMaterial(mat)
		mesh.AddPrimitive(p)
	}
	doc.CreateNode("a").SetMesh(mesh)
	doc.CreateNode("b").SetMesh(mesh)

	root, _ := decodeRoot(t, writeGLB(t, doc))
	require.Len(t, root.Materials, 1)
	require.Len(t, root.Meshes, 1, "shared mesh is written once too")
	for _, p := range root.Meshes[0].Primitives {
		require.NotNil(t, p.Material)
		assert.Equal(t, 0, *p.Material)
	}
	assert.Equal(t, 0, *root.Nodes[0].Mesh)
	assert.Equal(t, 0, *root.Nodes[1].Mesh)
}

func TestRoundTrip(t *testing.T) {
	src := newQuadScene()
	doc, err := ParseBytes(writeGLB(t, src.doc), ParseOptions{})
	require.NoError(t, err)

	roots := doc.Roots()
	require.Len(t, roots, 1)
	root := roots[0]
	assert.Equal(t, "root", root.Name())
	assert.Equal(t, [3]float32{1, 2, 3}, root.Translation())
	require.Len(t, root.Children(), 1)

	child := root.Children()[0]
	assert.Equal(t, "child", child.Name())
	sr, cr := src.child.Rotation(), child.Rotation()
	assert.InDeltaSlice(t, sr[:], cr[:], 1e-6)
	assert.Equal(t, [3]float32{2, 2, 2}, child.Scale())
	require.Len(t, child.Children(), 1)
	assert.Equal(t, "grandchild", child.Children()[0].Name())

	c := child.Collider()
	require.NotNil(t, c)
	assert.Equal(t, scene.ColliderBox, c.Type)
	assert.Equal(t, [3]float32{1, 2, 3}, c.Size)
	assert.Equal(t, &scene.SpawnPoint{Title: "start", Team: "red"}, child.Extensions().SpawnPoint)
	assert.Equal(t, scene.Extras{"score": 3.5, "tag": "x"}, child.Extras())

	require.NotNil(t, child.Mesh())
	prims := child.Mesh().Primitives()
	require.Len(t, prims, 1)
	p := prims[0]
	assert.Equal(t, []string{"NORMAL", "POSITION", "TEXCOORD_0"}, p.Semantics())
	for _, semantic := range p.Semantics() {
		assert.InDeltaSlice(t, src.primitive.Attribute(semantic).Array(), p.Attribute(semantic).Array(), 1e-6, semantic)
	}
	assert.Equal(t, []float64{0, 1, 2, 0, 2, 3}, p.Indices().Array())
	assert.Equal(t, scene.UnsignedShort, p.Indices().ComponentType())

	m := p.Material()
	require.NotNil(t, m)
	assert.Equal(t, "paint", m.Name())
	assert.Equal(t, [4]float32{0.5, 0.5, 0.5, 1}, m.BaseColorFactor())
	assert.Equal(t, scene.AlphaMask, m.AlphaMode())
	assert.Equal(t, float32(0.25), m.AlphaCutoff())
	assert.True(t, m.DoubleSided())
	require.NotNil(t, m.BaseColorTexture())
	assert.Equal(t, pngHeader, m.BaseColorTexture().Image())
	assert.Equal(t, "image/png", m.BaseColorTexture().MIMEType())
}

func TestInterleavesFloatAttributes(t *testing.T) {
	root, _ := decodeRoot(t, writeGLB(t, newQuadScene().doc))
	attrs := root.Meshes[0].Primitives[0].Attributes

	view := *root.Accessors[attrs["POSITION"]].BufferView
	for _, semantic := range []string{"NORMAL", "TEXCOORD_0"} {
		assert.Equal(t, view, *root.Accessors[attrs[semantic]].BufferView, semantic)
	}
	assert.Equal(t, 32, root.BufferViews[view].ByteStride)
	assert.Equal(t, 0, root.Accessors[attrs["NORMAL"]].ByteOffset)
	assert.Equal(t, 12, root.Accessors[attrs["POSITION"]].ByteOffset)
	assert.Equal(t, 24, root.Accessors[attrs["TEXCOORD_0"]].ByteOffset)
	assert.Equal(t, 4*32, root.BufferViews[view].ByteLength)
}

func TestMixedComponentTypesGetSeparateViews(t *testing.T) {
	doc := scene.NewDocument()
	prim := doc.CreatePrimitive()
	prim.SetAttribute("POSITION", floats(doc, nil, "pos", scene.Vec3, 0, 0, 0, 1, 0, 0, 0, 1, 0))
	uv := doc.CreateAccessor("uv", nil)
	uv.SetComponentType(scene.UnsignedByte)
	uv.SetElementType(scene.Vec2)
	uv.SetNormalized(true)
	uv.SetArray([]float64{0, 0, 255, 0, 0, 255})
	prim.SetAttribute("TEXCOORD_0", uv)
	mesh := doc.CreateMesh("m")
	mesh.AddPrimitive(prim)
	doc.CreateNode("n").SetMesh(mesh)

	glb := writeGLB(t, doc)
	root, _ := decodeRoot(t, glb)
	attrs := root.Meshes[0].Primitives[0].Attributes
	posView := *root.Accessors[attrs["POSITION"]].BufferView
	uvView := *root.Accessors[attrs["TEXCOORD_0"]].BufferView
	assert.NotEqual(t, posView, uvView)
	assert.Zero(t, root.BufferViews[posView].ByteStride)
	assert.Equal(t, 4, root.BufferViews[uvView].ByteStride, "2-byte elements are aligned to 4")

	parsed, err := ParseBytes(glb, ParseOptions{})
	require.NoError(t, err)
	got := parsed.Meshes()[0].Primitives()[0].Attribute("TEXCOORD_0")
	assert.True(t, got.Normalized())
	assert.Equal(t, []float64{0, 0, 255, 0, 0, 255}, got.Array())
	assert.Equal(t, []float32{1, 0}, got.NormalizedElement(1, nil))
}

func TestSparseAccessorRoundTrip(t *testing.T) {
	doc := scene.NewDocument()
	weights := floats(doc, nil, "weights", scene.Scalar, 0, 0, 5, 0, 7)
	weights.SetSparse(true)
	prim := doc.CreatePrimitive()
	prim.SetAttribute("POSITION", floats(doc, nil, "pos", scene.Vec3, 0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 1, 0, 0, 0, 1))
	prim.SetAttribute("_WEIGHT", weights)
	mesh := doc.CreateMesh("m")
	mesh.AddPrimitive(prim)
	doc.CreateNode("n").SetMesh(mesh)

	glb := writeGLB(t, doc)
	root, _ := decodeRoot(t, glb)
	acc := root.Accessors[root.Meshes[0].Primitives[0].Attributes["_WEIGHT"]]
	assert.Nil(t, acc.BufferView)
	require.NotNil(t, acc.Sparse)
	assert.Equal(t, 2, acc.Sparse.Count)
	assert.Equal(t, int(scene.UnsignedByte), acc.Sparse.Indices.ComponentType)

	parsed, err := ParseBytes(glb, ParseOptions{})
	require.NoError(t, err)
	got := parsed.Meshes()[0].Primitives()[0].Attribute("_WEIGHT")
	assert.True(t, got.Sparse())
	assert.Equal(t, []float64{0, 0, 5, 0, 7}, got.Array())
}

// dataURI packs little-endian words into a base64 buffer URI.
func dataURI(parts ...any) (string, int) {
	var buf bytes.Buffer
	for _, p := range parts {
		_ = binary.Write(&buf, binary.LittleEndian, p)
	}
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), buf.Len()
}

func TestParseSparseOverlayOnDenseBase(t *testing.T) {
	base := make([]float32, 12)
	for i := range base {
		base[i] = 1
	}
	uri, length := dataURI(base, []uint16{2, 0}, []float32{9, 8, 7, 6})
	doc := `{
		"asset": {"version": "2.0"},
		"buffers": [{"uri": "` + uri + `", "byteLength": ` + itoa(length) + `}],
		"bufferViews": [
			{"buffer": 0, "byteOffset": 0, "byteLength": 48},
			{"buffer": 0, "byteOffset": 48, "byteLength": 2},
			{"buffer": 0, "byteOffset": 52, "byteLength": 16}
		],
		"accessors": [{
			"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC4",
			"sparse": {"count": 1,
				"indices": {"bufferView": 1, "componentType": 5123},
				"values": {"bufferView": 2}}
		}],
		"meshes": [{"primitives": [{"attributes": {"_DATA": 0}}]}],
		"nodes": [{"mesh": 0}]
	}`
	parsed, err := ParseBytes([]byte(doc), ParseOptions{})
	require.NoError(t, err)
	got := parsed.Accessors()[0]
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1, 1, 9, 8, 7, 6}, got.Array())
}

func itoa(n int) string {
	out, _ := json.Marshal(n)
	return string(out)
}

func TestSkinJointsResolveAfterAllNodes(t *testing.T) {
	identity := []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	uri, length := dataURI(identity, identity)
	doc := `{
		"asset": {"version": "2.0"},
		"buffers": [{"uri": "` + uri + `", "byteLength": ` + itoa(length) + `}],
		"bufferViews": [{"buffer": 0, "byteLength": 128}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 2, "type": "MAT4"}],
		"nodes": [
			{"name": "body", "skin": 0, "children": [1]},
			{"name": "hip", "children": [2]},
			{"name": "knee"}
		],
		"skins": [{"joints": [1, 2], "skeleton": 1, "inverseBindMatrices": 0}]
	}`
	parsed, err := ParseBytes([]byte(doc), ParseOptions{})
	require.NoError(t, err)

	body := nodeByName(parsed, "body")
	require.NotNil(t, body.Skin())
	skin := body.Skin()
	require.Len(t, skin.Joints(), 2)
	assert.Equal(t, "hip", skin.Joints()[0].Name())
	assert.Equal(t, "knee", skin.Joints()[1].Name())
	assert.Equal(t, "hip", skin.Skeleton().Name())
	assert.Equal(t, 32, len(skin.InverseBindMatrices().Array()))

	again, err := ParseBytes(writeGLB(t, parsed), ParseOptions{})
	require.NoError(t, err)
	skin = nodeByName(again, "body").Skin()
	require.NotNil(t, skin)
	assert.Equal(t, "knee", skin.Joints()[1].Name())
	assert.Equal(t, identity[5], float32(skin.InverseBindMatrices().Array()[5]))
}

// withZeros wraps one accessor in a document with an 8-byte zero buffer, view
// 0 over all of it, and any extra views.
func withZeros(accessor, extraViews string) string {
	return `{"asset": {"version": "2.0"},
		"buffers": [{"uri": "data:application/octet-stream;base64,AAAAAAAAAAA=", "byteLength": 8}],
		"bufferViews": [{"buffer": 0, "byteLength": 8}` + extraViews + `],
		"accessors": [` + accessor + `],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}]}`
}

// sparseAccessor is a two-element scalar accessor whose sparse entries live in
// view 0.
func sparseAccessor(count, indicesOffset, valuesOffset int) string {
	return fmt.Sprintf(`{"componentType": 5126, "count": 2, "type": "SCALAR", "sparse": {"count": %d,
		"indices": {"bufferView": 0, "byteOffset": %d, "componentType": 5121},
		"values": {"bufferView": 0, "byteOffset": %d}}}`, count, indicesOffset, valuesOffset)
}

func TestMissingReferencesAreFatal(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want error
	}{
		"view": {
			doc: `{"asset": {"version": "2.0"},
				"accessors": [{"bufferView": 4, "componentType": 5126, "count": 1, "type": "SCALAR"}],
				"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}]}`,
			want: ErrMissingView,
		},
		"accessor": {
			doc:  `{"asset": {"version": "2.0"}, "meshes": [{"primitives": [{"attributes": {"POSITION": 3}}]}]}`,
			want: ErrMissingAccessor,
		},
		"view past buffer": {
			doc: `{"asset": {"version": "2.0"},
				"buffers": [{"uri": "data:application/octet-stream;base64,AAAA", "byteLength": 3}],
				"bufferViews": [{"buffer": 0, "byteLength": 64}],
				"accessors": [{"bufferView": 0, "componentType": 5126, "count": 1, "type": "SCALAR"}],
				"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}]}`,
			want: ErrMissingView,
		},
		"child": {
			doc:  `{"asset": {"version": "2.0"}, "nodes": [{"children": [7]}]}`,
			want: ErrMissingReference,
		},
		"second parent": {
			doc:  `{"asset": {"version": "2.0"}, "nodes": [{"children": [2]}, {"children": [2]}, {}]}`,
			want: ErrInvalid,
		},
		"version": {
			doc:  `{"asset": {"version": "1.0"}}`,
			want: ErrInvalid,
		},
		"duplicate child": {
			doc:  `{"asset": {"version": "2.0"}, "nodes": [{"children": [1, 1]}, {}]}`,
			want: ErrInvalid,
		},
		"view offset overflow": {
			doc:  withZeros(`{"bufferView": 1, "componentType": 5126, "count": 1, "type": "SCALAR"}`, `, {"buffer": 0, "byteOffset": 9223372036854775807, "byteLength": 8}`),
			want: ErrMissingView,
		},
		"negative accessor offset": {
			doc:  withZeros(`{"bufferView": 0, "byteOffset": -4, "componentType": 5126, "count": 1, "type": "SCALAR"}`, ""),
			want: ErrInvalid,
		},
		"negative stride": {
			doc:  withZeros(`{"bufferView": 1, "componentType": 5126, "count": 2, "type": "SCALAR"}`, `, {"buffer": 0, "byteLength": 8, "byteStride": -4}`),
			want: ErrInvalid,
		},
		"count past view": {
			doc:  withZeros(`{"bufferView": 0, "componentType": 5126, "count": 100, "type": "SCALAR"}`, ""),
			want: ErrMissingView,
		},
		"huge count without view": {
			doc:  withZeros(`{"componentType": 5126, "count": 1152921504606846976, "type": "VEC3"}`, ""),
			want: ErrInvalid,
		},
		"negative sparse indices offset": {
			doc:  withZeros(sparseAccessor(1, -4, 0), ""),
			want: ErrInvalid,
		},
		"negative sparse values offset": {
			doc:  withZeros(sparseAccessor(1, 0, -4), ""),
			want: ErrInvalid,
		},
		"negative sparse count": {
			doc:  withZeros(sparseAccessor(-1, 0, 0), ""),
			want: ErrInvalid,
		},
		"sparse count over accessor count": {
			doc:  withZeros(sparseAccessor(3, 0, 0), ""),
			want: ErrInvalid,
		},
		"sparse index out of range": {
			doc: `{"asset": {"version": "2.0"},
				"buffers": [{"uri": "data:application/octet-stream;base64,BQAAAAAAAAA=", "byteLength": 8}],
				"bufferViews": [{"buffer": 0, "byteLength": 8}],
				"accessors": [` + sparseAccessor(1, 0, 0) + `],
				"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}]}`,
			want: ErrInvalid,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc, err := ParseBytes([]byte(tc.doc), ParseOptions{})
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, doc)
		})
	}
}

func TestUnsupportedExportsWriteNothing(t *testing.T) {
	cases := map[string]func(q quadScene){
		"alpha mode": func(q quadScene) { q.material.SetAlphaMode("GLOW") },
		"primitive mode": func(q quadScene) {
			q.primitive.SetMode(scene.Mode(9))
		},
		"normal texture on lines": func(q quadScene) {
			q.material.SetNormalTexture(q.doc.CreateTexture("bumps"))
			q.primitive.SetMode(scene.Lines)
		},
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			q := newQuadScene()
			breakIt(q)
			var out bytes.Buffer
			err := NewExporter(Options{}).Write(context.Background(), q.doc, &out)
			assert.ErrorIs(t, err, ErrUnsupported)
			assert.Zero(t, out.Len())
		})
	}
}

func TestOutOfRangeComponentsWriteNothing(t *testing.T) {
	cases := map[string]struct {
		ct     scene.ComponentType
		values []float64
	}{
		"unsigned byte over 255":   {scene.UnsignedByte, []float64{0, 0, 300, 0, 0, 0, 0, 0}},
		"negative unsigned short":  {scene.UnsignedShort, []float64{0, -1, 0, 0, 0, 0, 0, 0}},
		"byte under -128":          {scene.Byte, []float64{0, 0, 0, -129, 0, 0, 0, 0}},
		"unsigned int over 2^32-1": {scene.UnsignedInt, []float64{0, 0, 1 << 32, 0, 0, 0, 0, 0}},
		"nan as short":             {scene.Short, []float64{math.NaN(), 0, 0, 0, 0, 0, 0, 0}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			q := newQuadScene()
			uv := q.doc.CreateAccessor("uv1", nil)
			uv.SetElementType(scene.Vec2)
			uv.SetComponentType(tc.ct)
			uv.SetArray(tc.values)
			q.primitive.SetAttribute("TEXCOORD_1", uv)
			var out bytes.Buffer
			err := NewExporter(Options{}).Write(context.Background(), q.doc, &out)
			assert.ErrorIs(t, err, ErrUnsupported)
			assert.Zero(t, out.Len())
		})
	}
}

func TestAlphaCutoffOnlyInMaskMode(t *testing.T) {
	for _, mode := range []scene.AlphaMode{scene.AlphaOpaque, scene.AlphaBlend, scene.AlphaMask} {
		t.Run(string(mode), func(t *testing.T) {
			q := newQuadScene()
			q.material.SetAlphaMode(mode)
			q.material.SetAlphaCutoff(0.25)

			root, _ := decodeRoot(t, writeGLB(t, q.doc))
			require.Len(t, root.Materials, 1)
			if mode == scene.AlphaMask {
				require.NotNil(t, root.Materials[0].AlphaCutoff)
				assert.Equal(t, float32(0.25), *root.Materials[0].AlphaCutoff)
			} else {
				assert.Nil(t, root.Materials[0].AlphaCutoff)
			}
		})
	}
}

func TestIdenticalImagesShareOneEntry(t *testing.T) {
	doc := scene.NewDocument()
	mesh := doc.CreateMesh("m")
	for _, name := range []string{"a", "b"} {
		tex := doc.CreateTexture(name)
		tex.SetImage(bytes.Clone(pngHeader))
		mat := doc.CreateMaterial(name)
		mat.SetBaseColorTexture(tex)
		p := doc.CreatePrimitive()
		p.SetAttribute("POSITION", floats(doc, nil, "pos", scene.Vec3, 0, 0, 0, 1, 0, 0, 0, 1, 0))
		p.SetMaterial(mat)
		mesh.AddPrimitive(p)
	}
	doc.CreateNode("n").SetMesh(mesh)

	root, _ := decodeRoot(t, writeGLB(t, doc))
	require.Len(t, root.Textures, 2)
	require.Len(t, root.Images, 1)
	assert.Equal(t, "image/png", root.Images[0].MimeType, "mime is sniffed when unset")
	assert.Equal(t, 0, *root.Textures[0].Source)
	assert.Equal(t, 0, *root.Textures[1].Source)
}

func TestJSONExportKeepsBufferGroups(t *testing.T) {
	doc := scene.NewDocument()
	verts, idx := doc.CreateBuffer("verts"), doc.CreateBuffer("idx")
	prim := doc.CreatePrimitive()
	prim.SetAttribute("POSITION", floats(doc, verts, "pos", scene.Vec3, 0, 0, 0, 1, 0, 0, 0, 1, 0))
	prim.SetIndices(indices(doc, idx, 0, 1, 2))
	mesh := doc.CreateMesh("m")
	mesh.AddPrimitive(prim)
	doc.CreateNode("n").SetMesh(mesh)

	out, err := NewExporter(Options{Generator: "test"}).JSON(context.Background(), doc)
	require.NoError(t, err)
	var root Root
	require.NoError(t, json.Unmarshal(out, &root))
	assert.Equal(t, "test", root.Asset.Generator)
	require.Len(t, root.Buffers, 2)
	assert.Equal(t, "verts", root.Buffers[0].Name)
	assert.Equal(t, "idx", root.Buffers[1].Name)
	for _, b := range root.Buffers {
		assert.True(t, strings.HasPrefix(b.URI, "data:application/octet-stream;base64,"))
	}

	parsed, err := ParseBytes(out, ParseOptions{})
	require.NoError(t, err)
	p := parsed.Meshes()[0].Primitives()[0]
	assert.Equal(t, "verts", p.Attribute("POSITION").Buffer().Name())
	assert.Equal(t, "idx", p.Indices().Buffer().Name())
	assert.Equal(t, []float64{0, 1, 2}, p.Indices().Array())
}

func TestExternalImagesNeedResolver(t *testing.T) {
	doc := `{"asset": {"version": "2.0"},
		"images": [{"uri": "wood.png"}],
		"textures": [{"source": 0}]}`

	parsed, err := ParseBytes([]byte(doc), ParseOptions{})
	require.NoError(t, err)
	tex := parsed.Textures()[0]
	assert.Equal(t, "wood.png", tex.URI())
	assert.Empty(t, tex.Image())

	var asked string
	parsed, err = ParseBytes([]byte(doc), ParseOptions{Resolve: func(uri string) ([]byte, error) {
		asked = uri
		return pngHeader, nil
	}})
	require.NoError(t, err)
	assert.Equal(t, "wood.png", asked)
	assert.Equal(t, pngHeader, parsed.Textures()[0].Image())
}

func TestExportHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := NewExporter(Options{}).Write(ctx, newQuadScene().doc, &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}
