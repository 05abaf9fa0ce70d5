package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAdoptsWithoutMutating(t *testing.T) {
	doc := NewDocument()
	r := NewRegistries(doc, false)
	n := doc.CreateNode("imported")
	n.SetTranslation([3]float32{4, 5, 6})

	id := r.Nodes.Process(n, "given")
	assert.Equal(t, ID("given"), id)
	assert.Equal(t, id, r.Nodes.Process(n, "other"))
	assert.Equal(t, [3]float32{4, 5, 6}, n.Translation())

	assert.Equal(t, []*Node{n}, r.Nodes.ProcessChanges())
	assert.Empty(t, r.Nodes.ProcessChanges())
}

func TestProcessChangesDiscoversListedEntities(t *testing.T) {
	doc := NewDocument()
	r := NewRegistries(doc, false)
	a := doc.CreateAccessor("a", nil)

	fresh := r.Accessors.ProcessChanges()
	require.Equal(t, []*Accessor{a}, fresh)
	id, ok := r.Accessors.GetID(a)
	require.True(t, ok)
	assert.NotEmpty(t, id)

	_, ok = r.Accessors.GetID(doc.CreateAccessor("b", nil))
	assert.False(t, ok)
}

func TestIDsAreNeverReused(t *testing.T) {
	r := NewRegistries(NewDocument(), false)
	seen := map[ID]bool{}
	for i := 0; i < 100; i++ {
		id, b, err := r.Buffers.Create(nil, "")
		require.NoError(t, err)
		require.False(t, seen[id])
		seen[id] = true
		b.Dispose()
		r.Buffers.Remove(id)
	}
}

func TestToJSONAndApplyJSON(t *testing.T) {
	doc := NewDocument()
	r := NewRegistries(doc, false)
	texID, tex, err := r.Textures.Create(&TextureJSON{Name: ptr("t")}, "")
	require.NoError(t, err)
	_, mat, err := r.Materials.Create(&MaterialJSON{
		Name:             ptr("m"),
		BaseColorTexture: &texID,
		AlphaMode:        ptr(AlphaBlend),
	}, "")
	require.NoError(t, err)

	j, err := r.Materials.ToJSON(mat)
	require.NoError(t, err)
	assert.Equal(t, "m", *j.Name)
	assert.Equal(t, texID, *j.BaseColorTexture)
	assert.Equal(t, "", string(*j.NormalTexture))
	assert.Equal(t, AlphaBlend, *j.AlphaMode)
	assert.Equal(t, float32(1), *j.MetallicFactor)

	none := ID("")
	require.NoError(t, r.Materials.ApplyJSON(mat, MaterialJSON{BaseColorTexture: &none}))
	assert.Nil(t, mat.BaseColorTexture())
	assert.Equal(t, "m", mat.Name())
	assert.False(t, tex.IsDisposed())

	bad := AlphaMode("GLOW")
	assert.ErrorIs(t, r.Materials.ApplyJSON(mat, MaterialJSON{AlphaMode: &bad}), ErrInvalidValue)
}

func TestAccessorHelpers(t *testing.T) {
	doc := NewDocument()
	a := doc.CreateAccessor("uv", nil)
	a.SetComponentType(UnsignedByte)
	a.SetElementType(Vec2)
	a.SetNormalized(true)
	a.SetArray([]float64{0, 255, 51, 102})

	assert.Equal(t, 2, a.Count())
	assert.Equal(t, []float64{51, 102}, a.Element(1, nil))
	assert.InDeltaSlice(t, []float32{0, 1}, a.NormalizedElement(0, nil), 1e-6)
	assert.InDeltaSlice(t, []float32{0.2, 0.4}, a.NormalizedElement(1, nil), 1e-6)

	lo, hi := a.MinMax()
	assert.Equal(t, []float64{0, 102}, lo)
	assert.Equal(t, []float64{51, 255}, hi)
}

func TestListFieldsRejectEmptyAndRepeatedIDs(t *testing.T) {
	doc := NewDocument()
	r := NewRegistries(doc, false)
	cid, _, err := r.Nodes.Create(&NodeJSON{Name: ptr("child")}, "")
	require.NoError(t, err)
	_, parent, err := r.Nodes.Create(nil, "")
	require.NoError(t, err)

	err = r.Nodes.ApplyJSON(parent, NodeJSON{Children: &[]ID{cid, cid}})
	assert.ErrorIs(t, err, ErrInvalidValue)
	err = r.Nodes.ApplyJSON(parent, NodeJSON{Children: &[]ID{""}})
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Empty(t, parent.Children())

	require.NoError(t, r.Nodes.ApplyJSON(parent, NodeJSON{Children: &[]ID{cid}}))
	assert.Len(t, parent.Children(), 1)
}
