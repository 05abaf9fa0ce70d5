package scene

// AlphaMode is the glTF material alpha mode.
type AlphaMode string

const (
	AlphaOpaque AlphaMode = "OPAQUE"
	AlphaMask   AlphaMode = "MASK"
	AlphaBlend  AlphaMode = "BLEND"
)

func (m AlphaMode) Valid() bool {
	return m == AlphaOpaque || m == AlphaMask || m == AlphaBlend
}

// MaterialAttr names a Material field in change events.
type MaterialAttr uint8

const (
	MaterialName MaterialAttr = iota
	MaterialBaseColorFactor
	MaterialBaseColorTexture
	MaterialMetallicFactor
	MaterialRoughnessFactor
	MaterialMetallicRoughnessTexture
	MaterialNormalTexture
	MaterialNormalScale
	MaterialOcclusionTexture
	MaterialOcclusionStrength
	MaterialEmissiveFactor
	MaterialEmissiveTexture
	MaterialAlphaMode
	MaterialAlphaCutoff
	MaterialDoubleSided
)

var materialAttrs = [...]MaterialAttr{
	MaterialName, MaterialBaseColorFactor, MaterialBaseColorTexture,
	MaterialMetallicFactor, MaterialRoughnessFactor, MaterialMetallicRoughnessTexture,
	MaterialNormalTexture, MaterialNormalScale, MaterialOcclusionTexture,
	MaterialOcclusionStrength, MaterialEmissiveFactor, MaterialEmissiveTexture,
	MaterialAlphaMode, MaterialAlphaCutoff, MaterialDoubleSided,
}

func (a MaterialAttr) String() string {
	switch a {
	case MaterialName:
		return "name"
	case MaterialBaseColorFactor:
		return "baseColorFactor"
	case MaterialBaseColorTexture:
		return "baseColorTexture"
	case MaterialMetallicFactor:
		return "metallicFactor"
	case MaterialRoughnessFactor:
		return "roughnessFactor"
	case MaterialMetallicRoughnessTexture:
		return "metallicRoughnessTexture"
	case MaterialNormalTexture:
		return "normalTexture"
	case MaterialNormalScale:
		return "normalScale"
	case MaterialOcclusionTexture:
		return "occlusionTexture"
	case MaterialOcclusionStrength:
		return "occlusionStrength"
	case MaterialEmissiveFactor:
		return "emissiveFactor"
	case MaterialEmissiveTexture:
		return "emissiveTexture"
	case MaterialAlphaMode:
		return "alphaMode"
	case MaterialAlphaCutoff:
		return "alphaCutoff"
	case MaterialDoubleSided:
		return "doubleSided"
	default:
		return "unknown"
	}
}

// Material holds metallic-roughness PBR parameters and texture slots.
type Material struct {
	entity[MaterialAttr]
	name                     string
	baseColorFactor          [4]float32
	baseColorTexture         *Texture
	metallicFactor           float32
	roughnessFactor          float32
	metallicRoughnessTexture *Texture
	normalTexture            *Texture
	normalScale              float32
	occlusionTexture         *Texture
	occlusionStrength        float32
	emissiveFactor           [3]float32
	emissiveTexture          *Texture
	alphaMode                AlphaMode
	alphaCutoff              float32
	doubleSided              bool
}

func newMaterial(name string) *Material {
	return &Material{
		name:              name,
		baseColorFactor:   [4]float32{1, 1, 1, 1},
		metallicFactor:    1,
		roughnessFactor:   1,
		normalScale:       1,
		occlusionStrength: 1,
		alphaMode:         AlphaOpaque,
		alphaCutoff:       0.5,
	}
}

// MaterialJSON is the snapshot and partial-update shape of a Material.
type MaterialJSON struct {
	Name                     *string     `json:"name,omitempty"`
	BaseColorFactor          *[4]float32 `json:"baseColorFactor,omitempty"`
	BaseColorTexture         *ID         `json:"baseColorTexture,omitempty"`
	MetallicFactor           *float32    `json:"metallicFactor,omitempty"`
	RoughnessFactor          *float32    `json:"roughnessFactor,omitempty"`
	MetallicRoughnessTexture *ID         `json:"metallicRoughnessTexture,omitempty"`
	NormalTexture            *ID         `json:"normalTexture,omitempty"`
	NormalScale              *float32    `json:"normalScale,omitempty"`
	OcclusionTexture         *ID         `json:"occlusionTexture,omitempty"`
	OcclusionStrength        *float32    `json:"occlusionStrength,omitempty"`
	EmissiveFactor           *[3]float32 `json:"emissiveFactor,omitempty"`
	EmissiveTexture          *ID         `json:"emissiveTexture,omitempty"`
	AlphaMode                *AlphaMode  `json:"alphaMode,omitempty"`
	AlphaCutoff              *float32    `json:"alphaCutoff,omitempty"`
	DoubleSided              *bool       `json:"doubleSided,omitempty"`
}

func (m *Material) Kind() Kind { return KindMaterial }

func (m *Material) Name() string                       { return m.name }
func (m *Material) BaseColorFactor() [4]float32        { return m.baseColorFactor }
func (m *Material) BaseColorTexture() *Texture         { return m.baseColorTexture }
func (m *Material) MetallicFactor() float32            { return m.metallicFactor }
func (m *Material) RoughnessFactor() float32           { return m.roughnessFactor }
func (m *Material) MetallicRoughnessTexture() *Texture { return m.metallicRoughnessTexture }
func (m *Material) NormalTexture() *Texture            { return m.normalTexture }
func (m *Material) NormalScale() float32               { return m.normalScale }
func (m *Material) OcclusionTexture() *Texture         { return m.occlusionTexture }
func (m *Material) OcclusionStrength() float32         { return m.occlusionStrength }
func (m *Material) EmissiveFactor() [3]float32         { return m.emissiveFactor }
func (m *Material) EmissiveTexture() *Texture          { return m.emissiveTexture }
func (m *Material) AlphaMode() AlphaMode               { return m.alphaMode }
func (m *Material) AlphaCutoff() float32               { return m.alphaCutoff }
func (m *Material) DoubleSided() bool                  { return m.doubleSided }

// Textures lists the occupied texture slots in a fixed slot order.
func (m *Material) Textures() []*Texture {
	var out []*Texture
	for _, t := range []*Texture{m.baseColorTexture, m.metallicRoughnessTexture, m.normalTexture, m.occlusionTexture, m.emissiveTexture} {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (m *Material) SetName(name string) {
	if m.name != name {
		m.name = name
		m.changed(MaterialName)
	}
}

func (m *Material) SetBaseColorFactor(v [4]float32) {
	if m.baseColorFactor != v {
		m.baseColorFactor = v
		m.changed(MaterialBaseColorFactor)
	}
}

func (m *Material) SetMetallicFactor(v float32) {
	if m.metallicFactor != v {
		m.metallicFactor = v
		m.changed(MaterialMetallicFactor)
	}
}

func (m *Material) SetRoughnessFactor(v float32) {
	if m.roughnessFactor != v {
		m.roughnessFactor = v
		m.changed(MaterialRoughnessFactor)
	}
}

func (m *Material) SetNormalScale(v float32) {
	if m.normalScale != v {
		m.normalScale = v
		m.changed(MaterialNormalScale)
	}
}

func (m *Material) SetOcclusionStrength(v float32) {
	if m.occlusionStrength != v {
		m.occlusionStrength = v
		m.changed(MaterialOcclusionStrength)
	}
}

func (m *Material) SetEmissiveFactor(v [3]float32) {
	if m.emissiveFactor != v {
		m.emissiveFactor = v
		m.changed(MaterialEmissiveFactor)
	}
}

func (m *Material) SetAlphaMode(v AlphaMode) {
	if m.alphaMode != v {
		m.alphaMode = v
		m.changed(MaterialAlphaMode)
	}
}

func (m *Material) SetAlphaCutoff(v float32) {
	if m.alphaCutoff != v {
		m.alphaCutoff = v
		m.changed(MaterialAlphaCutoff)
	}
}

func (m *Material) SetDoubleSided(v bool) {
	if m.doubleSided != v {
		m.doubleSided = v
		m.changed(MaterialDoubleSided)
	}
}

func (m *Material) SetBaseColorTexture(t *Texture) {
	m.setTexture(&m.baseColorTexture, t, MaterialBaseColorTexture)
}

func (m *Material) SetMetallicRoughnessTexture(t *Texture) {
	m.setTexture(&m.metallicRoughnessTexture, t, MaterialMetallicRoughnessTexture)
}

func (m *Material) SetNormalTexture(t *Texture) {
	m.setTexture(&m.normalTexture, t, MaterialNormalTexture)
}

func (m *Material) SetOcclusionTexture(t *Texture) {
	m.setTexture(&m.occlusionTexture, t, MaterialOcclusionTexture)
}

func (m *Material) SetEmissiveTexture(t *Texture) {
	m.setTexture(&m.emissiveTexture, t, MaterialEmissiveTexture)
}

func (m *Material) setTexture(slot **Texture, t *Texture, attr MaterialAttr) {
	if t != nil {
		m.mustShare(t.doc)
	}
	if *slot != t {
		*slot = t
		m.changed(attr)
	}
}

func (m *Material) detachTexture(t *Texture) {
	slots := []struct {
		slot **Texture
		attr MaterialAttr
	}{
		{&m.baseColorTexture, MaterialBaseColorTexture},
		{&m.metallicRoughnessTexture, MaterialMetallicRoughnessTexture},
		{&m.normalTexture, MaterialNormalTexture},
		{&m.occlusionTexture, MaterialOcclusionTexture},
		{&m.emissiveTexture, MaterialEmissiveTexture},
	}
	for _, s := range slots {
		if *s.slot == t {
			m.setTexture(s.slot, nil, s.attr)
		}
	}
}

// Dispose removes the material and clears it from every primitive.
func (m *Material) Dispose() {
	if !m.beginDispose() {
		return
	}
	for _, p := range m.doc.primitives {
		if p.material == m {
			p.SetMaterial(nil)
		}
	}
	m.doc.materials = remove(m.doc.materials, m)
	m.endDispose()
}
