package gltf

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math"
	"net/url"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// ParseOptions tunes Parse.
type ParseOptions struct {
	// Resolve loads external URIs. Without it, external buffers are an error
	// and external images keep only their URI.
	Resolve func(uri string) ([]byte, error)
	Log     log.Log
}

// Parse reads a GLB blob or a glTF JSON document into a new scene document.
// On error no document is returned.
func Parse(r io.Reader, opts ParseOptions) (*scene.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "gltf: read")
	}
	return ParseBytes(data, opts)
}

func ParseBytes(data []byte, opts ParseOptions) (*scene.Document, error) {
	jsonChunk, bin := data, []byte(nil)
	if IsGLB(data) {
		var err error
		if jsonChunk, bin, err = ReadGLB(data); err != nil {
			return nil, err
		}
	}
	var root Root
	if err := json.Unmarshal(jsonChunk, &root); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "decode json: %v", err)
	}
	if !strings.HasPrefix(root.Asset.Version, "2.") {
		return nil, errors.Wrapf(ErrInvalid, "asset version %q", root.Asset.Version)
	}

	logger := opts.Log
	if logger == nil {
		logger = log.NewNop()
	}
	p := &parser{
		root:        &root,
		bin:         bin,
		opts:        opts,
		log:         logger.With(log.Component("gltf.parser")),
		doc:         scene.NewDocument(),
		bufferBytes: make(map[int][]byte),
		views:       make(map[int][]byte),
		accessors:   make(map[int]*scene.Accessor),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

type parser struct {
	root *Root
	bin  []byte
	opts ParseOptions
	log  log.Log
	doc  *scene.Document

	buffers     []*scene.Buffer
	bufferBytes map[int][]byte
	views       map[int][]byte
	accessors   map[int]*scene.Accessor
	textures    []*scene.Texture
	materials   []*scene.Material
	meshes      []*scene.Mesh
	nodes       []*scene.Node
}

func (p *parser) parse() error {
	for _, b := range p.root.Buffers {
		buf := p.doc.CreateBuffer(b.Name)
		if b.URI != "" && !isDataURI(b.URI) {
			buf.SetURI(b.URI)
		}
		p.buffers = append(p.buffers, buf)
	}
	for i := range p.root.Textures {
		if err := p.texture(i); err != nil {
			return err
		}
	}
	for i := range p.root.Materials {
		if err := p.material(i); err != nil {
			return err
		}
	}
	for i := range p.root.Meshes {
		if err := p.mesh(i); err != nil {
			return err
		}
	}
	// Nodes come first so skins may name joints anywhere in the tree.
	for i := range p.root.Nodes {
		if err := p.node(i); err != nil {
			return err
		}
	}
	for i := range p.root.Nodes {
		if err := p.children(i); err != nil {
			return err
		}
	}
	return p.skins()
}

func isDataURI(uri string) bool { return strings.HasPrefix(uri, "data:") }

func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.Wrap(ErrInvalid, "malformed data uri")
	}
	mime, encoding, _ := strings.Cut(header, ";")
	if encoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", errors.Wrapf(ErrInvalid, "data uri: %v", err)
		}
		return data, mime, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", errors.Wrapf(ErrInvalid, "data uri: %v", err)
	}
	return []byte(data), mime, nil
}

func (p *parser) resolve(uri string) ([]byte, error) {
	if isDataURI(uri) {
		data, _, err := decodeDataURI(uri)
		return data, err
	}
	if p.opts.Resolve == nil {
		return nil, errors.Wrapf(ErrMissingReference, "external uri %q without a resolver", uri)
	}
	data, err := p.opts.Resolve(uri)
	return data, errors.Wrapf(err, "gltf: resolve %q", uri)
}

func (p *parser) buffer(i int) ([]byte, error) {
	if data, ok := p.bufferBytes[i]; ok {
		return data, nil
	}
	if i < 0 || i >= len(p.root.Buffers) {
		return nil, errors.Wrapf(ErrMissingReference, "buffer %d", i)
	}
	b := p.root.Buffers[i]
	var data []byte
	switch {
	case b.URI != "":
		var err error
		if data, err = p.resolve(b.URI); err != nil {
			return nil, err
		}
	case i == 0 && p.bin != nil:
		data = p.bin
	default:
		return nil, errors.Wrapf(ErrMissingReference, "buffer %d has no data", i)
	}
	if len(data) < b.ByteLength {
		return nil, errors.Wrapf(ErrInvalid, "buffer %d holds %d of %d bytes", i, len(data), b.ByteLength)
	}
	p.bufferBytes[i] = data
	return data, nil
}

// view resolves a buffer view on first use and caches the slice.
func (p *parser) view(i int) ([]byte, error) {
	if data, ok := p.views[i]; ok {
		return data, nil
	}
	if i < 0 || i >= len(p.root.BufferViews) {
		return nil, errors.Wrapf(ErrMissingView, "view %d", i)
	}
	v := p.root.BufferViews[i]
	data, err := p.buffer(v.Buffer)
	if err != nil {
		return nil, err
	}
	if v.ByteOffset < 0 || v.ByteLength < 0 || v.ByteOffset > len(data) || v.ByteLength > len(data)-v.ByteOffset {
		return nil, errors.Wrapf(ErrMissingView, "view %d spans [%d, %d) of a %d-byte buffer",
			i, v.ByteOffset, v.ByteOffset+v.ByteLength, len(data))
	}
	data = data[v.ByteOffset : v.ByteOffset+v.ByteLength]
	p.views[i] = data
	return data, nil
}

func (p *parser) viewBuffer(i int) *scene.Buffer {
	if i >= 0 && i < len(p.root.BufferViews) {
		if b := p.root.BufferViews[i].Buffer; b >= 0 && b < len(p.buffers) {
			return p.buffers[b]
		}
	}
	return nil
}

func (p *parser) accessor(i int) (*scene.Accessor, error) {
	if a, ok := p.accessors[i]; ok {
		return a, nil
	}
	if i < 0 || i >= len(p.root.Accessors) {
		return nil, errors.Wrapf(ErrMissingAccessor, "accessor %d", i)
	}
	src := p.root.Accessors[i]
	ct, et := scene.ComponentType(src.ComponentType), scene.ElementType(src.Type)
	if !ct.Valid() || !et.Valid() || src.Count < 0 {
		return nil, errors.Wrapf(ErrInvalid, "accessor %d: component type %d, type %q", i, src.ComponentType, src.Type)
	}
	n, size := et.Size(), ct.Size()
	if src.ByteOffset < 0 {
		return nil, errors.Wrapf(ErrInvalid, "accessor %d: byte offset %d", i, src.ByteOffset)
	}
	if src.Count > math.MaxInt32/n {
		return nil, errors.Wrapf(ErrInvalid, "accessor %d: count %d", i, src.Count)
	}

	// The view must hold every element before anything is allocated.
	var data []byte
	stride := n * size
	if src.BufferView != nil {
		var err error
		if data, err = p.view(*src.BufferView); err != nil {
			return nil, errors.WithMessagef(err, "accessor %d", i)
		}
		if s := p.root.BufferViews[*src.BufferView].ByteStride; s != 0 {
			if s < 0 || s > maxByteStride {
				return nil, errors.Wrapf(ErrInvalid, "accessor %d: byte stride %d", i, s)
			}
			stride = s
		}
		if src.ByteOffset > len(data) || src.Count > 0 && src.ByteOffset+(src.Count-1)*stride+n*size > len(data) {
			return nil, errors.Wrapf(ErrMissingView, "accessor %d: %d elements past view end", i, src.Count)
		}
	}
	values := make([]float64, src.Count*n)

	var buffer *scene.Buffer
	if src.BufferView != nil {
		for e := 0; e < src.Count; e++ {
			at := src.ByteOffset + e*stride
			for c := 0; c < n; c++ {
				values[e*n+c] = readComponent(data[at+c*size:], ct)
			}
		}
		buffer = p.viewBuffer(*src.BufferView)
	}

	if s := src.Sparse; s != nil {
		if err := p.overlay(values, n, ct, s); err != nil {
			return nil, errors.WithMessagef(err, "accessor %d sparse", i)
		}
		if buffer == nil {
			buffer = p.viewBuffer(s.Values.BufferView)
		}
	}

	a := p.doc.CreateAccessor(src.Name, buffer)
	a.SetComponentType(ct)
	a.SetElementType(et)
	a.SetNormalized(src.Normalized)
	a.SetSparse(src.Sparse != nil)
	a.SetArray(values)
	p.accessors[i] = a
	return a, nil
}

// maxByteStride is the largest stride glTF allows on a vertex buffer view.
const maxByteStride = 252

// overlay writes the sparse index/value pairs over the dense values.
func (p *parser) overlay(values []float64, n int, ct scene.ComponentType, s *Sparse) error {
	it := scene.ComponentType(s.Indices.ComponentType)
	if it != scene.UnsignedByte && it != scene.UnsignedShort && it != scene.UnsignedInt {
		return errors.Wrapf(ErrInvalid, "sparse index component type %d", it)
	}
	indices, err := p.view(s.Indices.BufferView)
	if err != nil {
		return err
	}
	packed, err := p.view(s.Values.BufferView)
	if err != nil {
		return err
	}
	size := ct.Size()
	count := len(values) / max(n, 1)
	if s.Count < 0 || s.Count > count || s.Indices.ByteOffset < 0 || s.Values.ByteOffset < 0 {
		return errors.Wrapf(ErrInvalid, "sparse count %d, offsets %d and %d over %d elements",
			s.Count, s.Indices.ByteOffset, s.Values.ByteOffset, count)
	}
	if s.Indices.ByteOffset > len(indices) || s.Values.ByteOffset > len(packed) {
		return errors.Wrap(ErrMissingView, "sparse offsets past view end")
	}
	for k := 0; k < s.Count; k++ {
		ia := s.Indices.ByteOffset + k*it.Size()
		va := s.Values.ByteOffset + k*n*size
		if ia+it.Size() > len(indices) || va+n*size > len(packed) {
			return errors.Wrapf(ErrMissingView, "sparse entry %d past view end", k)
		}
		e := int(readComponent(indices[ia:], it))
		if e >= count {
			return errors.Wrapf(ErrInvalid, "sparse index %d out of %d elements", e, count)
		}
		for c := 0; c < n; c++ {
			values[e*n+c] = readComponent(packed[va+c*size:], ct)
		}
	}
	return nil
}

func readComponent(b []byte, ct scene.ComponentType) float64 {
	le := binary.LittleEndian
	switch ct {
	case scene.Byte:
		return float64(int8(b[0]))
	case scene.UnsignedByte:
		return float64(b[0])
	case scene.Short:
		return float64(int16(le.Uint16(b)))
	case scene.UnsignedShort:
		return float64(le.Uint16(b))
	case scene.UnsignedInt:
		return float64(le.Uint32(b))
	case scene.Float:
		return float64(math.Float32frombits(le.Uint32(b)))
	}
	return 0
}

func (p *parser) texture(i int) error {
	src := p.root.Textures[i]
	t := p.doc.CreateTexture(src.Name)
	p.textures = append(p.textures, t)
	if src.Source == nil {
		return nil
	}
	if *src.Source < 0 || *src.Source >= len(p.root.Images) {
		return errors.Wrapf(ErrMissingReference, "texture %d image %d", i, *src.Source)
	}
	img := p.root.Images[*src.Source]
	mime := img.MimeType
	switch {
	case img.BufferView != nil:
		data, err := p.view(*img.BufferView)
		if err != nil {
			return errors.WithMessagef(err, "image %d", *src.Source)
		}
		t.SetImage(bytes.Clone(data))
	case isDataURI(img.URI):
		data, dataMime, err := decodeDataURI(img.URI)
		if err != nil {
			return err
		}
		if mime == "" {
			mime = dataMime
		}
		t.SetImage(data)
	case img.URI != "":
		t.SetURI(img.URI)
		if p.opts.Resolve != nil {
			data, err := p.resolve(img.URI)
			if err != nil {
				return err
			}
			t.SetImage(data)
		}
	}
	t.SetMIMEType(mime)
	return nil
}

func (p *parser) textureRef(i int) (*scene.Texture, error) {
	if i < 0 || i >= len(p.textures) {
		return nil, errors.Wrapf(ErrMissingReference, "texture %d", i)
	}
	return p.textures[i], nil
}

func (p *parser) material(i int) error {
	src := p.root.Materials[i]
	m := p.doc.CreateMaterial(src.Name)
	p.materials = append(p.materials, m)

	slot := func(info *TextureInfo, set func(*scene.Texture)) error {
		if info == nil {
			return nil
		}
		t, err := p.textureRef(info.Index)
		if err == nil {
			set(t)
		}
		return err
	}
	if pbr := src.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			m.SetBaseColorFactor(*pbr.BaseColorFactor)
		}
		if pbr.MetallicFactor != nil {
			m.SetMetallicFactor(*pbr.MetallicFactor)
		}
		if pbr.RoughnessFactor != nil {
			m.SetRoughnessFactor(*pbr.RoughnessFactor)
		}
		if err := slot(pbr.BaseColorTexture, m.SetBaseColorTexture); err != nil {
			return err
		}
		if err := slot(pbr.MetallicRoughnessTexture, m.SetMetallicRoughnessTexture); err != nil {
			return err
		}
	}
	if nt := src.NormalTexture; nt != nil {
		if err := slot(&TextureInfo{Index: nt.Index}, m.SetNormalTexture); err != nil {
			return err
		}
		if nt.Scale != nil {
			m.SetNormalScale(*nt.Scale)
		}
	}
	if ot := src.OcclusionTexture; ot != nil {
		if err := slot(&TextureInfo{Index: ot.Index}, m.SetOcclusionTexture); err != nil {
			return err
		}
		if ot.Strength != nil {
			m.SetOcclusionStrength(*ot.Strength)
		}
	}
	if err := slot(src.EmissiveTexture, m.SetEmissiveTexture); err != nil {
		return err
	}
	if src.EmissiveFactor != nil {
		m.SetEmissiveFactor(*src.EmissiveFactor)
	}
	if src.AlphaMode != "" {
		mode := scene.AlphaMode(src.AlphaMode)
		if !mode.Valid() {
			return errors.Wrapf(ErrInvalid, "material %d alpha mode %q", i, src.AlphaMode)
		}
		m.SetAlphaMode(mode)
	}
	if src.AlphaCutoff != nil {
		m.SetAlphaCutoff(*src.AlphaCutoff)
	}
	m.SetDoubleSided(src.DoubleSided)
	return nil
}

func (p *parser) mesh(i int) error {
	src := p.root.Meshes[i]
	m := p.doc.CreateMesh(src.Name)
	p.meshes = append(p.meshes, m)
	for pi, sp := range src.Primitives {
		prim, err := p.primitive(sp)
		if err != nil {
			return errors.WithMessagef(err, "mesh %d primitive %d", i, pi)
		}
		m.AddPrimitive(prim)
	}
	if len(src.Weights) > 0 {
		m.SetWeights(src.Weights)
	}
	return nil
}

func (p *parser) primitive(src Primitive) (*scene.Primitive, error) {
	prim := p.doc.CreatePrimitive()
	if src.Mode != nil {
		mode := scene.Mode(*src.Mode)
		if !mode.Valid() {
			return nil, errors.Wrapf(ErrInvalid, "mode %d", *src.Mode)
		}
		prim.SetMode(mode)
	}
	for _, semantic := range sortedKeys(src.Attributes) {
		a, err := p.accessor(src.Attributes[semantic])
		if err != nil {
			return nil, err
		}
		prim.SetAttribute(semantic, a)
	}
	if src.Indices != nil {
		a, err := p.accessor(*src.Indices)
		if err != nil {
			return nil, err
		}
		prim.SetIndices(a)
	}
	if src.Material != nil {
		if *src.Material < 0 || *src.Material >= len(p.materials) {
			return nil, errors.Wrapf(ErrMissingReference, "material %d", *src.Material)
		}
		prim.SetMaterial(p.materials[*src.Material])
	}
	for _, target := range src.Targets {
		t := make(scene.Target, len(target))
		for _, semantic := range sortedKeys(target) {
			a, err := p.accessor(target[semantic])
			if err != nil {
				return nil, err
			}
			t[semantic] = a
		}
		prim.AddTarget(t)
	}
	return prim, nil
}

func (p *parser) meshRef(i int) (*scene.Mesh, error) {
	if i < 0 || i >= len(p.meshes) {
		return nil, errors.Wrapf(ErrMissingReference, "mesh %d", i)
	}
	return p.meshes[i], nil
}

func (p *parser) node(i int) error {
	src := p.root.Nodes[i]
	n := p.doc.CreateNode(src.Name)
	p.nodes = append(p.nodes, n)

	if src.Matrix != nil {
		t, r, s := scene.Decompose(mgl32.Mat4(*src.Matrix))
		n.SetTranslation(t)
		n.SetRotation(r)
		n.SetScale(s)
	}
	if src.Translation != nil {
		n.SetTranslation(*src.Translation)
	}
	if src.Rotation != nil {
		n.SetRotation(*src.Rotation)
	}
	if src.Scale != nil {
		n.SetScale(*src.Scale)
	}
	if src.Mesh != nil {
		m, err := p.meshRef(*src.Mesh)
		if err != nil {
			return errors.WithMessagef(err, "node %d", i)
		}
		n.SetMesh(m)
	}

	if ext := src.Extensions; ext != nil {
		var out scene.NodeExtensions
		if c := ext.Collider; c != nil {
			col := &scene.Collider{Type: scene.ColliderType(c.Type), Radius: c.Radius, Height: c.Height}
			if !col.Type.Valid() {
				return errors.Wrapf(ErrInvalid, "node %d collider type %q", i, c.Type)
			}
			if c.Size != nil {
				col.Size = *c.Size
			}
			if c.Mesh != nil {
				m, err := p.meshRef(*c.Mesh)
				if err != nil {
					return errors.WithMessagef(err, "node %d collider", i)
				}
				col.Mesh = m
			}
			out.Collider = col
		}
		if s := ext.SpawnPoint; s != nil {
			out.SpawnPoint = &scene.SpawnPoint{Title: s.Title, Team: s.Team}
		}
		out.BehaviorGraph = ext.BehaviorGraph
		if !out.IsZero() {
			n.SetExtensions(out)
		}
	}

	if len(src.Extras) > 0 && !bytes.Equal(src.Extras, []byte("null")) {
		var extras scene.Extras
		if err := json.Unmarshal(src.Extras, &extras); err != nil {
			p.log.Warn("node extras are not an object, dropped", log.Int("node", i), log.Error(err))
		} else {
			n.SetExtras(extras)
		}
	}
	return nil
}

// children links node i to its children. glTF requires a forest, so a child
// with a second parent or a cycle is invalid input.
func (p *parser) children(i int) error {
	parent := p.nodes[i]
	for _, ci := range p.root.Nodes[i].Children {
		if ci < 0 || ci >= len(p.nodes) {
			return errors.Wrapf(ErrMissingReference, "node %d child %d", i, ci)
		}
		child := p.nodes[ci]
		if child == parent || child.Parent() != nil || child.IsAncestorOf(parent) {
			return errors.Wrapf(ErrInvalid, "node %d child %d breaks the tree", i, ci)
		}
		parent.AddChild(child)
	}
	return nil
}

func (p *parser) skins() error {
	skins := make([]*scene.Skin, len(p.root.Skins))
	for si, src := range p.root.Skins {
		s := p.doc.CreateSkin(src.Name)
		joints := make([]*scene.Node, len(src.Joints))
		for k, j := range src.Joints {
			if j < 0 || j >= len(p.nodes) {
				return errors.Wrapf(ErrMissingReference, "skin %d joint %d", si, j)
			}
			joints[k] = p.nodes[j]
		}
		s.SetJoints(joints)
		if src.Skeleton != nil {
			if *src.Skeleton < 0 || *src.Skeleton >= len(p.nodes) {
				return errors.Wrapf(ErrMissingReference, "skin %d skeleton %d", si, *src.Skeleton)
			}
			s.SetSkeleton(p.nodes[*src.Skeleton])
		}
		if src.InverseBindMatrices != nil {
			a, err := p.accessor(*src.InverseBindMatrices)
			if err != nil {
				return errors.WithMessagef(err, "skin %d", si)
			}
			s.SetInverseBindMatrices(a)
		}
		skins[si] = s
	}
	for i, src := range p.root.Nodes {
		if src.Skin == nil {
			continue
		}
		if *src.Skin < 0 || *src.Skin >= len(skins) {
			return errors.Wrapf(ErrMissingReference, "node %d skin %d", i, *src.Skin)
		}
		p.nodes[i].SetSkin(skins[*src.Skin])
	}
	return nil
}
