package gltf

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math"
	"slices"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/pkg/concurrent"
)

// Options tunes an Exporter.
type Options struct {
	// Generator is written to asset.generator.
	Generator string
	// Concurrency bounds parallel image encodes; zero or less is unbounded.
	Concurrency int
	Log         log.Log
}

// Exporter serializes scene documents. It holds no per-document state and is
// safe for concurrent use.
type Exporter struct {
	opts Options
	log  log.Log
}

func NewExporter(opts Options) *Exporter {
	if opts.Generator == "" {
		opts.Generator = "scenesync"
	}
	logger := opts.Log
	if logger == nil {
		logger = log.NewNop()
	}
	return &Exporter{opts: opts, log: logger.With(log.Component("gltf.exporter"))}
}

// Write encodes doc as a GLB blob. Nothing reaches w when the export fails.
func (e *Exporter) Write(ctx context.Context, doc *scene.Document, w io.Writer) error {
	root, buffers, err := e.build(ctx, doc, true)
	if err != nil {
		return err
	}
	data, err := json.Marshal(root)
	if err != nil {
		return errors.Wrap(err, "gltf: encode json chunk")
	}
	var bin []byte
	if len(buffers) > 0 {
		bin = buffers[0]
	}
	return WriteGLB(w, data, bin)
}

// JSON encodes doc as a glTF JSON document with every buffer embedded as a
// base64 data URI.
func (e *Exporter) JSON(ctx context.Context, doc *scene.Document) ([]byte, error) {
	root, buffers, err := e.build(ctx, doc, false)
	if err != nil {
		return nil, err
	}
	for i, data := range buffers {
		root.Buffers[i].URI = "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data)
	}
	out, err := json.Marshal(root)
	return out, errors.Wrap(err, "gltf: encode json")
}

// build returns the glTF tree and one byte slice per glTF buffer. In binary
// mode every group is packed into a single buffer.
func (e *Exporter) build(ctx context.Context, doc *scene.Document, packed bool) (*Root, [][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	x := newExport(doc)
	if err := x.collect(); err != nil {
		return nil, nil, err
	}
	if err := x.encodeImages(ctx, e.opts.Concurrency); err != nil {
		return nil, nil, err
	}
	buffers := x.finalize(packed)
	e.log.Debug("gltf exported",
		log.Int("nodes", len(x.root.Nodes)),
		log.Int("meshes", len(x.root.Meshes)),
		log.Int("materials", len(x.root.Materials)),
		log.Int("images", len(x.root.Images)),
		log.Int("buffers", len(buffers)),
	)
	x.root.Asset.Generator = e.opts.Generator
	return &x.root, buffers, nil
}

// piece is one buffer view's bytes waiting for its final offset.
type piece struct {
	view int
	data []byte
}

// group collects the pieces bound for one scene buffer.
type group struct {
	name   string
	pieces []piece
}

type imageInfo struct {
	mime string
	hash uint64
}

type export struct {
	doc  *scene.Document
	root Root

	groups  []*group
	groupOf map[*scene.Buffer]int

	accessors map[*scene.Accessor]int
	textures  map[*scene.Texture]int
	materials map[*scene.Material]int
	meshes    map[*scene.Mesh]int
	nodes     map[*scene.Node]int
	skins     map[*scene.Skin]int

	// pending holds textures in texture-index order; their images are
	// attached once encoding resolves.
	pending    []*scene.Texture
	encoded    []imageInfo
	extensions map[string]struct{}
}

func newExport(doc *scene.Document) *export {
	return &export{
		doc:        doc,
		root:       Root{Asset: Asset{Version: "2.0"}},
		groupOf:    make(map[*scene.Buffer]int),
		accessors:  make(map[*scene.Accessor]int),
		textures:   make(map[*scene.Texture]int),
		materials:  make(map[*scene.Material]int),
		meshes:     make(map[*scene.Mesh]int),
		nodes:      make(map[*scene.Node]int),
		skins:      make(map[*scene.Skin]int),
		extensions: make(map[string]struct{}),
	}
}

func (x *export) collect() error {
	roots := x.doc.Roots()
	// Index every node first so children, joints, and skeletons can refer
	// forward.
	for _, r := range roots {
		r.Traverse(func(n *scene.Node) bool {
			x.nodes[n] = len(x.root.Nodes)
			x.root.Nodes = append(x.root.Nodes, Node{})
			return true
		})
	}
	for _, r := range roots {
		var err error
		r.Traverse(func(n *scene.Node) bool {
			if err == nil {
				err = x.node(n)
			}
			return err == nil
		})
		if err != nil {
			return err
		}
	}

	sceneNodes := make([]int, len(roots))
	for i, r := range roots {
		sceneNodes[i] = x.nodes[r]
	}
	x.root.Scenes = []Scene{{Nodes: sceneNodes}}
	x.root.Scene = index(0)

	for name := range x.extensions {
		x.root.ExtensionsUsed = append(x.root.ExtensionsUsed, name)
	}
	sort.Strings(x.root.ExtensionsUsed)
	return nil
}

func (x *export) node(n *scene.Node) error {
	out := Node{Name: n.Name()}
	if t := n.Translation(); t != [3]float32{} {
		out.Translation = &t
	}
	if r := n.Rotation(); r != [4]float32{0, 0, 0, 1} {
		out.Rotation = &r
	}
	if s := n.Scale(); s != [3]float32{1, 1, 1} {
		out.Scale = &s
	}
	for _, c := range n.Children() {
		out.Children = append(out.Children, x.nodes[c])
	}
	if m := n.Mesh(); m != nil {
		i, err := x.mesh(m)
		if err != nil {
			return err
		}
		out.Mesh = &i
	}
	if s := n.Skin(); s != nil {
		i, err := x.skin(s)
		if err != nil {
			return err
		}
		out.Skin = &i
	}
	ext, err := x.nodeExtensions(n.Extensions())
	if err != nil {
		return err
	}
	out.Extensions = ext
	if extras := n.Extras(); len(extras) > 0 {
		raw, err := json.Marshal(extras)
		if err != nil {
			return errors.Wrapf(err, "gltf: node %q extras", n.Name())
		}
		out.Extras = raw
	}
	x.root.Nodes[x.nodes[n]] = out
	return nil
}

func (x *export) nodeExtensions(ext scene.NodeExtensions) (*NodeExtensions, error) {
	if ext.IsZero() {
		return nil, nil
	}
	out := &NodeExtensions{}
	if c := ext.Collider; c != nil {
		col := &ColliderExt{Type: string(c.Type), Radius: c.Radius, Height: c.Height}
		if c.Size != [3]float32{} {
			size := c.Size
			col.Size = &size
		}
		if c.Mesh != nil {
			i, err := x.mesh(c.Mesh)
			if err != nil {
				return nil, err
			}
			col.Mesh = &i
		}
		out.Collider = col
		x.extensions[scene.ExtCollider] = struct{}{}
	}
	if s := ext.SpawnPoint; s != nil {
		out.SpawnPoint = &SpawnPointExt{Title: s.Title, Team: s.Team}
		x.extensions[scene.ExtSpawnPoint] = struct{}{}
	}
	if len(ext.BehaviorGraph) > 0 {
		out.BehaviorGraph = ext.BehaviorGraph
		x.extensions[scene.ExtBehaviorGraph] = struct{}{}
	}
	return out, nil
}

func (x *export) skin(s *scene.Skin) (int, error) {
	if i, ok := x.skins[s]; ok {
		return i, nil
	}
	out := Skin{Name: s.Name(), Joints: []int{}}
	for _, j := range s.Joints() {
		i, ok := x.nodes[j]
		if !ok {
			return 0, errors.Wrapf(ErrUnsupported, "skin %q joint %q is not in the scene", s.Name(), j.Name())
		}
		out.Joints = append(out.Joints, i)
	}
	if sk := s.Skeleton(); sk != nil {
		if i, ok := x.nodes[sk]; ok {
			out.Skeleton = &i
		}
	}
	if ibm := s.InverseBindMatrices(); ibm != nil {
		i, err := x.accessor(ibm, 0)
		if err != nil {
			return 0, err
		}
		out.InverseBindMatrices = &i
	}
	i := len(x.root.Skins)
	x.skins[s] = i
	x.root.Skins = append(x.root.Skins, out)
	return i, nil
}

func (x *export) mesh(m *scene.Mesh) (int, error) {
	if i, ok := x.meshes[m]; ok {
		return i, nil
	}
	out := Mesh{Name: m.Name(), Weights: m.Weights(), Primitives: []Primitive{}}
	for _, p := range m.Primitives() {
		prim, err := x.primitive(p)
		if err != nil {
			return 0, errors.WithMessagef(err, "mesh %q", m.Name())
		}
		out.Primitives = append(out.Primitives, prim)
	}
	i := len(x.root.Meshes)
	x.meshes[m] = i
	x.root.Meshes = append(x.root.Meshes, out)
	return i, nil
}

func (x *export) primitive(p *scene.Primitive) (Primitive, error) {
	mode := p.Mode()
	if !mode.Valid() {
		return Primitive{}, errors.Wrapf(ErrUnsupported, "primitive mode %d", mode)
	}
	out := Primitive{Attributes: map[string]int{}}
	if mode != scene.Triangles {
		m := int(mode)
		out.Mode = &m
	}

	if mat := p.Material(); mat != nil {
		if !mode.IsTriangles() && (mat.NormalTexture() != nil || mat.OcclusionTexture() != nil) {
			return Primitive{}, errors.Wrapf(ErrUnsupported,
				"material %q uses normal or occlusion textures on a non-triangle primitive", mat.Name())
		}
		i, err := x.material(mat)
		if err != nil {
			return Primitive{}, err
		}
		out.Material = &i
	}

	if err := x.attributes(p, out.Attributes); err != nil {
		return Primitive{}, err
	}
	if idx := p.Indices(); idx != nil {
		i, err := x.accessor(idx, ElementArrayBuffer)
		if err != nil {
			return Primitive{}, err
		}
		out.Indices = &i
	}
	for _, target := range p.Targets() {
		t := make(map[string]int, len(target))
		for _, semantic := range sortedKeys(target) {
			i, err := x.accessor(target[semantic], ArrayBuffer)
			if err != nil {
				return Primitive{}, err
			}
			t[semantic] = i
		}
		out.Targets = append(out.Targets, t)
	}
	return out, nil
}

// attributes exports the vertex attributes of p. Attributes not exported yet
// share one interleaved view when there is more than one of them and every one
// is a dense 4-byte float accessor of equal count in the same buffer; otherwise
// each gets its own view.
func (x *export) attributes(p *scene.Primitive, dst map[string]int) error {
	var fresh []*scene.Accessor
	for _, semantic := range p.Semantics() {
		a := p.Attribute(semantic)
		if _, ok := x.accessors[a]; !ok && !slices.Contains(fresh, a) {
			fresh = append(fresh, a)
		}
	}

	if interleavable(fresh) {
		if err := x.interleave(fresh); err != nil {
			return err
		}
	}
	for _, semantic := range p.Semantics() {
		a := p.Attribute(semantic)
		i, err := x.accessor(a, ArrayBuffer)
		if err != nil {
			return err
		}
		if semantic == "POSITION" && x.root.Accessors[i].Min == nil {
			x.root.Accessors[i].Min, x.root.Accessors[i].Max = a.MinMax()
		}
		dst[semantic] = i
	}
	return nil
}

func interleavable(attrs []*scene.Accessor) bool {
	if len(attrs) < 2 {
		return false
	}
	for _, a := range attrs {
		if a.ComponentType() != scene.Float || a.Sparse() || !a.ElementType().Valid() {
			return false
		}
		if a.Count() != attrs[0].Count() || a.Buffer() != attrs[0].Buffer() {
			return false
		}
	}
	return true
}

func (x *export) interleave(attrs []*scene.Accessor) error {
	stride := 0
	offsets := make([]int, len(attrs))
	for i, a := range attrs {
		offsets[i] = stride
		stride += a.ElementType().Size() * 4
	}
	count := attrs[0].Count()
	data := make([]byte, stride*count)
	for i, a := range attrs {
		n := a.ElementType().Size()
		values := a.Array()
		for e := 0; e < count; e++ {
			at := e*stride + offsets[i]
			for c := 0; c < n; c++ {
				putComponent(data[at+c*4:], scene.Float, values[e*n+c])
			}
		}
	}

	view := x.addView(attrs[0].Buffer(), data, BufferView{ByteStride: stride, Target: ArrayBuffer})
	for i, a := range attrs {
		x.accessors[a] = len(x.root.Accessors)
		x.root.Accessors = append(x.root.Accessors, Accessor{
			BufferView:    index(view),
			ByteOffset:    offsets[i],
			ComponentType: int(scene.Float),
			Count:         count,
			Type:          string(a.ElementType()),
			Name:          a.Name(),
		})
	}
	return nil
}

// accessor exports a with its own buffer view (or sparse storage) unless it was
// exported already.
func (x *export) accessor(a *scene.Accessor, target int) (int, error) {
	if i, ok := x.accessors[a]; ok {
		return i, nil
	}
	ct, et := a.ComponentType(), a.ElementType()
	if !ct.Valid() || !et.Valid() {
		return 0, errors.Wrapf(ErrUnsupported, "accessor %q with component type %d and type %q", a.Name(), ct, et)
	}
	for i, v := range a.Array() {
		if !fits(ct, v) {
			return 0, errors.Wrapf(ErrUnsupported, "accessor %q value %d (%g) does not fit component type %d", a.Name(), i, v, ct)
		}
	}
	out := Accessor{
		ComponentType: int(ct),
		Normalized:    a.Normalized(),
		Count:         a.Count(),
		Type:          string(et),
		Name:          a.Name(),
	}
	if a.Sparse() {
		out.Sparse = x.sparse(a)
	} else if a.Count() > 0 {
		elem := et.Size() * ct.Size()
		stride := elem
		if target == ArrayBuffer {
			stride = pad4(elem)
		}
		view := BufferView{Target: target}
		if stride != elem {
			view.ByteStride = stride
		}
		out.BufferView = index(x.addView(a.Buffer(), encodeElements(a, stride), view))
	}
	i := len(x.root.Accessors)
	x.accessors[a] = i
	x.root.Accessors = append(x.root.Accessors, out)
	return i, nil
}

// sparse stores only the elements that differ from zero. An all-zero accessor
// gets neither a view nor sparse storage.
func (x *export) sparse(a *scene.Accessor) *Sparse {
	n := a.ElementType().Size()
	values := a.Array()
	var changed []int
	for e := 0; e < a.Count(); e++ {
		for c := 0; c < n; c++ {
			if values[e*n+c] != 0 {
				changed = append(changed, e)
				break
			}
		}
	}
	if len(changed) == 0 {
		return nil
	}

	indexType := scene.UnsignedInt
	switch {
	case a.Count() <= math.MaxUint8:
		indexType = scene.UnsignedByte
	case a.Count() <= math.MaxUint16:
		indexType = scene.UnsignedShort
	}
	indices := make([]byte, len(changed)*indexType.Size())
	elem := n * a.ComponentType().Size()
	packed := make([]byte, len(changed)*elem)
	for i, e := range changed {
		putComponent(indices[i*indexType.Size():], indexType, float64(e))
		for c := 0; c < n; c++ {
			putComponent(packed[i*elem+c*a.ComponentType().Size():], a.ComponentType(), values[e*n+c])
		}
	}

	return &Sparse{
		Count:   len(changed),
		Indices: SparseIndices{BufferView: x.addView(a.Buffer(), indices, BufferView{}), ComponentType: int(indexType)},
		Values:  SparseValues{BufferView: x.addView(a.Buffer(), packed, BufferView{})},
	}
}

func (x *export) material(m *scene.Material) (int, error) {
	if i, ok := x.materials[m]; ok {
		return i, nil
	}
	if !m.AlphaMode().Valid() {
		return 0, errors.Wrapf(ErrUnsupported, "material %q alpha mode %q", m.Name(), m.AlphaMode())
	}

	out := Material{Name: m.Name(), DoubleSided: m.DoubleSided()}
	pbr := &PBRMetallicRoughness{}
	if f := m.BaseColorFactor(); f != [4]float32{1, 1, 1, 1} {
		pbr.BaseColorFactor = &f
	}
	if f := m.MetallicFactor(); f != 1 {
		pbr.MetallicFactor = &f
	}
	if f := m.RoughnessFactor(); f != 1 {
		pbr.RoughnessFactor = &f
	}
	if t := m.BaseColorTexture(); t != nil {
		pbr.BaseColorTexture = &TextureInfo{Index: x.texture(t)}
	}
	if t := m.MetallicRoughnessTexture(); t != nil {
		pbr.MetallicRoughnessTexture = &TextureInfo{Index: x.texture(t)}
	}
	if *pbr != (PBRMetallicRoughness{}) {
		out.PBRMetallicRoughness = pbr
	}
	if t := m.NormalTexture(); t != nil {
		info := &NormalTextureInfo{Index: x.texture(t)}
		if s := m.NormalScale(); s != 1 {
			info.Scale = &s
		}
		out.NormalTexture = info
	}
	if t := m.OcclusionTexture(); t != nil {
		info := &OcclusionTextureInfo{Index: x.texture(t)}
		if s := m.OcclusionStrength(); s != 1 {
			info.Strength = &s
		}
		out.OcclusionTexture = info
	}
	if t := m.EmissiveTexture(); t != nil {
		out.EmissiveTexture = &TextureInfo{Index: x.texture(t)}
	}
	if f := m.EmissiveFactor(); f != [3]float32{} {
		out.EmissiveFactor = &f
	}
	if mode := m.AlphaMode(); mode != scene.AlphaOpaque {
		out.AlphaMode = string(mode)
	}
	// The cutoff only means something in mask mode.
	if c := m.AlphaCutoff(); m.AlphaMode() == scene.AlphaMask && c != 0.5 {
		out.AlphaCutoff = &c
	}

	i := len(x.root.Materials)
	x.materials[m] = i
	x.root.Materials = append(x.root.Materials, out)
	return i, nil
}

func (x *export) texture(t *scene.Texture) int {
	if i, ok := x.textures[t]; ok {
		return i
	}
	i := len(x.root.Textures)
	x.textures[t] = i
	x.root.Textures = append(x.root.Textures, Texture{Name: t.Name()})
	x.pending = append(x.pending, t)
	return i
}

// encodeImages sniffs and hashes every pending texture image in parallel.
func (x *export) encodeImages(ctx context.Context, limit int) error {
	encoded, err := concurrent.Map(ctx, x.pending, limit, func(ctx context.Context, t *scene.Texture) (imageInfo, error) {
		data := t.Image()
		if len(data) == 0 {
			return imageInfo{mime: t.MIMEType()}, nil
		}
		mime := t.MIMEType()
		if mime == "" {
			kind, err := filetype.Match(data)
			if err != nil {
				return imageInfo{}, errors.Wrapf(err, "gltf: sniff texture %q", t.Name())
			}
			if kind == filetype.Unknown {
				return imageInfo{}, errors.Wrapf(ErrUnsupported, "texture %q image format", t.Name())
			}
			mime = kind.MIME.Value
		}
		return imageInfo{mime: mime, hash: xxhash.Sum64(data)}, nil
	})
	if err != nil {
		return err
	}
	x.encoded = encoded
	return nil
}

// finalize attaches images, deduplicating identical bytes, then lays out every
// group and fixes each view's buffer and offset.
func (x *export) finalize(packed bool) [][]byte {
	byHash := make(map[uint64][]int)
	var imageData [][]byte
	for ti, t := range x.pending {
		info := x.encoded[ti]
		data := t.Image()
		var source *int
		switch {
		case len(data) > 0:
			for _, img := range byHash[info.hash] {
				if bytes.Equal(imageData[img], data) {
					source = index(img)
					break
				}
			}
			if source == nil {
				img := len(x.root.Images)
				view := x.addView(nil, data, BufferView{})
				x.root.Images = append(x.root.Images, Image{MimeType: info.mime, BufferView: &view, Name: t.Name()})
				imageData = append(imageData, data)
				byHash[info.hash] = append(byHash[info.hash], img)
				source = &img
			}
		case t.URI() != "":
			img := len(x.root.Images)
			x.root.Images = append(x.root.Images, Image{URI: t.URI(), MimeType: info.mime, Name: t.Name()})
			imageData = append(imageData, nil)
			source = &img
		}
		x.root.Textures[ti].Source = source
	}

	var buffers [][]byte
	var out *bytes.Buffer
	for _, g := range x.groups {
		if len(g.pieces) == 0 {
			continue
		}
		if out == nil || !packed {
			out = new(bytes.Buffer)
			x.root.Buffers = append(x.root.Buffers, Buffer{Name: g.name})
			buffers = append(buffers, nil)
		}
		bi := len(x.root.Buffers) - 1
		for _, p := range g.pieces {
			for out.Len()%4 != 0 {
				out.WriteByte(0)
			}
			v := &x.root.BufferViews[p.view]
			v.Buffer, v.ByteOffset, v.ByteLength = bi, out.Len(), len(p.data)
			out.Write(p.data)
		}
		buffers[bi] = out.Bytes()
		x.root.Buffers[bi].ByteLength = out.Len()
	}
	return buffers
}

// addView reserves a view whose buffer and offset are set by finalize. Views
// without a scene buffer land in the first group.
func (x *export) addView(b *scene.Buffer, data []byte, view BufferView) int {
	gi, ok := x.groupOf[b]
	if !ok && b == nil && len(x.groups) > 0 {
		gi, ok = 0, true
	}
	if !ok {
		gi = len(x.groups)
		g := &group{}
		if b != nil {
			g.name = b.Name()
		}
		x.groups = append(x.groups, g)
		x.groupOf[b] = gi
	}
	vi := len(x.root.BufferViews)
	x.root.BufferViews = append(x.root.BufferViews, view)
	x.groups[gi].pieces = append(x.groups[gi].pieces, piece{view: vi, data: data})
	return vi
}

// encodeElements writes every element of a, each starting stride bytes after
// the previous one.
func encodeElements(a *scene.Accessor, stride int) []byte {
	n, size := a.ElementType().Size(), a.ComponentType().Size()
	values := a.Array()
	data := make([]byte, a.Count()*stride)
	for e := 0; e < a.Count(); e++ {
		for c := 0; c < n; c++ {
			putComponent(data[e*stride+c*size:], a.ComponentType(), values[e*n+c])
		}
	}
	return data
}

// fits reports whether v survives being stored as ct. Integer types round to
// the nearest value and must not wrap.
func fits(ct scene.ComponentType, v float64) bool {
	if ct == scene.Float {
		return true
	}
	if math.IsNaN(v) {
		return false
	}
	r := math.Round(v)
	switch ct {
	case scene.Byte:
		return r >= math.MinInt8 && r <= math.MaxInt8
	case scene.UnsignedByte:
		return r >= 0 && r <= math.MaxUint8
	case scene.Short:
		return r >= math.MinInt16 && r <= math.MaxInt16
	case scene.UnsignedShort:
		return r >= 0 && r <= math.MaxUint16
	case scene.UnsignedInt:
		return r >= 0 && r <= math.MaxUint32
	}
	return false
}

func putComponent(dst []byte, ct scene.ComponentType, v float64) {
	le := binary.LittleEndian
	switch ct {
	case scene.Byte:
		dst[0] = byte(int8(math.Round(v)))
	case scene.UnsignedByte:
		dst[0] = uint8(math.Round(v))
	case scene.Short:
		le.PutUint16(dst, uint16(int16(math.Round(v))))
	case scene.UnsignedShort:
		le.PutUint16(dst, uint16(math.Round(v)))
	case scene.UnsignedInt:
		le.PutUint32(dst, uint32(math.Round(v)))
	case scene.Float:
		le.PutUint32(dst, math.Float32bits(float32(v)))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
