// Package gltf converts scene documents to and from glTF 2.0, either as a
// JSON document with embedded data URIs or as a single GLB blob.
package gltf

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

var (
	// ErrUnsupported is a terminal export error for material and primitive
	// combinations glTF cannot express.
	ErrUnsupported = errors.New("gltf: unsupported")
	// ErrMissingView reports a buffer view that is referenced but absent or
	// out of its buffer's bounds.
	ErrMissingView = errors.New("gltf: missing buffer view")
	// ErrMissingAccessor reports an accessor index with no accessor behind it.
	ErrMissingAccessor = errors.New("gltf: missing accessor")
	// ErrMissingReference reports any other out-of-range index.
	ErrMissingReference = errors.New("gltf: missing reference")
	// ErrInvalid reports input that is not a well-formed glTF document.
	ErrInvalid = errors.New("gltf: invalid document")
)

// Root is the top-level glTF object. Only the parts scenes carry are modeled.
type Root struct {
	ExtensionsUsed []string     `json:"extensionsUsed,omitempty"`
	Accessors      []Accessor   `json:"accessors,omitempty"`
	Asset          Asset        `json:"asset"`
	Buffers        []Buffer     `json:"buffers,omitempty"`
	BufferViews    []BufferView `json:"bufferViews,omitempty"`
	Images         []Image      `json:"images,omitempty"`
	Materials      []Material   `json:"materials,omitempty"`
	Meshes         []Mesh       `json:"meshes,omitempty"`
	Nodes          []Node       `json:"nodes,omitempty"`
	Scene          *int         `json:"scene,omitempty"`
	Scenes         []Scene      `json:"scenes,omitempty"`
	Skins          []Skin       `json:"skins,omitempty"`
	Textures       []Texture    `json:"textures,omitempty"`
}

type Asset struct {
	Generator string `json:"generator,omitempty"`
	Version   string `json:"version"`
}

type Accessor struct {
	BufferView    *int      `json:"bufferView,omitempty"`
	ByteOffset    int       `json:"byteOffset,omitempty"`
	ComponentType int       `json:"componentType"`
	Normalized    bool      `json:"normalized,omitempty"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Max           []float64 `json:"max,omitempty"`
	Min           []float64 `json:"min,omitempty"`
	Sparse        *Sparse   `json:"sparse,omitempty"`
	Name          string    `json:"name,omitempty"`
}

type Sparse struct {
	Count   int           `json:"count"`
	Indices SparseIndices `json:"indices"`
	Values  SparseValues  `json:"values"`
}

type SparseIndices struct {
	BufferView    int `json:"bufferView"`
	ByteOffset    int `json:"byteOffset,omitempty"`
	ComponentType int `json:"componentType"`
}

type SparseValues struct {
	BufferView int `json:"bufferView"`
	ByteOffset int `json:"byteOffset,omitempty"`
}

type Buffer struct {
	URI        string `json:"uri,omitempty"`
	ByteLength int    `json:"byteLength"`
	Name       string `json:"name,omitempty"`
}

type BufferView struct {
	Buffer     int    `json:"buffer"`
	ByteOffset int    `json:"byteOffset,omitempty"`
	ByteLength int    `json:"byteLength"`
	ByteStride int    `json:"byteStride,omitempty"` // 0 for tightly packed
	Target     int    `json:"target,omitempty"`
	Name       string `json:"name,omitempty"`
}

// bufferView.target values.
const (
	ArrayBuffer        = 34962
	ElementArrayBuffer = 34963
)

type Image struct {
	URI        string `json:"uri,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`
	Name       string `json:"name,omitempty"`
}

type Texture struct {
	Source *int   `json:"source,omitempty"`
	Name   string `json:"name,omitempty"`
}

type TextureInfo struct {
	Index    int `json:"index"`
	TexCoord int `json:"texCoord,omitempty"`
}

type NormalTextureInfo struct {
	Index    int      `json:"index"`
	TexCoord int      `json:"texCoord,omitempty"`
	Scale    *float32 `json:"scale,omitempty"` // default 1
}

type OcclusionTextureInfo struct {
	Index    int      `json:"index"`
	TexCoord int      `json:"texCoord,omitempty"`
	Strength *float32 `json:"strength,omitempty"` // default 1
}

type PBRMetallicRoughness struct {
	BaseColorFactor          *[4]float32  `json:"baseColorFactor,omitempty"` // default [1, 1, 1, 1]
	BaseColorTexture         *TextureInfo `json:"baseColorTexture,omitempty"`
	MetallicFactor           *float32     `json:"metallicFactor,omitempty"`  // default 1
	RoughnessFactor          *float32     `json:"roughnessFactor,omitempty"` // default 1
	MetallicRoughnessTexture *TextureInfo `json:"metallicRoughnessTexture,omitempty"`
}

type Material struct {
	PBRMetallicRoughness *PBRMetallicRoughness `json:"pbrMetallicRoughness,omitempty"`
	NormalTexture        *NormalTextureInfo    `json:"normalTexture,omitempty"`
	OcclusionTexture     *OcclusionTextureInfo `json:"occlusionTexture,omitempty"`
	EmissiveTexture      *TextureInfo          `json:"emissiveTexture,omitempty"`
	EmissiveFactor       *[3]float32           `json:"emissiveFactor,omitempty"`
	AlphaMode            string                `json:"alphaMode,omitempty"`   // default OPAQUE
	AlphaCutoff          *float32              `json:"alphaCutoff,omitempty"` // default 0.5
	DoubleSided          bool                  `json:"doubleSided,omitempty"`
	Name                 string                `json:"name,omitempty"`
}

type Mesh struct {
	Primitives []Primitive `json:"primitives"`
	Weights    []float32   `json:"weights,omitempty"`
	Name       string      `json:"name,omitempty"`
}

type Primitive struct {
	Attributes map[string]int   `json:"attributes"`
	Indices    *int             `json:"indices,omitempty"`
	Material   *int             `json:"material,omitempty"`
	Mode       *int             `json:"mode,omitempty"` // default 4
	Targets    []map[string]int `json:"targets,omitempty"`
}

type Node struct {
	Children    []int           `json:"children,omitempty"`
	Skin        *int            `json:"skin,omitempty"`
	Matrix      *[16]float32    `json:"matrix,omitempty"`
	Mesh        *int            `json:"mesh,omitempty"`
	Rotation    *[4]float32     `json:"rotation,omitempty"`
	Scale       *[3]float32     `json:"scale,omitempty"`
	Translation *[3]float32     `json:"translation,omitempty"`
	Name        string          `json:"name,omitempty"`
	Extensions  *NodeExtensions `json:"extensions,omitempty"`
	Extras      json.RawMessage `json:"extras,omitempty"`
}

// NodeExtensions holds the node extensions scenes understand.
type NodeExtensions struct {
	Collider      *ColliderExt    `json:"OMI_collider,omitempty"`
	SpawnPoint    *SpawnPointExt  `json:"OMI_spawn_point,omitempty"`
	BehaviorGraph json.RawMessage `json:"EXT_behavior_graph,omitempty"`
}

type ColliderExt struct {
	Type   string      `json:"type"`
	Size   *[3]float32 `json:"size,omitempty"`
	Radius float32     `json:"radius,omitempty"`
	Height float32     `json:"height,omitempty"`
	Mesh   *int        `json:"mesh,omitempty"`
}

type SpawnPointExt struct {
	Title string `json:"title,omitempty"`
	Team  string `json:"team,omitempty"`
}

type Scene struct {
	Nodes []int  `json:"nodes,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Skin struct {
	InverseBindMatrices *int   `json:"inverseBindMatrices,omitempty"`
	Skeleton            *int   `json:"skeleton,omitempty"`
	Joints              []int  `json:"joints"`
	Name                string `json:"name,omitempty"`
}

func index(i int) *int { return &i }
