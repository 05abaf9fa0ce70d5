package scene

import (
	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
)

// Extension names as they appear in glTF documents and node snapshots.
const (
	ExtCollider      = "OMI_collider"
	ExtSpawnPoint    = "OMI_spawn_point"
	ExtBehaviorGraph = "EXT_behavior_graph"
)

// ColliderType selects the collider shape.
type ColliderType string

const (
	ColliderBox      ColliderType = "box"
	ColliderSphere   ColliderType = "sphere"
	ColliderCylinder ColliderType = "cylinder"
	ColliderCapsule  ColliderType = "capsule"
	ColliderTrimesh  ColliderType = "trimesh"
)

func (t ColliderType) Valid() bool {
	switch t {
	case ColliderBox, ColliderSphere, ColliderCylinder, ColliderCapsule, ColliderTrimesh:
		return true
	}
	return false
}

// Collider describes the physics shape attached to a node. Mesh is only read
// by trimesh colliders; when nil the node's own mesh is used.
type Collider struct {
	Type   ColliderType
	Size   [3]float32
	Radius float32
	Height float32
	Mesh   *Mesh
}

// SpawnPoint marks a node as a player spawn location.
type SpawnPoint struct {
	Title string `json:"title,omitempty"`
	Team  string `json:"team,omitempty"`
}

// NodeExtensions is the typed extension map of a node.
type NodeExtensions struct {
	Collider      *Collider
	SpawnPoint    *SpawnPoint
	BehaviorGraph json.RawMessage
}

func (e NodeExtensions) IsZero() bool {
	return e.Collider == nil && e.SpawnPoint == nil && len(e.BehaviorGraph) == 0
}

func (e NodeExtensions) clone() NodeExtensions {
	out := NodeExtensions{}
	if e.Collider != nil {
		c := *e.Collider
		out.Collider = &c
	}
	if e.SpawnPoint != nil {
		s := *e.SpawnPoint
		out.SpawnPoint = &s
	}
	if e.BehaviorGraph != nil {
		out.BehaviorGraph = append(json.RawMessage(nil), e.BehaviorGraph...)
	}
	return out
}

// ColliderJSON is the wire form of Collider.
type ColliderJSON struct {
	Type   ColliderType `json:"type"`
	Size   *[3]float32  `json:"size,omitempty"`
	Radius float32      `json:"radius,omitempty"`
	Height float32      `json:"height,omitempty"`
	Mesh   ID           `json:"mesh,omitempty"`
}

// NodeExtensionsJSON is the wire form of NodeExtensions.
type NodeExtensionsJSON struct {
	Collider      *ColliderJSON   `json:"OMI_collider,omitempty"`
	SpawnPoint    *SpawnPoint     `json:"OMI_spawn_point,omitempty"`
	BehaviorGraph json.RawMessage `json:"EXT_behavior_graph,omitempty"`
}

// Extras is free-form JSON-compatible user data.
type Extras map[string]any

// Clone deep-copies the extras so snapshots never alias live node state.
func (x Extras) Clone() Extras {
	if x == nil {
		return nil
	}
	var out Extras
	if err := copier.CopyWithOption(&out, &x, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on mismatched kinds, which a map-to-map copy never is
		panic(err)
	}
	return out
}
