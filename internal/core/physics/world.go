// Package physics derives rigid bodies and colliders from scene nodes that
// carry a collider extension and keeps them in step with the scene graph.
//
// The simulation itself sits behind World. MemoryWorld is the in-process
// implementation the engine and tests run against.
package physics

import (
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/scene"
)

var (
	ErrUnknownBody     = errors.New("physics: unknown body")
	ErrUnknownCollider = errors.New("physics: unknown collider")
	ErrInvalidShape    = errors.New("physics: invalid shape")
)

type (
	BodyHandle     uint32
	ColliderHandle uint32
)

type BodyKind uint8

const (
	Kinematic BodyKind = iota
	Dynamic
)

// Pose is a rigid transform. Rotation is a quaternion in x, y, z, w order.
type Pose struct {
	Translation [3]float32
	Rotation    [4]float32
}

// Identity is the pose at the origin with no rotation.
var Identity = Pose{Rotation: [4]float32{0, 0, 0, 1}}

// Shape is a collider shape in body space. Box uses HalfExtents, sphere uses
// Radius, cylinder and capsule use Radius and HalfHeight, and trimesh uses
// Vertices (flattened xyz) with Indices (three per triangle).
type Shape struct {
	Type        scene.ColliderType
	HalfExtents [3]float32
	Radius      float32
	HalfHeight  float32
	Vertices    []float32
	Indices     []uint32
}

func (s Shape) Validate() error {
	switch s.Type {
	case scene.ColliderBox:
		if s.HalfExtents[0] <= 0 || s.HalfExtents[1] <= 0 || s.HalfExtents[2] <= 0 {
			return errors.Wrap(ErrInvalidShape, "box needs positive extents")
		}
	case scene.ColliderSphere:
		if s.Radius <= 0 {
			return errors.Wrap(ErrInvalidShape, "sphere needs a positive radius")
		}
	case scene.ColliderCylinder, scene.ColliderCapsule:
		if s.Radius <= 0 || s.HalfHeight < 0 {
			return errors.Wrapf(ErrInvalidShape, "%s needs a positive radius", s.Type)
		}
	case scene.ColliderTrimesh:
		if len(s.Indices) == 0 || len(s.Indices)%3 != 0 || len(s.Vertices)%3 != 0 {
			return errors.Wrap(ErrInvalidShape, "trimesh needs whole triangles")
		}
		for _, i := range s.Indices {
			if int(i)*3+2 >= len(s.Vertices) {
				return errors.Wrapf(ErrInvalidShape, "trimesh index %d out of range", i)
			}
		}
	default:
		return errors.Wrapf(ErrInvalidShape, "unknown type %q", s.Type)
	}
	return nil
}

// Hit is the nearest collider struck by a ray.
type Hit struct {
	Body     BodyHandle
	Collider ColliderHandle
	Distance float32
	Point    [3]float32
}

// World is the boundary to the rigid-body simulation. Calls come from the
// physics context's goroutine only.
type World interface {
	CreateBody(kind BodyKind, pose Pose) BodyHandle
	// RemoveBody removes the body and every collider attached to it.
	RemoveBody(h BodyHandle)
	SetBodyPose(h BodyHandle, pose Pose) error
	BodyPose(h BodyHandle) (Pose, error)
	SetLinearVelocity(h BodyHandle, v [3]float32) error
	LinearVelocity(h BodyHandle) ([3]float32, error)

	CreateCollider(body BodyHandle, shape Shape, groups Groups) (ColliderHandle, error)
	RemoveCollider(h ColliderHandle)
	SetColliderShape(h ColliderHandle, shape Shape) error

	// CastRay returns the nearest collider within maxDist along dir whose
	// groups interact with filter.
	CastRay(origin, dir [3]float32, maxDist float32, filter Groups) (Hit, bool)
	// Step advances dynamic bodies by dt seconds.
	Step(dt float32)
}
