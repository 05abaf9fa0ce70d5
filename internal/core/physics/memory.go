package physics

import (
	"slices"
	"sort"
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

var _ World = (*MemoryWorld)(nil)

// Stats counts world mutations. Tests use it to assert exactly which objects a
// scene change touched.
type Stats struct {
	BodiesCreated    int
	BodiesRemoved    int
	CollidersCreated int
	CollidersRemoved int
	Reshapes         int
	PoseUpdates      int
}

type memBody struct {
	kind      BodyKind
	pose      Pose
	velocity  [3]float32
	colliders []ColliderHandle
}

type memCollider struct {
	body   BodyHandle
	shape  Shape
	groups Groups
	lo, hi [3]float32 // body-space bounds
}

// MemoryWorld is a World without contact resolution: bodies move only by pose
// updates and velocity integration, and ray casts test world-space bounding
// boxes.
type MemoryWorld struct {
	mu        sync.RWMutex
	bodies    map[BodyHandle]*memBody
	colliders map[ColliderHandle]*memCollider
	next      uint32
	stats     Stats
}

func NewMemoryWorld() *MemoryWorld {
	return &MemoryWorld{
		bodies:    make(map[BodyHandle]*memBody),
		colliders: make(map[ColliderHandle]*memCollider),
	}
}

func (w *MemoryWorld) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Bodies returns the live body handles in ascending order.
func (w *MemoryWorld) Bodies() []BodyHandle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]BodyHandle, 0, len(w.bodies))
	for h := range w.bodies {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Colliders returns the colliders attached to body.
func (w *MemoryWorld) Colliders(body BodyHandle) []ColliderHandle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if b, ok := w.bodies[body]; ok {
		return slices.Clone(b.colliders)
	}
	return nil
}

// Shape returns a collider's current shape.
func (w *MemoryWorld) Shape(h ColliderHandle) (Shape, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if c, ok := w.colliders[h]; ok {
		return c.shape, true
	}
	return Shape{}, false
}

func (w *MemoryWorld) CreateBody(kind BodyKind, pose Pose) BodyHandle {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	h := BodyHandle(w.next)
	w.bodies[h] = &memBody{kind: kind, pose: pose}
	w.stats.BodiesCreated++
	return h
}

func (w *MemoryWorld) RemoveBody(h BodyHandle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[h]
	if !ok {
		return
	}
	for _, c := range b.colliders {
		delete(w.colliders, c)
		w.stats.CollidersRemoved++
	}
	delete(w.bodies, h)
	w.stats.BodiesRemoved++
}

func (w *MemoryWorld) SetBodyPose(h BodyHandle, pose Pose) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[h]
	if !ok {
		return errors.Wrapf(ErrUnknownBody, "body %d", h)
	}
	b.pose = pose
	w.stats.PoseUpdates++
	return nil
}

func (w *MemoryWorld) BodyPose(h BodyHandle) (Pose, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[h]
	if !ok {
		return Pose{}, errors.Wrapf(ErrUnknownBody, "body %d", h)
	}
	return b.pose, nil
}

func (w *MemoryWorld) SetLinearVelocity(h BodyHandle, v [3]float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[h]
	if !ok {
		return errors.Wrapf(ErrUnknownBody, "body %d", h)
	}
	b.velocity = v
	return nil
}

func (w *MemoryWorld) LinearVelocity(h BodyHandle) ([3]float32, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[h]
	if !ok {
		return [3]float32{}, errors.Wrapf(ErrUnknownBody, "body %d", h)
	}
	return b.velocity, nil
}

func (w *MemoryWorld) CreateCollider(body BodyHandle, shape Shape, groups Groups) (ColliderHandle, error) {
	if err := shape.Validate(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.bodies[body]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownBody, "body %d", body)
	}
	w.next++
	h := ColliderHandle(w.next)
	c := &memCollider{body: body, shape: shape, groups: groups}
	c.lo, c.hi = shapeBounds(shape)
	w.colliders[h] = c
	b.colliders = append(b.colliders, h)
	w.stats.CollidersCreated++
	return h, nil
}

func (w *MemoryWorld) RemoveCollider(h ColliderHandle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.colliders[h]
	if !ok {
		return
	}
	if b, ok := w.bodies[c.body]; ok {
		b.colliders = slices.DeleteFunc(b.colliders, func(x ColliderHandle) bool { return x == h })
	}
	delete(w.colliders, h)
	w.stats.CollidersRemoved++
}

func (w *MemoryWorld) SetColliderShape(h ColliderHandle, shape Shape) error {
	if err := shape.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.colliders[h]
	if !ok {
		return errors.Wrapf(ErrUnknownCollider, "collider %d", h)
	}
	c.shape = shape
	c.lo, c.hi = shapeBounds(shape)
	w.stats.Reshapes++
	return nil
}

func (w *MemoryWorld) Step(dt float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range w.bodies {
		if b.kind != Dynamic {
			continue
		}
		for i := range b.pose.Translation {
			b.pose.Translation[i] += b.velocity[i] * dt
		}
	}
}

func (w *MemoryWorld) CastRay(origin, dir [3]float32, maxDist float32, filter Groups) (Hit, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	handles := make([]ColliderHandle, 0, len(w.colliders))
	for h := range w.colliders {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	best, found := Hit{Distance: maxDist}, false
	for _, h := range handles {
		c := w.colliders[h]
		if !Interacts(c.groups, filter) {
			continue
		}
		lo, hi := worldBounds(c.lo, c.hi, w.bodies[c.body].pose)
		d, ok := rayBox(origin, dir, lo, hi)
		if !ok || d > best.Distance || (found && d == best.Distance) {
			continue
		}
		best = Hit{Body: c.body, Collider: h, Distance: d}
		found = true
	}
	if found {
		for i := range best.Point {
			best.Point[i] = origin[i] + dir[i]*best.Distance
		}
	}
	return best, found
}

func shapeBounds(s Shape) (lo, hi [3]float32) {
	switch s.Type {
	case "box":
		return [3]float32{-s.HalfExtents[0], -s.HalfExtents[1], -s.HalfExtents[2]}, s.HalfExtents
	case "sphere":
		r := s.Radius
		return [3]float32{-r, -r, -r}, [3]float32{r, r, r}
	case "cylinder":
		r, h := s.Radius, s.HalfHeight
		return [3]float32{-r, -h, -r}, [3]float32{r, h, r}
	case "capsule":
		r, h := s.Radius, s.HalfHeight+s.Radius
		return [3]float32{-r, -h, -r}, [3]float32{r, h, r}
	}
	lo = [3]float32{math32.Inf(1), math32.Inf(1), math32.Inf(1)}
	hi = [3]float32{math32.Inf(-1), math32.Inf(-1), math32.Inf(-1)}
	for i := 0; i+2 < len(s.Vertices); i += 3 {
		for a := 0; a < 3; a++ {
			lo[a] = math32.Min(lo[a], s.Vertices[i+a])
			hi[a] = math32.Max(hi[a], s.Vertices[i+a])
		}
	}
	return lo, hi
}

// worldBounds rotates the eight corners of a body-space box by the pose and
// returns their axis-aligned bounds.
func worldBounds(lo, hi [3]float32, pose Pose) (wlo, whi [3]float32) {
	q := mgl32.Quat{W: pose.Rotation[3], V: mgl32.Vec3{pose.Rotation[0], pose.Rotation[1], pose.Rotation[2]}}
	wlo = [3]float32{math32.Inf(1), math32.Inf(1), math32.Inf(1)}
	whi = [3]float32{math32.Inf(-1), math32.Inf(-1), math32.Inf(-1)}
	for corner := 0; corner < 8; corner++ {
		p := mgl32.Vec3{lo[0], lo[1], lo[2]}
		for a := 0; a < 3; a++ {
			if corner&(1<<a) != 0 {
				p[a] = hi[a]
			}
		}
		p = q.Rotate(p)
		for a := 0; a < 3; a++ {
			v := p[a] + pose.Translation[a]
			wlo[a] = math32.Min(wlo[a], v)
			whi[a] = math32.Max(whi[a], v)
		}
	}
	return wlo, whi
}

// rayBox is the slab test. It returns the entry distance, or 0 when the origin
// is inside the box.
func rayBox(origin, dir, lo, hi [3]float32) (float32, bool) {
	tmin, tmax := float32(0), math32.Inf(1)
	for a := 0; a < 3; a++ {
		if math32.Abs(dir[a]) < 1e-9 {
			if origin[a] < lo[a] || origin[a] > hi[a] {
				return 0, false
			}
			continue
		}
		inv := 1 / dir[a]
		t1, t2 := (lo[a]-origin[a])*inv, (hi[a]-origin[a])*inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math32.Max(tmin, t1)
		tmax = math32.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}
