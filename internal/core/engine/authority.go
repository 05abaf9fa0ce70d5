package engine

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
)

var (
	ErrNotFound       = errors.New("engine: entity not found")
	ErrInvalidPayload = errors.New("engine: invalid payload")
	ErrInUse          = errors.New("engine: entity still referenced")
)

// Authority owns the one document every other context mirrors. Entity calls
// and Tick are serialized, so the UI may call in from any goroutine.
type Authority struct {
	mu    sync.Mutex
	doc   *scene.Document
	graph *scene.Graph
	log   log.Log
}

func NewAuthority(doc *scene.Document, sender scene.Sender, logger log.Log) *Authority {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Authority{
		doc:   doc,
		graph: scene.NewGraph(doc, sender),
		log:   logger.With(log.Component("engine.authority")),
	}
}

// Do runs fn with exclusive access to the document. Changes fn makes go out
// on the next Tick.
func (a *Authority) Do(fn func(doc *scene.Document, regs *scene.Registries) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.doc, a.graph.Registries())
}

// Create builds an entity of kind from its JSON snapshot and returns the
// minted id. References inside raw must name ids this authority issued.
func (a *Authority) Create(kind scene.Kind, raw []byte) (scene.ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.graph.Registries()
	switch kind {
	case scene.KindBuffer:
		return create(r.Buffers, raw)
	case scene.KindAccessor:
		return create(r.Accessors, raw)
	case scene.KindTexture:
		return create(r.Textures, raw)
	case scene.KindMaterial:
		return create(r.Materials, raw)
	case scene.KindPrimitive:
		return create(r.Primitives, raw)
	case scene.KindMesh:
		return create(r.Meshes, raw)
	case scene.KindNode:
		return create(r.Nodes, raw)
	}
	return "", errors.Wrapf(ErrInvalidPayload, "unknown kind %d", kind)
}

// Update applies a partial snapshot. Only the fields present in raw change.
func (a *Authority) Update(kind scene.Kind, id scene.ID, raw []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.graph.Registries()
	switch kind {
	case scene.KindBuffer:
		return update(r.Buffers, id, raw)
	case scene.KindAccessor:
		return update(r.Accessors, id, raw)
	case scene.KindTexture:
		return update(r.Textures, id, raw)
	case scene.KindMaterial:
		return update(r.Materials, id, raw)
	case scene.KindPrimitive:
		return update(r.Primitives, id, raw)
	case scene.KindMesh:
		return update(r.Meshes, id, raw)
	case scene.KindNode:
		return update(r.Nodes, id, raw)
	}
	return errors.Wrapf(ErrInvalidPayload, "unknown kind %d", kind)
}

// Dispose removes an entity. Disposing an unknown id does nothing. A buffer an
// accessor still reads from is refused with ErrInUse.
func (a *Authority) Dispose(kind scene.Kind, id scene.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.graph.Registries()
	switch kind {
	case scene.KindBuffer:
		b, ok := r.Buffers.Get(id)
		if !ok {
			return nil
		}
		for _, acc := range a.doc.Accessors() {
			if acc.Buffer() == b {
				return errors.Wrapf(ErrInUse, "buffer %s", id)
			}
		}
		b.Dispose()
	case scene.KindAccessor:
		dispose(r.Accessors, id)
	case scene.KindTexture:
		dispose(r.Textures, id)
	case scene.KindMaterial:
		dispose(r.Materials, id)
	case scene.KindPrimitive:
		dispose(r.Primitives, id)
	case scene.KindMesh:
		dispose(r.Meshes, id)
	case scene.KindNode:
		dispose(r.Nodes, id)
	default:
		return errors.Wrapf(ErrInvalidPayload, "unknown kind %d", kind)
	}
	return nil
}

// Get returns the current snapshot of one entity.
func (a *Authority) Get(kind scene.Kind, id scene.ID) (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.graph.Registries()
	switch kind {
	case scene.KindBuffer:
		return get(r.Buffers, id)
	case scene.KindAccessor:
		return get(r.Accessors, id)
	case scene.KindTexture:
		return get(r.Textures, id)
	case scene.KindMaterial:
		return get(r.Materials, id)
	case scene.KindPrimitive:
		return get(r.Primitives, id)
	case scene.KindMesh:
		return get(r.Meshes, id)
	case scene.KindNode:
		return get(r.Nodes, id)
	}
	return nil, errors.Wrapf(ErrInvalidPayload, "unknown kind %d", kind)
}

// Tick sends everything that changed since the previous Tick.
func (a *Authority) Tick() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.graph.ProcessChanges(); err != nil {
		a.log.Error("process changes failed", log.Error(err))
		return errors.WithMessage(err, "process changes")
	}
	return nil
}

// Snapshot replays the whole document to s as creates.
func (a *Authority) Snapshot(s scene.Sender) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.graph.Snapshot(s)
}

// join flushes pending changes to the current receivers, replays the whole
// document to s, then runs add so s sees every change from here on. Holding
// the lock throughout keeps s from missing or repeating anything.
func (a *Authority) join(s scene.Sender, add func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.graph.ProcessChanges(); err != nil {
		return errors.WithMessage(err, "process changes")
	}
	if err := a.graph.Snapshot(s); err != nil {
		return errors.WithMessage(err, "snapshot")
	}
	add()
	return nil
}

func (a *Authority) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.graph.Close()
}

func create[T scene.Entity, J any](r *scene.Registry[T, J], raw []byte) (scene.ID, error) {
	var j J
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &j); err != nil {
			return "", errors.Wrapf(ErrInvalidPayload, "%s: %v", r.Kind(), err)
		}
	}
	id, _, err := r.Create(&j, "")
	return id, err
}

func update[T scene.Entity, J any](r *scene.Registry[T, J], id scene.ID, raw []byte) error {
	obj, ok := r.Get(id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s %s", r.Kind(), id)
	}
	var j J
	if err := json.Unmarshal(raw, &j); err != nil {
		return errors.Wrapf(ErrInvalidPayload, "%s %s: %v", r.Kind(), id, err)
	}
	return errors.WithMessagef(r.ApplyJSON(obj, j), "update %s %s", r.Kind(), id)
}

func dispose[T scene.Entity, J any](r *scene.Registry[T, J], id scene.ID) {
	if obj, ok := r.Get(id); ok {
		obj.Dispose()
	}
}

func get[T scene.Entity, J any](r *scene.Registry[T, J], id scene.ID) (json.RawMessage, error) {
	obj, ok := r.Get(id)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s %s", r.Kind(), id)
	}
	j, err := r.ToJSON(obj)
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}
