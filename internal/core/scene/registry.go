package scene

import (
	"github.com/pkg/errors"
)

// Codec converts one kind between its live form and its JSON snapshot.
// ApplyJSON touches only the fields present in the partial.
type Codec[T Entity, J any] interface {
	New(doc *Document) T
	ToJSON(obj T) (J, error)
	ApplyJSON(obj T, partial J) error
}

// Registry maps ids to live entities of one kind. It is the only place that
// id↔object mapping lives.
type Registry[T Entity, J any] struct {
	kind    Kind
	doc     *Document
	codec   Codec[T, J]
	listing func() []T
	ids     map[T]ID
	objs    map[ID]T
	fresh   []T
	quiet   bool
}

func newRegistry[T Entity, J any](kind Kind, doc *Document, codec Codec[T, J], listing func() []T, quiet bool) *Registry[T, J] {
	return &Registry[T, J]{
		kind:    kind,
		doc:     doc,
		codec:   codec,
		listing: listing,
		ids:     make(map[T]ID),
		objs:    make(map[ID]T),
		quiet:   quiet,
	}
}

func (r *Registry[T, J]) Kind() Kind { return r.kind }

// Len is the number of registered entities.
func (r *Registry[T, J]) Len() int { return len(r.objs) }

// Create constructs an entity in the registry's document, applies json if
// given, and registers it under id (minted when empty).
func (r *Registry[T, J]) Create(json *J, id ID) (ID, T, error) {
	var zero T
	if id == "" {
		id = NewID()
	} else if _, ok := r.objs[id]; ok {
		return "", zero, errors.Wrapf(ErrDuplicateID, "%s %s", r.kind, id)
	}
	obj := r.codec.New(r.doc)
	if json != nil {
		if err := r.codec.ApplyJSON(obj, *json); err != nil {
			obj.Dispose()
			return "", zero, errors.Wrapf(err, "create %s %s", r.kind, id)
		}
	}
	r.register(obj, id)
	return id, obj, nil
}

// Process adopts an entity constructed elsewhere (the import path) without
// mutating it. An already-registered entity keeps its id.
func (r *Registry[T, J]) Process(obj T, id ID) ID {
	if existing, ok := r.ids[obj]; ok {
		return existing
	}
	if id == "" {
		id = NewID()
	}
	r.register(obj, id)
	return id
}

// ProcessChanges returns entities first seen since the previous call: those
// registered through Create or Process, and those found in the document listing
// without an id, which get one now. Entities disposed before being reported are
// dropped without ever being reported.
func (r *Registry[T, J]) ProcessChanges() []T {
	for _, obj := range r.listing() {
		if _, ok := r.ids[obj]; !ok {
			r.register(obj, NewID())
		}
	}
	fresh := r.fresh
	r.fresh = nil
	out := fresh[:0]
	for _, obj := range fresh {
		if obj.IsDisposed() {
			if id, ok := r.ids[obj]; ok {
				r.Remove(id)
			}
			continue
		}
		out = append(out, obj)
	}
	return out
}

func (r *Registry[T, J]) ApplyJSON(obj T, partial J) error {
	return r.codec.ApplyJSON(obj, partial)
}

func (r *Registry[T, J]) ToJSON(obj T) (J, error) {
	return r.codec.ToJSON(obj)
}

// GetID looks up an entity's id. A miss is not an error.
func (r *Registry[T, J]) GetID(obj T) (ID, bool) {
	id, ok := r.ids[obj]
	return id, ok
}

// Get looks up an entity by id. A miss is not an error.
func (r *Registry[T, J]) Get(id ID) (T, bool) {
	obj, ok := r.objs[id]
	return obj, ok
}

// Each visits registered entities in document listing order.
func (r *Registry[T, J]) Each(fn func(ID, T)) {
	for _, obj := range r.listing() {
		if id, ok := r.ids[obj]; ok {
			fn(id, obj)
		}
	}
}

// Remove frees the id slot. The id is never handed out again.
func (r *Registry[T, J]) Remove(id ID) {
	if obj, ok := r.objs[id]; ok {
		delete(r.ids, obj)
		delete(r.objs, id)
	}
}

func (r *Registry[T, J]) register(obj T, id ID) {
	r.ids[obj] = id
	r.objs[id] = obj
	if !r.quiet {
		r.fresh = append(r.fresh, obj)
	}
}

// ref returns the id of a referenced entity; nil references map to "".
func ref[T Entity, J any](r *Registry[T, J], obj T) (ID, error) {
	var zero T
	if obj == zero {
		return "", nil
	}
	id, ok := r.ids[obj]
	if !ok {
		return "", errors.Wrapf(ErrUnresolved, "unregistered %s", r.kind)
	}
	return id, nil
}

// resolve is the inverse of ref; "" resolves to nil.
func resolve[T Entity, J any](r *Registry[T, J], id ID) (T, error) {
	var zero T
	if id == "" {
		return zero, nil
	}
	obj, ok := r.objs[id]
	if !ok {
		return zero, errors.Wrapf(ErrUnresolved, "%s %s", r.kind, id)
	}
	return obj, nil
}
