package scene

import (
	"github.com/pkg/errors"
)

// Mirror replays an authority's message stream into a document of its own.
// Messages are applied eagerly in arrival order; a mirror never originates
// messages.
type Mirror struct {
	doc  *Document
	regs *Registries
}

func NewMirror(doc *Document) *Mirror {
	return &Mirror{doc: doc, regs: NewRegistries(doc, true)}
}

func (m *Mirror) Document() *Document     { return m.doc }
func (m *Mirror) Registries() *Registries { return m.regs }

// Handles reports whether subject is a scene-sync subject.
func (m *Mirror) Handles(subject string) bool {
	_, _, ok := ParseSubject(subject)
	return ok
}

// Apply replays one message. A change for an unknown id, a duplicate create,
// an unresolvable reference or an invalid value wraps ErrProtocol and means
// the stream is broken. A dispose for an unknown id is ignored.
func (m *Mirror) Apply(subject string, data any) error {
	op, kind, ok := ParseSubject(subject)
	if !ok {
		return errors.Wrapf(ErrProtocol, "unknown subject %q", subject)
	}
	var err error
	r := m.regs
	switch kind {
	case KindBuffer:
		err = replay(r.Buffers, op, data)
	case KindAccessor:
		err = replay(r.Accessors, op, data)
	case KindTexture:
		err = replay(r.Textures, op, data)
	case KindMaterial:
		err = replay(r.Materials, op, data)
	case KindPrimitive:
		err = replay(r.Primitives, op, data)
	case KindMesh:
		err = replay(r.Meshes, op, data)
	case KindNode:
		err = replay(r.Nodes, op, data)
	}
	if err == nil {
		return nil
	}
	if (errors.Is(err, ErrUnresolved) || errors.Is(err, ErrInvalidValue)) && !errors.Is(err, ErrProtocol) {
		err = protocolError{err}
	}
	return errors.WithMessage(err, subject)
}

func replay[T Entity, J any](r *Registry[T, J], op Op, data any) error {
	switch op {
	case OpCreate:
		msg, err := decode[EntityMessage[J]](data)
		if err != nil {
			return err
		}
		if msg.ID == "" {
			return errors.Wrap(ErrProtocol, "create without id")
		}
		if _, ok := r.Get(msg.ID); ok {
			return errors.Wrapf(ErrProtocol, "duplicate create %s", msg.ID)
		}
		_, _, err = r.Create(&msg.JSON, msg.ID)
		return err
	case OpChange:
		msg, err := decode[EntityMessage[J]](data)
		if err != nil {
			return err
		}
		obj, ok := r.Get(msg.ID)
		if !ok {
			return errors.Wrapf(ErrProtocol, "change before create %s", msg.ID)
		}
		return r.ApplyJSON(obj, msg.JSON)
	case OpDispose:
		msg, err := decode[DisposeMessage](data)
		if err != nil {
			return err
		}
		obj, ok := r.Get(msg.ID)
		if !ok {
			return nil
		}
		if b, ok := any(obj).(*Buffer); ok {
			if b.referrer() != nil {
				return errors.Wrapf(ErrProtocol, "dispose of buffer %s still referenced", msg.ID)
			}
		}
		r.Remove(msg.ID)
		obj.Dispose()
		return nil
	}
	return errors.Wrapf(ErrProtocol, "unknown op %d", op)
}

// protocolError marks a decoding failure as breaking the stream while keeping
// its cause reachable through errors.Is.
type protocolError struct{ err error }

func (e protocolError) Error() string        { return ErrProtocol.Error() + ": " + e.err.Error() }
func (e protocolError) Is(target error) bool { return target == ErrProtocol }
func (e protocolError) Unwrap() error        { return e.err }
