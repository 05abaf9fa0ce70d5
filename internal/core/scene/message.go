package scene

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Op is the lifecycle step a scene message carries.
type Op uint8

const (
	OpCreate Op = iota
	OpChange
	OpDispose
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpChange:
		return "change"
	case OpDispose:
		return "dispose"
	default:
		return "unknown"
	}
}

// Subject builds the wire subject for op on kind, e.g. "change_node".
func Subject(op Op, kind Kind) string {
	return op.String() + "_" + kind.String()
}

// ParseSubject is the inverse of Subject.
func ParseSubject(subject string) (Op, Kind, bool) {
	prefix, name, ok := strings.Cut(subject, "_")
	if !ok {
		return 0, 0, false
	}
	kind, ok := ParseKind(name)
	if !ok {
		return 0, 0, false
	}
	for _, op := range [...]Op{OpCreate, OpChange, OpDispose} {
		if op.String() == prefix {
			return op, kind, true
		}
	}
	return 0, 0, false
}

// Subjects lists every scene-sync subject.
func Subjects() []string {
	out := make([]string, 0, 3*len(Kinds))
	for _, op := range [...]Op{OpCreate, OpChange, OpDispose} {
		for _, k := range Kinds {
			out = append(out, Subject(op, k))
		}
	}
	return out
}

// EntityMessage is the payload of create_<kind> (full snapshot) and
// change_<kind> (exactly one field set).
type EntityMessage[J any] struct {
	ID   ID `json:"id"`
	JSON J  `json:"json"`
}

func (m EntityMessage[J]) EntityID() ID { return m.ID }

// DisposeMessage is the payload of dispose_<kind>.
type DisposeMessage struct {
	ID ID `json:"id"`
}

func (m DisposeMessage) EntityID() ID { return m.ID }

// Sender is the outbound side of a scene-sync channel.
type Sender interface {
	Send(subject string, data any) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(subject string, data any) error

func (f SenderFunc) Send(subject string, data any) error { return f(subject, data) }

// decode accepts a typed payload as sent by in-process channels or its JSON
// encoding as delivered by network channels.
func decode[M any](data any) (M, error) {
	var msg M
	switch v := data.(type) {
	case M:
		return v, nil
	case *M:
		if v == nil {
			return msg, errors.Wrap(ErrProtocol, "nil payload")
		}
		return *v, nil
	case json.RawMessage:
		return msg, unmarshal(v, &msg)
	case []byte:
		return msg, unmarshal(v, &msg)
	case string:
		return msg, unmarshal([]byte(v), &msg)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return msg, errors.Wrap(ErrProtocol, err.Error())
		}
		return msg, unmarshal(raw, &msg)
	}
}

func unmarshal(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(ErrProtocol, err.Error())
	}
	return nil
}

// messageID extracts the entity id from any scene payload.
func messageID(data any) (ID, error) {
	if m, ok := data.(interface{ EntityID() ID }); ok {
		return m.EntityID(), nil
	}
	msg, err := decode[DisposeMessage](data)
	return msg.ID, err
}
