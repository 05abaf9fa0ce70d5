package scene

import (
	"github.com/pkg/errors"
)

type lifecycle uint8

const (
	unseen lifecycle = iota
	live
	gone
)

type entityKey struct {
	kind Kind
	id   ID
}

// OrderChecker validates a message stream against per-entity ordering: one
// create, then any number of changes, then at most one dispose. Ids are never
// reused, so nothing may follow a dispose.
type OrderChecker struct {
	state map[entityKey]lifecycle
}

func NewOrderChecker() *OrderChecker {
	return &OrderChecker{state: make(map[entityKey]lifecycle)}
}

// Check records one message and reports an ErrProtocol violation if it is out
// of order. Subjects that are not scene-sync subjects are ignored.
func (c *OrderChecker) Check(subject string, data any) error {
	op, kind, ok := ParseSubject(subject)
	if !ok {
		return nil
	}
	id, err := messageID(data)
	if err != nil {
		return err
	}
	return c.Step(op, kind, id)
}

// Step is Check for an already parsed message.
func (c *OrderChecker) Step(op Op, kind Kind, id ID) error {
	key := entityKey{kind, id}
	st := c.state[key]
	switch {
	case op == OpCreate && st == unseen:
		c.state[key] = live
	case op == OpChange && st == live:
	case op == OpDispose && st == live:
		c.state[key] = gone
	default:
		return errors.Wrapf(ErrProtocol, "%s %s %s after %s", op, kind, id, st)
	}
	return nil
}

func (s lifecycle) String() string {
	switch s {
	case unseen:
		return "nothing"
	case live:
		return "create"
	default:
		return "dispose"
	}
}

// Wrap returns a Sender that checks every message before forwarding it. An
// out-of-order message is not forwarded.
func (c *OrderChecker) Wrap(s Sender) Sender {
	return SenderFunc(func(subject string, data any) error {
		if err := c.Check(subject, data); err != nil {
			return err
		}
		return s.Send(subject, data)
	})
}
