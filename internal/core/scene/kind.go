// Package scene holds the document graph shared by every execution context:
// the six synced entity kinds, their registries, the change-diffing Graph run by
// the authority, and the Mirror that replays its messages elsewhere.
//
// Nothing in this package is safe for concurrent use. Each context owns its own
// Document and Graph outright and touches them from a single goroutine.
package scene

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ID is an entity's stable identity, minted once and never reused.
type ID string

// NewID mints a random id.
func NewID() ID { return ID(uuid.NewString()) }

// Kind enumerates the synced entity kinds.
type Kind uint8

const (
	KindBuffer Kind = iota
	KindAccessor
	KindTexture
	KindMaterial
	KindPrimitive
	KindMesh
	KindNode
)

// Kinds lists every kind in dependency order. A kind only references kinds that
// precede it (nodes also reference other nodes, handled by post-order emission).
var Kinds = [...]Kind{KindBuffer, KindAccessor, KindTexture, KindMaterial, KindPrimitive, KindMesh, KindNode}

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindAccessor:
		return "accessor"
	case KindTexture:
		return "texture"
	case KindMaterial:
		return "material"
	case KindPrimitive:
		return "primitive"
	case KindMesh:
		return "mesh"
	case KindNode:
		return "node"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

var (
	// ErrUnresolved reports a relational id that is not present in the target
	// registry. Seen on a receiver it means the sender broke emission order.
	ErrUnresolved = errors.New("scene: unresolved reference")
	// ErrProtocol reports a message stream that violates per-id ordering.
	ErrProtocol = errors.New("scene: protocol violation")
	// ErrDuplicateID reports an attempt to register an id twice.
	ErrDuplicateID = errors.New("scene: duplicate id")
	// ErrInvalidValue reports a snapshot field holding an out-of-range value.
	ErrInvalidValue = errors.New("scene: invalid value")
)
