// Package behaviour holds the attachable state objects of entities and
// scenes: the Behaviour contract, the deduplicating Container and the tag
// table used to construct replicated behaviours on clients.
package behaviour

import (
	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/wire"
)

// Tag identifies a replicated behaviour type on the wire.
type Tag uint8

// Behaviour is any state attached to an entity or a scene. Equal must be
// value based and return false for a different concrete type.
type Behaviour interface {
	Clone() Behaviour
	Equal(other Behaviour) bool
}

// Replicated is a Behaviour the server mirrors to clients. Its codec methods
// follow the diff.Codec contract with the receiver as the new value; Parse
// mutates the receiver, so callers parse into a clone of the old value.
type Replicated interface {
	Behaviour
	Tag() Tag
	DirtyBitsSize() int
	Compare(old Replicated, bits *diff.Bitset)
	Serialize(old Replicated, w *wire.Writer, bits *diff.Bitset)
	Parse(r *wire.Reader, bits *diff.Bitset)
}
