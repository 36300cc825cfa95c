// Package replication mirrors a server-owned scene to clients: the
// Broadcaster diffs the scene against the last broadcast snapshot and the
// Applier rebuilds the scene on the client from those diffs.
package replication

import (
	"errors"
	"fmt"

	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/scene"
	"github.com/zeusync/netsync/internal/core/wire"
)

// Op says how an update entry changes an object.
type Op uint8

const (
	OpAdded Op = iota + 1
	OpRemoved
	OpDiff
)

func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpRemoved:
		return "removed"
	case OpDiff:
		return "diff"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Scene update payload:
//
//	sequence   varint
//	baseline   bool
//	count      u32
//	entries    count x {id u32, type u8, op u8, body}
//	scene      bool, then the scene behaviour container when true
//
// Added bodies are object baselines, Diff bodies carry the object dirty
// bitset and the changed fields, Removed bodies are empty.
type updateHeader struct {
	Sequence uint64
	Baseline bool
	Count    uint32
}

func (h updateHeader) write(w *wire.Writer) {
	w.WriteVarint(h.Sequence)
	w.WriteBool(h.Baseline)
	w.WriteUint32(h.Count)
}

func readUpdateHeader(r *wire.Reader) updateHeader {
	return updateHeader{
		Sequence: r.ReadVarint(),
		Baseline: r.ReadBool(),
		Count:    r.ReadUint32(),
	}
}

type entryHeader struct {
	ID   scene.ObjectID
	Type scene.TypeTag
	Op   Op
}

func (e entryHeader) write(w *wire.Writer) {
	w.WriteUint32(uint32(e.ID))
	w.WriteUint8(uint8(e.Type))
	w.WriteUint8(uint8(e.Op))
}

func readEntryHeader(r *wire.Reader) entryHeader {
	return entryHeader{
		ID:   scene.ObjectID(r.ReadUint32()),
		Type: scene.TypeTag(r.ReadUint8()),
		Op:   Op(r.ReadUint8()),
	}
}

var (
	ErrUnknownObject = errors.New("update references unknown object")
	ErrDuplicate     = errors.New("update adds an existing object")
	ErrUnknownOp     = errors.New("unknown entry op")
	ErrDesynced      = errors.New("desynced, waiting for baseline")
)

// classify turns a decode failure into the protocol error reported to the
// host. Every such error is fatal for the connection.
func classify(err error) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}
	switch {
	case errors.Is(err, diff.ErrBitsetSize):
		return protocol.NewProtocolError(protocol.ErrorCodeBitsetMismatch, "scene update", err)
	case errors.Is(err, behaviour.ErrUnknownTag):
		return protocol.NewProtocolError(protocol.ErrorCodeUnknownTypeTag, "scene update", err)
	default:
		return protocol.NewProtocolError(protocol.ErrorCodeMalformedUpdate, "scene update", err)
	}
}
