package behaviour

import (
	"errors"
	"fmt"

	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/wire"
)

const maxSlots = 1024

var ErrMalformedContainer = errors.New("malformed behaviour container")

// ContainerCodec encodes the replicated behaviours of a Container by slot.
//
// Incremental form: slot count, one dirty bit per slot, then for every dirty
// slot its tag followed by either an item diff (the previous occupant of the
// slot has the same tag) or a full baseline of the new occupant. Slots past
// the count are removed. Local behaviours never go on the wire and are kept
// on the receiving side.
type ContainerCodec struct {
	registry *Registry
}

func NewContainerCodec(registry *Registry) *ContainerCodec {
	return &ContainerCodec{registry: registry}
}

func (cc *ContainerCodec) Registry() *Registry { return cc.registry }

// Changed reports whether an incremental encoding of newC against oldC would
// carry any slot.
func (cc *ContainerCodec) Changed(newC, oldC *Container) bool {
	next, prev := newC.Replicated(), oldC.Replicated()
	if len(next) != len(prev) {
		return true
	}
	for i := range next {
		if slotChanged(next[i], prev[i]) {
			return true
		}
	}
	return false
}

func slotChanged(next, prev Replicated) bool {
	if next.Tag() != prev.Tag() {
		return true
	}
	bits := diff.NewBitset(next.DirtyBitsSize())
	next.Compare(prev, bits)
	return bits.Any()
}

func (cc *ContainerCodec) EncodeBaseline(w *wire.Writer, c *Container) {
	slots := c.Replicated()
	w.WriteVarint(uint64(len(slots)))
	for _, item := range slots {
		w.WriteUint8(uint8(item.Tag()))
		item.Serialize(nil, w, nil)
	}
}

func (cc *ContainerCodec) Encode(w *wire.Writer, newC, oldC *Container) {
	next, prev := newC.Replicated(), oldC.Replicated()
	w.WriteVarint(uint64(len(next)))

	slots := diff.NewBitset(len(next))
	for i := range next {
		slots.Mark(i, i >= len(prev) || slotChanged(next[i], prev[i]))
	}
	slots.Write(w)

	for i, item := range next {
		if !slots.Has(i) {
			continue
		}
		w.WriteUint8(uint8(item.Tag()))
		if i < len(prev) && prev[i].Tag() == item.Tag() {
			bits := diff.NewBitset(item.DirtyBitsSize())
			item.Compare(prev[i], bits)
			bits.Write(w)
			item.Serialize(prev[i], w, bits)
			continue
		}
		item.Serialize(nil, w, nil)
	}
}

// DecodeBaseline reads a full container. The local behaviours of base are
// carried over; its replicated behaviours are replaced. Failures are
// reported through the reader.
func (cc *ContainerCodec) DecodeBaseline(r *wire.Reader, base *Container) *Container {
	out := base.Local()
	n := readSlotCount(r)
	for i := 0; i < n && r.Err() == nil; i++ {
		item, ok := cc.newItem(r, Tag(r.ReadUint8()))
		if !ok {
			break
		}
		item.Parse(r, nil)
		out.push(item)
	}
	return out
}

// Decode reads an incremental container against old, the same reference the
// encoder used. Failures are reported through the reader.
func (cc *ContainerCodec) Decode(r *wire.Reader, old *Container) *Container {
	out := old.Local()
	prev := old.Replicated()
	n := readSlotCount(r)
	slots := diff.ReadBitset(r, n)

	for i := 0; i < n && r.Err() == nil; i++ {
		if !slots.Has(i) {
			if i >= len(prev) {
				r.Fail(fmt.Errorf("%w: slot %d unchanged without reference", ErrMalformedContainer, i))
				break
			}
			out.push(prev[i].Clone())
			continue
		}

		tag := Tag(r.ReadUint8())
		if i < len(prev) && prev[i].Tag() == tag {
			item := prev[i].Clone().(Replicated)
			bits := diff.ReadBitset(r, item.DirtyBitsSize())
			if r.Err() != nil {
				break
			}
			item.Parse(r, bits)
			out.push(item)
			continue
		}

		item, ok := cc.newItem(r, tag)
		if !ok {
			break
		}
		item.Parse(r, nil)
		out.push(item)
	}
	return out
}

func (cc *ContainerCodec) newItem(r *wire.Reader, tag Tag) (Replicated, bool) {
	if r.Err() != nil {
		return nil, false
	}
	item, err := cc.registry.New(tag)
	if err != nil {
		r.Fail(err)
		return nil, false
	}
	return item, true
}

func readSlotCount(r *wire.Reader) int {
	n := r.ReadVarint()
	if n > maxSlots {
		r.Fail(fmt.Errorf("%w: %d slots", ErrMalformedContainer, n))
		return 0
	}
	return int(n)
}
