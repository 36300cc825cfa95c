package demo

import (
	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/wire"
)

const (
	TagHealth behaviour.Tag = iota + 1
	TagOwner
	TagVelocity
	TagScore
)

type Health struct {
	Current int64
	Max     int64
}

func (h *Health) Clone() behaviour.Behaviour { v := *h; return &v }
func (h *Health) Equal(other behaviour.Behaviour) bool {
	o, ok := other.(*Health)
	return ok && *o == *h
}
func (h *Health) Tag() behaviour.Tag { return TagHealth }
func (h *Health) DirtyBitsSize() int { return 2 }
func (h *Health) Compare(old behaviour.Replicated, bits *diff.Bitset) {
	o := old.(*Health)
	bits.Mark(0, h.Current != o.Current)
	bits.Mark(1, h.Max != o.Max)
}
func (h *Health) Serialize(_ behaviour.Replicated, w *wire.Writer, bits *diff.Bitset) {
	if bits.Has(0) {
		w.WriteInt64(h.Current)
	}
	if bits.Has(1) {
		w.WriteInt64(h.Max)
	}
}
func (h *Health) Parse(r *wire.Reader, bits *diff.Bitset) {
	if bits.Has(0) {
		h.Current = r.ReadInt64()
	}
	if bits.Has(1) {
		h.Max = r.ReadInt64()
	}
}

type Owner struct {
	Player uint8
}

func (o *Owner) Clone() behaviour.Behaviour { v := *o; return &v }
func (o *Owner) Equal(other behaviour.Behaviour) bool {
	x, ok := other.(*Owner)
	return ok && *x == *o
}
func (o *Owner) Tag() behaviour.Tag { return TagOwner }
func (o *Owner) DirtyBitsSize() int { return 1 }
func (o *Owner) Compare(old behaviour.Replicated, bits *diff.Bitset) {
	bits.Mark(0, o.Player != old.(*Owner).Player)
}
func (o *Owner) Serialize(_ behaviour.Replicated, w *wire.Writer, bits *diff.Bitset) {
	if bits.Has(0) {
		w.WriteUint8(o.Player)
	}
}
func (o *Owner) Parse(r *wire.Reader, bits *diff.Bitset) {
	if bits.Has(0) {
		o.Player = r.ReadUint8()
	}
}

// Velocity is in units per second on the ground plane.
type Velocity struct {
	X, Z float32
}

func (v *Velocity) Clone() behaviour.Behaviour { c := *v; return &c }
func (v *Velocity) Equal(other behaviour.Behaviour) bool {
	o, ok := other.(*Velocity)
	return ok && *o == *v
}
func (v *Velocity) Tag() behaviour.Tag { return TagVelocity }
func (v *Velocity) DirtyBitsSize() int { return 2 }
func (v *Velocity) Compare(old behaviour.Replicated, bits *diff.Bitset) {
	o := old.(*Velocity)
	bits.Mark(0, v.X != o.X)
	bits.Mark(1, v.Z != o.Z)
}
func (v *Velocity) Serialize(_ behaviour.Replicated, w *wire.Writer, bits *diff.Bitset) {
	if bits.Has(0) {
		w.WriteFloat32(v.X)
	}
	if bits.Has(1) {
		w.WriteFloat32(v.Z)
	}
}
func (v *Velocity) Parse(r *wire.Reader, bits *diff.Bitset) {
	if bits.Has(0) {
		v.X = r.ReadFloat32()
	}
	if bits.Has(1) {
		v.Z = r.ReadFloat32()
	}
}

// Score is a scene-level behaviour counting destroyed units per player.
type Score struct {
	Kills [4]uint32
}

func (s *Score) Clone() behaviour.Behaviour { v := *s; return &v }
func (s *Score) Equal(other behaviour.Behaviour) bool {
	o, ok := other.(*Score)
	return ok && *o == *s
}
func (s *Score) Tag() behaviour.Tag { return TagScore }
func (s *Score) DirtyBitsSize() int { return len(s.Kills) }
func (s *Score) Compare(old behaviour.Replicated, bits *diff.Bitset) {
	o := old.(*Score)
	for i := range s.Kills {
		bits.Mark(i, s.Kills[i] != o.Kills[i])
	}
}
func (s *Score) Serialize(_ behaviour.Replicated, w *wire.Writer, bits *diff.Bitset) {
	for i, k := range s.Kills {
		if bits.Has(i) {
			w.WriteVarint(uint64(k))
		}
	}
}
func (s *Score) Parse(r *wire.Reader, bits *diff.Bitset) {
	for i := range s.Kills {
		if bits.Has(i) {
			s.Kills[i] = uint32(r.ReadVarint())
		}
	}
}

// Nameplate is client-side presentation state. It is never replicated.
type Nameplate struct {
	Text string
}

func (n *Nameplate) Clone() behaviour.Behaviour { v := *n; return &v }
func (n *Nameplate) Equal(other behaviour.Behaviour) bool {
	o, ok := other.(*Nameplate)
	return ok && *o == *n
}

// Behaviours returns the registry of every replicated demo behaviour.
func Behaviours() *behaviour.Registry {
	r := behaviour.NewRegistry()
	r.MustRegister(TagHealth, func() behaviour.Replicated { return &Health{} })
	r.MustRegister(TagOwner, func() behaviour.Replicated { return &Owner{} })
	r.MustRegister(TagVelocity, func() behaviour.Replicated { return &Velocity{} })
	r.MustRegister(TagScore, func() behaviour.Replicated { return &Score{} })
	return r
}
