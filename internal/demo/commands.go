// Package demo is a small arena game used by the binaries and the
// end-to-end tests. Players spawn units, steer them and damage each other;
// every rule is deterministic so peers fed the same turns stay identical.
package demo

import (
	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/wire"
)

const (
	TagSpawn command.Tag = iota + 1
	TagMove
	TagDamage
)

// Spawn creates a unit owned by the issuing player.
type Spawn struct {
	X, Z float32
}

func (c *Spawn) Clone() command.Command { v := *c; return &v }
func (c *Spawn) Serialize(w *wire.Writer) {
	w.WriteFloat32(c.X)
	w.WriteFloat32(c.Z)
}
func (c *Spawn) Deserialize(r *wire.Reader) error {
	c.X = r.ReadFloat32()
	c.Z = r.ReadFloat32()
	return r.Err()
}

// Move sets the velocity of a unit. Units owned by someone else are left
// alone.
type Move struct {
	Unit   uint32
	DX, DZ float32
}

func (c *Move) Clone() command.Command { v := *c; return &v }
func (c *Move) Serialize(w *wire.Writer) {
	w.WriteVarint(uint64(c.Unit))
	w.WriteFloat32(c.DX)
	w.WriteFloat32(c.DZ)
}
func (c *Move) Deserialize(r *wire.Reader) error {
	c.Unit = uint32(r.ReadVarint())
	c.DX = r.ReadFloat32()
	c.DZ = r.ReadFloat32()
	return r.Err()
}

// Damage lowers the health of any unit; a unit at zero is destroyed.
type Damage struct {
	Unit   uint32
	Amount int64
}

func (c *Damage) Clone() command.Command { v := *c; return &v }
func (c *Damage) Serialize(w *wire.Writer) {
	w.WriteVarint(uint64(c.Unit))
	w.WriteInt64(c.Amount)
}
func (c *Damage) Deserialize(r *wire.Reader) error {
	c.Unit = uint32(r.ReadVarint())
	c.Amount = r.ReadInt64()
	return r.Err()
}

// Commands returns a sealed registry with every demo command.
func Commands() *command.Registry {
	r := command.NewRegistry()
	r.MustRegister(TagSpawn, &Spawn{})
	r.MustRegister(TagMove, &Move{})
	r.MustRegister(TagDamage, &Damage{})
	r.Seal()
	return r
}
