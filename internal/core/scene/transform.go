package scene

import (
	"math"

	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/wire"
)

type Vector3 struct {
	X, Y, Z float32
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Scale(f float32) Vector3 {
	return Vector3{v.X * f, v.Y * f, v.Z * f}
}

// Lerp interpolates from v to o. Lerp(o, 1) returns o exactly.
func (v Vector3) Lerp(o Vector3, t float32) Vector3 {
	return Vector3{
		X: v.X*(1-t) + o.X*t,
		Y: v.Y*(1-t) + o.Y*t,
		Z: v.Z*(1-t) + o.Z*t,
	}
}

func (v Vector3) write(w *wire.Writer) {
	w.WriteFloat32(v.X)
	w.WriteFloat32(v.Y)
	w.WriteFloat32(v.Z)
}

func readVector3(r *wire.Reader) Vector3 {
	return Vector3{X: r.ReadFloat32(), Y: r.ReadFloat32(), Z: r.ReadFloat32()}
}

type Quaternion struct {
	X, Y, Z, W float32
}

func IdentityQuaternion() Quaternion { return Quaternion{W: 1} }

func (q Quaternion) dot(o Quaternion) float32 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Nlerp is a normalized linear interpolation along the shorter arc. t >= 1
// returns o unchanged.
func (q Quaternion) Nlerp(o Quaternion, t float32) Quaternion {
	if t >= 1 {
		return o
	}
	if q.dot(o) < 0 {
		o = Quaternion{-o.X, -o.Y, -o.Z, -o.W}
	}
	out := Quaternion{
		X: q.X*(1-t) + o.X*t,
		Y: q.Y*(1-t) + o.Y*t,
		Z: q.Z*(1-t) + o.Z*t,
		W: q.W*(1-t) + o.W*t,
	}
	n := float32(math.Sqrt(float64(out.dot(out))))
	if n == 0 {
		return o
	}
	return Quaternion{out.X / n, out.Y / n, out.Z / n, out.W / n}
}

func (q Quaternion) write(w *wire.Writer) {
	w.WriteFloat32(q.X)
	w.WriteFloat32(q.Y)
	w.WriteFloat32(q.Z)
	w.WriteFloat32(q.W)
}

func readQuaternion(r *wire.Reader) Quaternion {
	return Quaternion{X: r.ReadFloat32(), Y: r.ReadFloat32(), Z: r.ReadFloat32(), W: r.ReadFloat32()}
}

type Transform struct {
	Position Vector3
	Rotation Quaternion
	Scale    Vector3
}

func IdentityTransform() Transform {
	return Transform{Rotation: IdentityQuaternion(), Scale: Vector3{1, 1, 1}}
}

// At returns the identity transform moved to position.
func At(x, y, z float32) Transform {
	t := IdentityTransform()
	t.Position = Vector3{x, y, z}
	return t
}

// Lerp interpolates every component; f >= 1 returns to exactly.
func (t Transform) Lerp(to Transform, f float32) Transform {
	if f >= 1 {
		return to
	}
	return Transform{
		Position: t.Position.Lerp(to.Position, f),
		Rotation: t.Rotation.Nlerp(to.Rotation, f),
		Scale:    t.Scale.Lerp(to.Scale, f),
	}
}

const (
	transformPosition = iota
	transformRotation
	transformScale
	transformBits
)

// TransformCodec diffs a Transform with one dirty bit per component.
type TransformCodec struct{}

var _ diff.Codec[Transform] = TransformCodec{}

func (TransformCodec) DirtyBitsSize() int { return transformBits }

func (TransformCodec) Compare(newValue, oldValue Transform, bits *diff.Bitset) {
	bits.Mark(transformPosition, newValue.Position != oldValue.Position)
	bits.Mark(transformRotation, newValue.Rotation != oldValue.Rotation)
	bits.Mark(transformScale, newValue.Scale != oldValue.Scale)
}

func (TransformCodec) Serialize(newValue, _ Transform, w *wire.Writer, bits *diff.Bitset) {
	if bits.Has(transformPosition) {
		newValue.Position.write(w)
	}
	if bits.Has(transformRotation) {
		newValue.Rotation.write(w)
	}
	if bits.Has(transformScale) {
		newValue.Scale.write(w)
	}
}

func (TransformCodec) Parse(oldValue Transform, r *wire.Reader, bits *diff.Bitset) Transform {
	if bits.Has(transformPosition) {
		oldValue.Position = readVector3(r)
	}
	if bits.Has(transformRotation) {
		oldValue.Rotation = readQuaternion(r)
	}
	if bits.Has(transformScale) {
		oldValue.Scale = readVector3(r)
	}
	return oldValue
}
