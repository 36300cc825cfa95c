package diff

import "github.com/zeusync/netsync/internal/core/wire"

// Codec is the dirty-bit contract every replicated value implements.
//
// Compare sets one bit per field that differs between newValue and oldValue.
// Serialize writes field i only when bits.Has(i); nested values use oldValue
// as their own reference. With the nil baseline bitset every field is written
// and oldValue is the zero value. Parse starts from a copy of oldValue and reads
// only the fields whose bit is set, returning the reconstructed value.
type Codec[T any] interface {
	DirtyBitsSize() int
	Compare(newValue, oldValue T, bits *Bitset)
	Serialize(newValue, oldValue T, w *wire.Writer, bits *Bitset)
	Parse(oldValue T, r *wire.Reader, bits *Bitset) T
}

// Compute returns the dirty bitset of newValue against oldValue.
func Compute[T any](c Codec[T], newValue, oldValue T) *Bitset {
	bits := NewBitset(c.DirtyBitsSize())
	c.Compare(newValue, oldValue, bits)
	return bits
}

// Encode writes newValue. Without oldValue the baseline is written and no
// bitset goes on the wire; otherwise the dirty bitset precedes the changed
// fields. It reports whether any field was written.
func Encode[T any](c Codec[T], w *wire.Writer, newValue T, oldValue *T) bool {
	if oldValue == nil {
		var zero T
		c.Serialize(newValue, zero, w, nil)
		return true
	}
	bits := Compute(c, newValue, *oldValue)
	bits.Write(w)
	c.Serialize(newValue, *oldValue, w, bits)
	return bits.Any()
}

// Decode mirrors Encode. oldValue must be the same reference value the
// encoder used, or nil for a baseline.
func Decode[T any](c Codec[T], r *wire.Reader, oldValue *T) (T, error) {
	var (
		base T
		bits *Bitset
	)
	if oldValue != nil {
		base = *oldValue
		bits = ReadBitset(r, c.DirtyBitsSize())
	}
	if err := r.Err(); err != nil {
		return base, err
	}
	v := c.Parse(base, r, bits)
	if err := r.Err(); err != nil {
		return base, err
	}
	return v, nil
}
