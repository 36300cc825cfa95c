// Package diff implements dirty-bit diff serialization: a per-field bit
// vector computed by Compare decides which fields Serialize writes and which
// fields Parse reads back.
package diff

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/zeusync/netsync/internal/core/wire"
)

var ErrBitsetSize = errors.New("diff: dirty bitset size mismatch")

// Bitset is a fixed-size bit vector with one bit per serializable field.
//
// A nil *Bitset is the baseline sentinel: Has reports true for every index,
// so codecs write and read every field.
type Bitset struct {
	size  int
	words []uint64
}

func NewBitset(size int) *Bitset {
	if size < 0 {
		size = 0
	}
	return &Bitset{size: size, words: make([]uint64, (size+63)/64)}
}

// Size returns the declared number of bits. The baseline sentinel has no size.
func (b *Bitset) Size() int {
	if b == nil {
		return 0
	}
	return b.size
}

func (b *Bitset) Has(i int) bool {
	if b == nil {
		return true
	}
	if i < 0 || i >= b.size {
		return false
	}
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

func (b *Bitset) Set(i int) {
	if b == nil || i < 0 || i >= b.size {
		return
	}
	b.words[i/64] |= 1 << (uint(i) % 64)
}

func (b *Bitset) Unset(i int) {
	if b == nil || i < 0 || i >= b.size {
		return
	}
	b.words[i/64] &^= 1 << (uint(i) % 64)
}

// Mark sets bit i when changed is true and clears it otherwise.
func (b *Bitset) Mark(i int, changed bool) {
	if changed {
		b.Set(i)
		return
	}
	b.Unset(i)
}

// Any reports whether at least one bit is set.
func (b *Bitset) Any() bool {
	if b == nil {
		return true
	}
	for _, w := range b.words {
		if w != 0 {
			return true
		}
	}
	return false
}

func (b *Bitset) Count() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b *Bitset) Reset() {
	if b == nil {
		return
	}
	clear(b.words)
}

// Write encodes the bit count followed by ceil(size/8) bytes, least
// significant bit first.
func (b *Bitset) Write(w *wire.Writer) {
	w.WriteVarint(uint64(b.Size()))
	for i := 0; i < (b.Size()+7)/8; i++ {
		w.WriteUint8(uint8(b.words[i/8] >> (uint(i%8) * 8)))
	}
}

// ReadBitset decodes a bitset and checks it declares exactly size bits. On
// mismatch the reader fails with ErrBitsetSize and an empty bitset is
// returned, never the baseline sentinel.
func ReadBitset(r *wire.Reader, size int) *Bitset {
	out := NewBitset(size)
	n := r.ReadVarint()
	if r.Err() != nil {
		return out
	}
	if n != uint64(size) {
		r.Fail(fmt.Errorf("%w: got %d bits, want %d", ErrBitsetSize, n, size))
		return out
	}
	for i := 0; i < (size+7)/8; i++ {
		out.words[i/8] |= uint64(r.ReadUint8()) << (uint(i%8) * 8)
	}
	if size%64 != 0 && len(out.words) > 0 {
		out.words[len(out.words)-1] &= (1 << (uint(size) % 64)) - 1
	}
	return out
}
