package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrShortBuffer   = errors.New("wire: short buffer")
	ErrTrailingBytes = errors.New("wire: trailing bytes")
)

// Reader decodes what Writer produced. The first failure sticks: later reads
// return zero values and Err reports the original cause.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Err() error { return r.err }

// Fail records err unless an earlier error is already set.
func (r *Reader) Fail(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Done reports an error when the buffer has not been fully consumed.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, len(r.buf)-r.off)
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) consumed(n int) bool {
	if n < 0 {
		r.Fail(fmt.Errorf("%w: %v", ErrShortBuffer, protowire.ParseError(n)))
		return false
	}
	r.off += n
	return true
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadUint32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.buf[r.off:])
	if !r.consumed(n) {
		return 0
	}
	return v
}

func (r *Reader) ReadUint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed64(r.buf[r.off:])
	if !r.consumed(n) {
		return 0
	}
	return v
}

func (r *Reader) ReadVarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeVarint(r.buf[r.off:])
	if !r.consumed(n) {
		return 0
	}
	return v
}

func (r *Reader) ReadInt64() int64 {
	return protowire.DecodeZigZag(r.ReadVarint())
}

func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

func (r *Reader) ReadFloat64() float64 {
	return math.Float64frombits(r.ReadUint64())
}

// ReadBytes reads a length-prefixed byte string and returns a copy of it.
func (r *Reader) ReadBytes() []byte {
	if r.err != nil {
		return nil
	}
	v, n := protowire.ConsumeBytes(r.buf[r.off:])
	if !r.consumed(n) {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (r *Reader) ReadString() string {
	if r.err != nil {
		return ""
	}
	v, n := protowire.ConsumeString(r.buf[r.off:])
	if !r.consumed(n) {
		return ""
	}
	return v
}

// ReadRaw reads exactly n bytes without a length prefix.
func (r *Reader) ReadRaw(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
