// Package wire holds the binary primitives shared by the diff codec, the
// command registry and every network message.
package wire

import (
	"math"

	"github.com/zeusync/netsync/pkg/generic"
	"google.golang.org/protobuf/encoding/protowire"
)

const defaultWriterCapacity = 256

var writerPool = generic.NewResettingPool(func() *Writer {
	return NewWriter(defaultWriterCapacity)
}, (*Writer).Reset)

// AcquireWriter returns an empty pooled writer. Callers must copy Bytes()
// before calling ReleaseWriter.
func AcquireWriter() *Writer {
	return writerPool.Get()
}

// ReleaseWriter hands w back to the pool.
func ReleaseWriter(w *Writer) {
	if w == nil || cap(w.buf) > 64*1024 {
		return
	}
	writerPool.Put(w)
}

// Writer is an append-only encoder.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded buffer. The slice aliases the writer.
func (w *Writer) Bytes() []byte { return w.buf }

// Clone returns a copy of the encoded buffer.
func (w *Writer) Clone() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = protowire.AppendFixed32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.buf = protowire.AppendFixed64(w.buf, v)
}

func (w *Writer) WriteVarint(v uint64) {
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeZigZag(v))
}

func (w *Writer) WriteFloat32(v float32) {
	w.buf = protowire.AppendFixed32(w.buf, math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) {
	w.buf = protowire.AppendFixed64(w.buf, math.Float64bits(v))
}

// WriteBytes writes a varint length prefix followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = protowire.AppendBytes(w.buf, b)
}

func (w *Writer) WriteString(s string) {
	w.buf = protowire.AppendString(w.buf, s)
}

// WriteRaw appends b without a length prefix.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}
