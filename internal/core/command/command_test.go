package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/wire"
)

type jump struct{ Height int64 }

func (j *jump) Clone() Command { c := *j; return &c }
func (j *jump) Serialize(w *wire.Writer) {
	w.WriteInt64(j.Height)
}
func (j *jump) Deserialize(r *wire.Reader) error {
	j.Height = r.ReadInt64()
	return r.Err()
}

type chat struct{ Text string }

func (c *chat) Clone() Command { v := *c; return &v }
func (c *chat) Serialize(w *wire.Writer) {
	w.WriteString(c.Text)
}
func (c *chat) Deserialize(r *wire.Reader) error {
	c.Text = r.ReadString()
	return r.Err()
}

type unknown struct{}

func (u *unknown) Clone() Command                 { return &unknown{} }
func (u *unknown) Serialize(*wire.Writer)         {}
func (u *unknown) Deserialize(*wire.Reader) error { return nil }

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, Register(r, 1, &jump{}))
	require.NoError(t, Register(r, 2, &chat{}))
	return r
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := newRegistry(t)

	err := r.Register(1, &unknown{})
	require.ErrorIs(t, err, ErrDuplicateTag)
	assert.Equal(t, protocol.ErrorCodeDuplicateTag, protocol.GetErrorCode(err))

	err = r.Register(3, &jump{})
	require.ErrorIs(t, err, ErrDuplicateType)
	assert.True(t, protocol.IsConfiguration(err))

	require.ErrorIs(t, r.Register(4, nil), ErrNilPrototype)

	r.Seal()
	require.ErrorIs(t, r.Register(5, &unknown{}), ErrSealed)
	assert.Equal(t, []Tag{1, 2}, r.Tags())
}

func TestRegistry_Tags(t *testing.T) {
	r := newRegistry(t)

	tag, err := r.TagOf(&chat{})
	require.NoError(t, err)
	assert.Equal(t, Tag(2), tag)

	tag, err = TagFor[*jump](r)
	require.NoError(t, err)
	assert.Equal(t, Tag(1), tag)

	_, err = r.TagOf(&unknown{})
	require.ErrorIs(t, err, ErrUnregisteredCommand)
	assert.Equal(t, protocol.ErrorCodeUnregisteredCommand, protocol.GetErrorCode(err))
}

func TestRegistry_EncodeDecode(t *testing.T) {
	r := newRegistry(t)

	w := wire.NewWriter(32)
	require.NoError(t, r.Encode(w, &jump{Height: -3}))
	require.NoError(t, r.Encode(w, &chat{Text: "gg"}))
	require.ErrorIs(t, r.Encode(w, &unknown{}), ErrUnregisteredCommand)

	rd := wire.NewReader(w.Bytes())
	tag, cmd, err := r.Decode(rd)
	require.NoError(t, err)
	assert.Equal(t, Tag(1), tag)
	assert.Equal(t, &jump{Height: -3}, cmd)

	tag, cmd, err = r.Decode(rd)
	require.NoError(t, err)
	assert.Equal(t, Tag(2), tag)
	assert.Equal(t, &chat{Text: "gg"}, cmd)
	require.NoError(t, rd.Done())
}

func TestRegistry_DecodeClonesPrototype(t *testing.T) {
	r := newRegistry(t)

	w := wire.NewWriter(16)
	require.NoError(t, r.Encode(w, &jump{Height: 8}))
	_, cmd, err := r.Decode(wire.NewReader(w.Bytes()))
	require.NoError(t, err)
	cmd.(*jump).Height = 100

	fresh, err := r.New(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.(*jump).Height)
}

func TestRegistry_DecodeErrors(t *testing.T) {
	r := newRegistry(t)

	w := wire.NewWriter(16)
	w.WriteUint8(9)
	w.WriteBytes(nil)
	_, _, err := r.Decode(wire.NewReader(w.Bytes()))
	require.ErrorIs(t, err, ErrUnknownTag)
	assert.True(t, protocol.IsFatal(err))

	w = wire.NewWriter(16)
	w.WriteUint8(1)
	w.WriteBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	_, _, err = r.Decode(wire.NewReader(w.Bytes()))
	require.ErrorIs(t, err, wire.ErrTrailingBytes)
}
