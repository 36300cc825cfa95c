package scene

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/wire"
)

type tint struct{ RGB uint32 }

func (c *tint) Clone() behaviour.Behaviour { v := *c; return &v }
func (c *tint) Equal(o behaviour.Behaviour) bool {
	x, ok := o.(*tint)
	return ok && *x == *c
}
func (c *tint) Tag() behaviour.Tag { return 1 }
func (c *tint) DirtyBitsSize() int { return 1 }
func (c *tint) Compare(old behaviour.Replicated, bits *diff.Bitset) {
	bits.Mark(0, c.RGB != old.(*tint).RGB)
}
func (c *tint) Serialize(_ behaviour.Replicated, w *wire.Writer, bits *diff.Bitset) {
	if bits.Has(0) {
		w.WriteUint32(c.RGB)
	}
}
func (c *tint) Parse(r *wire.Reader, bits *diff.Bitset) {
	if bits.Has(0) {
		c.RGB = r.ReadUint32()
	}
}

func newCodec(t *testing.T) *ObjectCodec {
	t.Helper()
	reg := behaviour.NewRegistry()
	require.NoError(t, reg.Register(1, func() behaviour.Replicated { return &tint{} }))
	return NewObjectCodec(reg)
}

func TestScene_IDsAreMonotonic(t *testing.T) {
	s := New()
	a := s.Instantiate(1, At(0, 0, 0))
	b := s.Instantiate(1, At(1, 0, 0))
	assert.Equal(t, ObjectID(1), a.ID)
	assert.Equal(t, ObjectID(2), b.ID)

	require.True(t, s.Destroy(b.ID))
	assert.False(t, s.Destroy(b.ID))

	c := s.Instantiate(2, At(0, 0, 0))
	assert.Equal(t, ObjectID(3), c.ID)
	assert.Equal(t, []ObjectID{1, 3}, s.IDs())
}

func TestScene_Insert(t *testing.T) {
	s := New()
	require.ErrorIs(t, s.Insert(&GameObject{}), ErrInvalidObject)
	require.NoError(t, s.Insert(&GameObject{ID: 5}))
	require.ErrorIs(t, s.Insert(&GameObject{ID: 5}), ErrObjectExists)

	obj, ok := s.Get(5)
	require.True(t, ok)
	assert.NotNil(t, obj.Behaviours)
	assert.Equal(t, ObjectID(6), s.Instantiate(0, IdentityTransform()).ID)
}

func TestScene_CloneIsDeep(t *testing.T) {
	s := New()
	obj := s.Instantiate(1, At(1, 2, 3), &tint{RGB: 0xff})
	clone := s.Clone()

	obj.Transform.Position.X = 9
	c, _ := behaviour.Get[*tint](obj.Behaviours)
	c.RGB = 1

	cloned, ok := clone.Get(obj.ID)
	require.True(t, ok)
	assert.Equal(t, float32(1), cloned.Transform.Position.X)
	ct, _ := behaviour.Get[*tint](cloned.Behaviours)
	assert.Equal(t, uint32(0xff), ct.RGB)
}

func TestTransform_Lerp(t *testing.T) {
	from, to := At(0, 0, 0), At(2, 4, 0)
	mid := from.Lerp(to, 0.5)
	assert.InDelta(t, 1, mid.Position.X, 1e-6)
	assert.InDelta(t, 2, mid.Position.Y, 1e-6)
	assert.Equal(t, to, from.Lerp(to, 1))
	assert.Equal(t, to, from.Lerp(to, 3))
}

func randomObject(rng *rand.Rand) *GameObject {
	obj := NewGameObject(1, At(float32(rng.Intn(3)), 0, float32(rng.Intn(2))))
	if rng.Intn(2) == 0 {
		obj.Transform.Rotation = Quaternion{X: 0, Y: 0.7071068, Z: 0, W: 0.7071068}
	}
	if rng.Intn(3) == 0 {
		obj.Transform.Scale = Vector3{2, 2, 2}
	}
	if rng.Intn(2) == 0 {
		obj.AddBehaviour(&tint{RGB: uint32(rng.Intn(3))})
	}
	return obj
}

func TestObjectCodec_RoundTrip(t *testing.T) {
	codec := newCodec(t)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 300; i++ {
		oldValue, newValue := randomObject(rng), randomObject(rng)

		w := wire.NewWriter(64)
		diff.Encode[*GameObject](codec, w, newValue, &oldValue)
		r := wire.NewReader(w.Bytes())
		got, err := diff.Decode[*GameObject](codec, r, &oldValue)
		require.NoError(t, err)
		require.NoError(t, r.Done())

		require.Equal(t, newValue.Transform, got.Transform)
		require.True(t, newValue.Behaviours.Equal(got.Behaviours))
	}
}

func TestObjectCodec_Baseline(t *testing.T) {
	codec := newCodec(t)
	src := NewGameObject(1, At(4, 5, 6), &tint{RGB: 7})

	w := wire.NewWriter(64)
	diff.Encode[*GameObject](codec, w, src, nil)

	got, err := diff.Decode[*GameObject](codec, wire.NewReader(w.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, src.Transform, got.Transform)
	assert.True(t, src.Behaviours.Equal(got.Behaviours))
}

func TestChecksum(t *testing.T) {
	codec := newCodec(t)

	a := New()
	a.Instantiate(1, At(1, 0, 0), &tint{RGB: 3})
	a.Instantiate(2, At(2, 0, 0))

	b := a.Clone()
	assert.Equal(t, Checksum(a, codec), Checksum(b, codec))

	obj, _ := b.Get(2)
	obj.Transform.Position.Y = 1
	assert.NotEqual(t, Checksum(a, codec), Checksum(b, codec))
}
