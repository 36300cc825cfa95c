package scene

import (
	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/diff"
	"github.com/zeusync/netsync/internal/core/wire"
)

// ObjectID is assigned by the server scene and never reused.
type ObjectID uint32

// TypeTag selects the factory recipe clients use to build an object.
type TypeTag uint8

type GameObject struct {
	ID         ObjectID
	Type       TypeTag
	Transform  Transform
	Behaviours *behaviour.Container
}

func NewGameObject(typ TypeTag, transform Transform, behaviours ...behaviour.Behaviour) *GameObject {
	return &GameObject{
		Type:       typ,
		Transform:  transform,
		Behaviours: behaviour.NewContainer(behaviours...),
	}
}

func (o *GameObject) AddBehaviour(b behaviour.Behaviour) bool {
	if o.Behaviours == nil {
		o.Behaviours = behaviour.NewContainer()
	}
	return o.Behaviours.Add(b)
}

func (o *GameObject) Clone() *GameObject {
	if o == nil {
		return nil
	}
	out := *o
	out.Behaviours = o.Behaviours.Clone()
	if out.Behaviours == nil {
		out.Behaviours = behaviour.NewContainer()
	}
	return &out
}

const (
	objectTransform = iota
	objectBehaviours
	objectBits
)

// ObjectCodec diffs the replicated state of a GameObject: the transform as a
// nested dirty-bit value and the replicated behaviours through the container
// codec. Id and type travel in the scene update entry header.
type ObjectCodec struct {
	behaviours *behaviour.ContainerCodec
}

var _ diff.Codec[*GameObject] = (*ObjectCodec)(nil)

func NewObjectCodec(registry *behaviour.Registry) *ObjectCodec {
	return &ObjectCodec{behaviours: behaviour.NewContainerCodec(registry)}
}

func (c *ObjectCodec) Behaviours() *behaviour.ContainerCodec { return c.behaviours }

func (c *ObjectCodec) DirtyBitsSize() int { return objectBits }

func (c *ObjectCodec) Compare(newValue, oldValue *GameObject, bits *diff.Bitset) {
	bits.Mark(objectTransform, newValue.Transform != oldValue.Transform)
	bits.Mark(objectBehaviours, c.behaviours.Changed(newValue.Behaviours, oldValue.Behaviours))
}

func (c *ObjectCodec) Serialize(newValue, oldValue *GameObject, w *wire.Writer, bits *diff.Bitset) {
	if bits == nil {
		diff.Encode[Transform](TransformCodec{}, w, newValue.Transform, nil)
		c.behaviours.EncodeBaseline(w, newValue.Behaviours)
		return
	}
	if bits.Has(objectTransform) {
		diff.Encode[Transform](TransformCodec{}, w, newValue.Transform, &oldValue.Transform)
	}
	if bits.Has(objectBehaviours) {
		c.behaviours.Encode(w, newValue.Behaviours, oldValue.Behaviours)
	}
}

// Parse returns a new object built from oldValue. With the baseline bitset
// oldValue may be nil or a freshly constructed object whose local behaviours
// are kept.
func (c *ObjectCodec) Parse(oldValue *GameObject, r *wire.Reader, bits *diff.Bitset) *GameObject {
	out := oldValue.Clone()
	if out == nil {
		out = NewGameObject(0, IdentityTransform())
	}

	if bits == nil {
		t, err := diff.Decode[Transform](TransformCodec{}, r, nil)
		if err != nil {
			return out
		}
		out.Transform = t
		out.Behaviours = c.behaviours.DecodeBaseline(r, out.Behaviours)
		return out
	}

	if bits.Has(objectTransform) {
		t, err := diff.Decode[Transform](TransformCodec{}, r, &oldValue.Transform)
		if err != nil {
			return out
		}
		out.Transform = t
	}
	if bits.Has(objectBehaviours) {
		out.Behaviours = c.behaviours.Decode(r, oldValue.Behaviours)
	}
	return out
}
