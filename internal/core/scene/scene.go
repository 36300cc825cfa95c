// Package scene models the replicated object graph: game objects with a
// transform and a behaviour container, aggregated into a Scene.
package scene

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/wire"
)

var (
	ErrObjectExists  = errors.New("object id already present")
	ErrInvalidObject = errors.New("invalid object")
)

// Scene maps object ids to objects and carries scene-level behaviours such
// as a physics world. Ids come from a monotonic counter and are never
// handed out twice by the same scene.
type Scene struct {
	objects    map[ObjectID]*GameObject
	Behaviours *behaviour.Container
	lastID     ObjectID
}

func New() *Scene {
	return &Scene{
		objects:    make(map[ObjectID]*GameObject),
		Behaviours: behaviour.NewContainer(),
	}
}

// Instantiate creates an object with the next free id.
func (s *Scene) Instantiate(typ TypeTag, transform Transform, behaviours ...behaviour.Behaviour) *GameObject {
	s.lastID++
	obj := NewGameObject(typ, transform, behaviours...)
	obj.ID = s.lastID
	s.objects[obj.ID] = obj
	return obj
}

// Insert adds an object that already carries an id, as received from the
// server. It never originates ids.
func (s *Scene) Insert(obj *GameObject) error {
	if obj == nil || obj.ID == 0 {
		return ErrInvalidObject
	}
	if _, ok := s.objects[obj.ID]; ok {
		return fmt.Errorf("%w: %d", ErrObjectExists, obj.ID)
	}
	if obj.Behaviours == nil {
		obj.Behaviours = behaviour.NewContainer()
	}
	s.objects[obj.ID] = obj
	if obj.ID > s.lastID {
		s.lastID = obj.ID
	}
	return nil
}

// Replace swaps the object stored under obj.ID.
func (s *Scene) Replace(obj *GameObject) {
	s.objects[obj.ID] = obj
}

func (s *Scene) Destroy(id ObjectID) bool {
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	return true
}

func (s *Scene) Get(id ObjectID) (*GameObject, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

func (s *Scene) Len() int { return len(s.objects) }

// IDs returns the object ids in ascending order.
func (s *Scene) IDs() []ObjectID {
	return slices.Sorted(maps.Keys(s.objects))
}

// Objects iterates in ascending id order.
func (s *Scene) Objects() iter.Seq[*GameObject] {
	return func(yield func(*GameObject) bool) {
		for _, id := range s.IDs() {
			if !yield(s.objects[id]) {
				return
			}
		}
	}
}

// Clone deep-copies the scene, including the id counter.
func (s *Scene) Clone() *Scene {
	out := &Scene{
		objects:    make(map[ObjectID]*GameObject, len(s.objects)),
		Behaviours: s.Behaviours.Clone(),
		lastID:     s.lastID,
	}
	for id, obj := range s.objects {
		out.objects[id] = obj.Clone()
	}
	return out
}

// Factory builds client-side objects for a type tag. The returned object's
// local behaviours survive; its id and replicated state are overwritten.
type Factory interface {
	Create(typ TypeTag) (*GameObject, error)
}

type FactoryFunc func(typ TypeTag) (*GameObject, error)

func (f FactoryFunc) Create(typ TypeTag) (*GameObject, error) { return f(typ) }

// DefaultFactory builds bare objects for every tag.
var DefaultFactory = FactoryFunc(func(typ TypeTag) (*GameObject, error) {
	return NewGameObject(typ, IdentityTransform()), nil
})

// Checksum hashes the replicated state of s in id order. Two scenes with
// equal checksums hold the same ids, types, transforms and replicated
// behaviours.
func Checksum(s *Scene, codec *ObjectCodec) uint64 {
	w := wire.AcquireWriter()
	defer wire.ReleaseWriter(w)

	for obj := range s.Objects() {
		w.WriteUint32(uint32(obj.ID))
		w.WriteUint8(uint8(obj.Type))
		codec.Serialize(obj, nil, w, nil)
	}
	codec.Behaviours().EncodeBaseline(w, s.Behaviours)
	return xxhash.Sum64(w.Bytes())
}
