package behaviour

import "iter"

type entry struct {
	seq  uint64
	item Behaviour
}

// Container is an ordered set of behaviours. Adding an item equal to one
// already present is a no-op.
type Container struct {
	items []entry
	next  uint64
}

func NewContainer(items ...Behaviour) *Container {
	c := &Container{}
	for _, item := range items {
		c.Add(item)
	}
	return c
}

// Add appends item unless an equal behaviour is already present.
func (c *Container) Add(item Behaviour) bool {
	if item == nil {
		return false
	}
	for _, e := range c.items {
		if e.item.Equal(item) {
			return false
		}
	}
	c.push(item)
	return true
}

func (c *Container) push(item Behaviour) {
	c.items = append(c.items, entry{seq: c.next, item: item})
	c.next++
}

// Remove drops the first behaviour equal to item.
func (c *Container) Remove(item Behaviour) bool {
	for i, e := range c.items {
		if e.item.Equal(item) {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Get returns the first behaviour assignable to T.
func Get[T any](c *Container) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	for _, e := range c.items {
		if v, ok := e.item.(T); ok {
			return v, true
		}
	}
	return zero, false
}

// All iterates over a copy of the container. Behaviours added while the
// iteration runs are visited in the same pass, after the items that were
// present when it started, and each item is yielded exactly once.
func (c *Container) All() iter.Seq[Behaviour] {
	return func(yield func(Behaviour) bool) {
		if c == nil {
			return
		}
		var mark uint64
		for {
			var batch []Behaviour
			for _, e := range c.items {
				if e.seq >= mark {
					batch = append(batch, e.item)
				}
			}
			if len(batch) == 0 {
				return
			}
			mark = c.next
			for _, item := range batch {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// Each calls fn for every behaviour with the semantics of All and stops at
// the first error.
func (c *Container) Each(fn func(Behaviour) error) error {
	for item := range c.All() {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// Replicated returns the replicated behaviours in container order.
func (c *Container) Replicated() []Replicated {
	if c == nil {
		return nil
	}
	out := make([]Replicated, 0, len(c.items))
	for _, e := range c.items {
		if r, ok := e.item.(Replicated); ok {
			out = append(out, r)
		}
	}
	return out
}

// Local returns a container holding clones of the behaviours that are not
// replicated.
func (c *Container) Local() *Container {
	out := &Container{}
	if c == nil {
		return out
	}
	for _, e := range c.items {
		if _, ok := e.item.(Replicated); !ok {
			out.push(e.item.Clone())
		}
	}
	return out
}

// SyncReplicated replaces the replicated behaviours of c with clones of
// those in from. Local behaviour instances stay in place.
func (c *Container) SyncReplicated(from *Container) {
	kept := c.items[:0]
	for _, e := range c.items {
		if _, ok := e.item.(Replicated); !ok {
			kept = append(kept, e)
		}
	}
	clear(c.items[len(kept):])
	c.items = kept
	for _, item := range from.Replicated() {
		c.push(item.Clone())
	}
}

func (c *Container) Clone() *Container {
	if c == nil {
		return nil
	}
	out := &Container{items: make([]entry, len(c.items)), next: c.next}
	for i, e := range c.items {
		out.items[i] = entry{seq: e.seq, item: e.item.Clone()}
	}
	return out
}

// Equal compares both containers item by item in order.
func (c *Container) Equal(other *Container) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i := range c.Len() {
		if !c.items[i].item.Equal(other.items[i].item) {
			return false
		}
	}
	return true
}
