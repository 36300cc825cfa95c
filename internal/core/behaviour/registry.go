package behaviour

import (
	"errors"
	"fmt"
	"slices"

	"github.com/zeusync/netsync/internal/core/protocol"
)

var (
	ErrDuplicateTag = errors.New("behaviour tag already registered")
	ErrUnknownTag   = errors.New("unknown behaviour tag")
	ErrTagMismatch  = errors.New("constructor tag mismatch")
)

// Registry maps wire tags to replicated behaviour constructors. It is built
// once at startup and read-only afterwards.
type Registry struct {
	ctors map[Tag]func() Replicated
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[Tag]func() Replicated)}
}

func (r *Registry) Register(tag Tag, ctor func() Replicated) error {
	if _, ok := r.ctors[tag]; ok {
		return protocol.NewProtocolError(protocol.ErrorCodeDuplicateTag,
			fmt.Sprintf("behaviour tag %d", tag), ErrDuplicateTag)
	}
	if got := ctor().Tag(); got != tag {
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("behaviour tag %d constructs tag %d", tag, got), ErrTagMismatch)
	}
	r.ctors[tag] = ctor
	return nil
}

// MustRegister is Register for package-level setup code.
func (r *Registry) MustRegister(tag Tag, ctor func() Replicated) {
	if err := r.Register(tag, ctor); err != nil {
		panic(err)
	}
}

func (r *Registry) New(tag Tag) (Replicated, error) {
	ctor, ok := r.ctors[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
	return ctor(), nil
}

func (r *Registry) Tags() []Tag {
	out := make([]Tag, 0, len(r.ctors))
	for tag := range r.ctors {
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
