// Package command maps small integer tags to command prototypes so player
// commands can be serialized polymorphically.
package command

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync/atomic"

	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/wire"
)

// Tag identifies a command type on the wire.
type Tag uint8

// Command is an opaque player input. Commands are cloned whenever they are
// buffered so that prediction and the authoritative turn never share one.
type Command interface {
	Clone() Command
	Serialize(w *wire.Writer)
	Deserialize(r *wire.Reader) error
}

var (
	ErrDuplicateTag        = errors.New("command tag already registered")
	ErrDuplicateType       = errors.New("command type already registered")
	ErrUnregisteredCommand = errors.New("command type is not registered")
	ErrUnknownTag          = errors.New("unknown command tag")
	ErrSealed              = errors.New("command registry is sealed")
	ErrNilPrototype        = errors.New("nil command prototype")
)

// Registry is filled at startup and sealed before the session starts.
// Lookups after Seal are safe for concurrent use.
type Registry struct {
	prototypes map[Tag]Command
	tags       map[reflect.Type]Tag
	sealed     atomic.Bool
}

func NewRegistry() *Registry {
	return &Registry{
		prototypes: make(map[Tag]Command),
		tags:       make(map[reflect.Type]Tag),
	}
}

// Register binds tag to the concrete type of prototype.
func (r *Registry) Register(tag Tag, prototype Command) error {
	if r.sealed.Load() {
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("register command tag %d", tag), ErrSealed)
	}
	if prototype == nil {
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("register command tag %d", tag), ErrNilPrototype)
	}
	if existing, ok := r.prototypes[tag]; ok {
		return protocol.NewProtocolError(protocol.ErrorCodeDuplicateTag,
			fmt.Sprintf("command tag %d already bound to %T", tag, existing), ErrDuplicateTag)
	}
	typ := reflect.TypeOf(prototype)
	if other, ok := r.tags[typ]; ok {
		return protocol.NewProtocolError(protocol.ErrorCodeDuplicateTag,
			fmt.Sprintf("command %s already bound to tag %d", typ, other), ErrDuplicateType)
	}
	r.prototypes[tag] = prototype
	r.tags[typ] = tag
	return nil
}

// Register is the typed form of Registry.Register.
func Register[T Command](r *Registry, tag Tag, prototype T) error {
	return r.Register(tag, prototype)
}

// MustRegister panics on configuration errors.
func (r *Registry) MustRegister(tag Tag, prototype Command) {
	if err := r.Register(tag, prototype); err != nil {
		panic(err)
	}
}

// Seal rejects further registrations.
func (r *Registry) Seal() { r.sealed.Store(true) }

func (r *Registry) Sealed() bool { return r.sealed.Load() }

func (r *Registry) TagOf(cmd Command) (Tag, error) {
	if cmd == nil {
		return 0, protocol.NewProtocolError(protocol.ErrorCodeUnregisteredCommand, "nil command", ErrUnregisteredCommand)
	}
	return r.TagOfType(reflect.TypeOf(cmd))
}

func (r *Registry) TagOfType(typ reflect.Type) (Tag, error) {
	tag, ok := r.tags[typ]
	if !ok {
		return 0, protocol.NewProtocolError(protocol.ErrorCodeUnregisteredCommand,
			fmt.Sprintf("command %s", typ), ErrUnregisteredCommand)
	}
	return tag, nil
}

// TagFor returns the tag registered for T.
func TagFor[T Command](r *Registry) (Tag, error) {
	return r.TagOfType(reflect.TypeFor[T]())
}

// Tags lists every registered tag in ascending order.
func (r *Registry) Tags() []Tag {
	out := make([]Tag, 0, len(r.prototypes))
	for tag := range r.prototypes {
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

// New returns a fresh clone of the prototype registered under tag.
func (r *Registry) New(tag Tag) (Command, error) {
	prototype, ok := r.prototypes[tag]
	if !ok {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeUnknownTypeTag,
			fmt.Sprintf("command tag %d", tag), ErrUnknownTag)
	}
	return prototype.Clone(), nil
}

// Encode writes the tag followed by the length-prefixed command body.
func (r *Registry) Encode(w *wire.Writer, cmd Command) error {
	tag, err := r.TagOf(cmd)
	if err != nil {
		return err
	}
	w.WriteUint8(uint8(tag))
	EncodeBody(w, cmd)
	return nil
}

// Decode reads a command written by Encode.
func (r *Registry) Decode(rd *wire.Reader) (Tag, Command, error) {
	tag := Tag(rd.ReadUint8())
	if err := rd.Err(); err != nil {
		return 0, nil, err
	}
	cmd, err := r.DecodeBody(rd, tag)
	return tag, cmd, err
}

// EncodeBody writes the length-prefixed body of cmd.
func EncodeBody(w *wire.Writer, cmd Command) {
	body := wire.AcquireWriter()
	defer wire.ReleaseWriter(body)
	cmd.Serialize(body)
	w.WriteBytes(body.Bytes())
}

// DecodeBody reads a length-prefixed body into a clone of the prototype
// registered under tag. The body must be consumed exactly.
func (r *Registry) DecodeBody(rd *wire.Reader, tag Tag) (Command, error) {
	body := rd.ReadBytes()
	if err := rd.Err(); err != nil {
		return nil, err
	}
	cmd, err := r.New(tag)
	if err != nil {
		return nil, err
	}
	br := wire.NewReader(body)
	if err = cmd.Deserialize(br); err != nil {
		return nil, fmt.Errorf("command tag %d: %w", tag, err)
	}
	if err = br.Done(); err != nil {
		return nil, fmt.Errorf("command tag %d: %w", tag, err)
	}
	return cmd, nil
}
