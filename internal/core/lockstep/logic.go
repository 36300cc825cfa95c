package lockstep

import (
	"errors"
	"fmt"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/protocol"
)

var ErrMissingLogic = errors.New("no logic registered for command")

// Handler applies one command of a turn to the local simulation.
type Handler func(player PlayerNumber, cmd command.Command) error

// Logic dispatches turn entries to the game rules by command tag.
type Logic struct {
	registry *command.Registry
	handlers map[command.Tag]Handler
}

func NewLogic(registry *command.Registry) *Logic {
	return &Logic{
		registry: registry,
		handlers: make(map[command.Tag]Handler),
	}
}

func (l *Logic) Handle(tag command.Tag, handler Handler) {
	l.handlers[tag] = handler
}

// On registers typed logic for T, which must already be registered.
func On[T command.Command](l *Logic, fn func(player PlayerNumber, cmd T) error) error {
	tag, err := command.TagFor[T](l.registry)
	if err != nil {
		return err
	}
	l.Handle(tag, func(player PlayerNumber, cmd command.Command) error {
		typed, ok := cmd.(T)
		if !ok {
			return fmt.Errorf("command tag %d: unexpected %T", tag, cmd)
		}
		return fn(player, typed)
	})
	return nil
}

// Validate fails when a registered command has no logic, so the mismatch is
// caught at startup rather than on the first turn that carries it.
func (l *Logic) Validate() error {
	var errs []error
	for _, tag := range l.registry.Tags() {
		if _, ok := l.handlers[tag]; !ok {
			errs = append(errs, missingLogic(tag))
		}
	}
	return errors.Join(errs...)
}

func (l *Logic) Dispatch(e Entry) error {
	handler, ok := l.handlers[e.Tag]
	if !ok {
		return missingLogic(e.Tag)
	}
	return handler(e.Player, e.Command)
}

func missingLogic(tag command.Tag) error {
	return protocol.NewProtocolError(protocol.ErrorCodeMissingLogic,
		fmt.Sprintf("command tag %d", tag), ErrMissingLogic)
}
