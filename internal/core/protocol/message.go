package protocol

import (
	"fmt"

	"github.com/zeusync/netsync/internal/core/wire"
)

// Kind identifies the payload carried by a Message.
type Kind uint8

const (
	KindHello Kind = iota + 1
	KindWelcome
	KindReady
	KindCommand
	KindTurn
	KindSceneUpdate
	KindResync
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindWelcome:
		return "welcome"
	case KindReady:
		return "ready"
	case KindCommand:
		return "command"
	case KindTurn:
		return "turn"
	case KindSceneUpdate:
		return "scene_update"
	case KindResync:
		return "resync"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool {
	return k >= KindHello && k <= KindResync
}

// Message is the envelope every transport carries: one kind byte followed by
// the kind-specific payload.
type Message struct {
	Kind    Kind
	Payload []byte
}

func (m Message) Marshal() []byte {
	out := make([]byte, 0, len(m.Payload)+1)
	out = append(out, byte(m.Kind))
	return append(out, m.Payload...)
}

// Unmarshal splits data into a Message. The payload aliases data.
func Unmarshal(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, NewProtocolError(ErrorCodeUnknownMessage, "empty message", ErrMalformedMessage)
	}
	kind := Kind(data[0])
	if !kind.Valid() {
		return Message{}, NewProtocolError(ErrorCodeUnknownMessage, kind.String(), ErrUnknownMessage)
	}
	return Message{Kind: kind, Payload: data[1:]}, nil
}

// Encode builds a marshaled envelope whose payload is produced by fill.
// A nil fill yields an empty payload.
func Encode(kind Kind, fill func(w *wire.Writer)) []byte {
	w := wire.AcquireWriter()
	defer wire.ReleaseWriter(w)

	w.WriteUint8(uint8(kind))
	if fill != nil {
		fill(w)
	}
	return w.Clone()
}
