package lockstep

import (
	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/wire"
)

// Welcome is the server's answer to Hello.
type Welcome struct {
	Player PlayerNumber
	// Turns is the number of history turns that follow the welcome.
	Turns uint64
}

// EncodeHello announces the stable client identity used to keep the player
// number across reconnects.
func EncodeHello(identity string) []byte {
	return protocol.Encode(protocol.KindHello, func(w *wire.Writer) {
		w.WriteString(identity)
	})
}

func DecodeHello(payload []byte) (string, error) {
	r := wire.NewReader(payload)
	identity := r.ReadString()
	if err := r.Done(); err != nil {
		return "", protocol.NewProtocolError(protocol.ErrorCodeUnknownMessage, "hello", err)
	}
	return identity, nil
}

func EncodeWelcome(welcome Welcome) []byte {
	return protocol.Encode(protocol.KindWelcome, func(w *wire.Writer) {
		w.WriteUint8(uint8(welcome.Player))
		w.WriteVarint(welcome.Turns)
	})
}

func DecodeWelcome(payload []byte) (Welcome, error) {
	r := wire.NewReader(payload)
	welcome := Welcome{
		Player: PlayerNumber(r.ReadUint8()),
		Turns:  r.ReadVarint(),
	}
	if err := r.Done(); err != nil {
		return Welcome{}, protocol.NewProtocolError(protocol.ErrorCodeUnknownMessage, "welcome", err)
	}
	return welcome, nil
}

// EncodeReady builds the empty player-ready message.
func EncodeReady() []byte {
	return protocol.Encode(protocol.KindReady, nil)
}

// EncodeCommand builds a command submission message.
func EncodeCommand(registry *command.Registry, cmd command.Command) ([]byte, error) {
	var encodeErr error
	data := protocol.Encode(protocol.KindCommand, func(w *wire.Writer) {
		encodeErr = registry.Encode(w, cmd)
	})
	if encodeErr != nil {
		return nil, encodeErr
	}
	return data, nil
}

func EncodeTurnMessage(t Turn) []byte {
	return protocol.Encode(protocol.KindTurn, func(w *wire.Writer) {
		EncodeTurn(w, t)
	})
}

func DecodeTurnMessage(payload []byte, registry *command.Registry) (Turn, error) {
	r := wire.NewReader(payload)
	t, err := DecodeTurn(r, registry)
	if err != nil {
		return Turn{}, err
	}
	if err = r.Done(); err != nil {
		return Turn{}, malformedTurn(err)
	}
	return t, nil
}
