package lockstep

import (
	"fmt"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/wire"
)

// PlayerNumber is allocated on first connection and kept for the same client
// identity across reconnects.
type PlayerNumber uint8

// Entry is one command inside a turn.
type Entry struct {
	Player  PlayerNumber
	Tag     command.Tag
	Command command.Command
}

// Turn is a closed, numbered batch of commands. Entries keep the order in
// which the server received them.
type Turn struct {
	Number  uint64
	Entries []Entry
}

func (t Turn) Clone() Turn {
	out := Turn{Number: t.Number}
	if len(t.Entries) > 0 {
		out.Entries = make([]Entry, len(t.Entries))
		for i, e := range t.Entries {
			out.Entries[i] = Entry{Player: e.Player, Tag: e.Tag, Command: e.Command.Clone()}
		}
	}
	return out
}

// EncodeTurn writes {number u64, count u32, count x {tag u8, player u8,
// body bytes}}.
func EncodeTurn(w *wire.Writer, t Turn) {
	w.WriteUint64(t.Number)
	w.WriteUint32(uint32(len(t.Entries)))
	for _, e := range t.Entries {
		w.WriteUint8(uint8(e.Tag))
		w.WriteUint8(uint8(e.Player))
		command.EncodeBody(w, e.Command)
	}
}

// minEntrySize is tag, player and an empty body length prefix.
const minEntrySize = 3

func DecodeTurn(r *wire.Reader, registry *command.Registry) (Turn, error) {
	t := Turn{Number: r.ReadUint64()}
	count := r.ReadUint32()
	if err := r.Err(); err != nil {
		return Turn{}, malformedTurn(err)
	}
	if uint64(count)*minEntrySize > uint64(r.Remaining()) {
		return Turn{}, malformedTurn(fmt.Errorf("%d commands in %d bytes", count, r.Remaining()))
	}

	if count > 0 {
		t.Entries = make([]Entry, 0, count)
	}
	for range count {
		tag := command.Tag(r.ReadUint8())
		player := PlayerNumber(r.ReadUint8())
		cmd, err := registry.DecodeBody(r, tag)
		if err != nil {
			return Turn{}, malformedTurn(err)
		}
		t.Entries = append(t.Entries, Entry{Player: player, Tag: tag, Command: cmd})
	}
	return t, nil
}

func malformedTurn(err error) error {
	if protocol.IsFatal(err) {
		return err
	}
	return protocol.NewProtocolError(protocol.ErrorCodeMalformedTurn, "turn", err)
}
