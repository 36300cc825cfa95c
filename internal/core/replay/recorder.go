// Package replay captures the turns a lockstep client takes in and plays
// them back into another client.
package replay

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/wire"
)

const (
	logMagic   = "NSRL"
	logVersion = 1
)

var (
	ErrBadMagic           = errors.New("replay: bad magic")
	ErrUnsupportedVersion = errors.New("replay: unsupported version")
)

// Recorder stores every turn by number. Turns are recorded on intake, so
// the log holds what the server sent, the client's own commands included.
type Recorder struct {
	registry *command.Registry
	turns    map[uint64]lockstep.Turn
}

func NewRecorder(registry *command.Registry) *Recorder {
	return &Recorder{
		registry: registry,
		turns:    make(map[uint64]lockstep.Turn),
	}
}

// Record taps the turn intake path of client.
func (r *Recorder) Record(client *lockstep.Client) {
	client.OnTurnReceived(r.Add)
}

// Add stores a copy of turn. A turn number seen before is overwritten.
func (r *Recorder) Add(turn lockstep.Turn) {
	r.turns[turn.Number] = turn.Clone()
}

func (r *Recorder) Len() int { return len(r.turns) }

func (r *Recorder) Reset() { clear(r.turns) }

// Turns returns copies of the recorded turns in ascending order.
func (r *Recorder) Turns() []lockstep.Turn {
	numbers := slices.Sorted(maps.Keys(r.turns))
	out := make([]lockstep.Turn, len(numbers))
	for i, n := range numbers {
		out[i] = r.turns[n].Clone()
	}
	return out
}

// Replay feeds the log into client as if it came from the network and
// returns how many turns the client accepted. Turns the client has already
// seen are ignored by it.
func (r *Recorder) Replay(client *lockstep.Client) int {
	accepted := 0
	for _, turn := range r.Turns() {
		if client.Receive(turn) {
			accepted++
		}
	}
	return accepted
}

// Serialize writes {magic, version u8, count varint, turns...}.
func (r *Recorder) Serialize(w *wire.Writer) {
	w.WriteRaw([]byte(logMagic))
	w.WriteUint8(logVersion)
	w.WriteVarint(uint64(len(r.turns)))
	for _, n := range slices.Sorted(maps.Keys(r.turns)) {
		lockstep.EncodeTurn(w, r.turns[n])
	}
}

// Deserialize replaces the recorded turns with the log read from rd.
func (r *Recorder) Deserialize(rd *wire.Reader) error {
	if magic := rd.ReadRaw(len(logMagic)); rd.Err() == nil && string(magic) != logMagic {
		return ErrBadMagic
	}
	if version := rd.ReadUint8(); rd.Err() == nil && version != logVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	count := rd.ReadVarint()
	if err := rd.Err(); err != nil {
		return fmt.Errorf("replay header: %w", err)
	}

	turns := make(map[uint64]lockstep.Turn)
	for i := uint64(0); i < count; i++ {
		turn, err := lockstep.DecodeTurn(rd, r.registry)
		if err != nil {
			return fmt.Errorf("replay turn %d: %w", i, err)
		}
		turns[turn.Number] = turn
	}
	if err := rd.Done(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	r.turns = turns
	return nil
}
