package replay

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/wire"
)

type add struct{ Amount int64 }

func (a *add) Clone() command.Command { c := *a; return &c }
func (a *add) Serialize(w *wire.Writer) {
	w.WriteInt64(a.Amount)
}
func (a *add) Deserialize(r *wire.Reader) error {
	a.Amount = r.ReadInt64()
	return r.Err()
}

func newRegistry(t *testing.T) *command.Registry {
	t.Helper()
	r := command.NewRegistry()
	require.NoError(t, command.Register(r, 1, &add{}))
	return r
}

type counter struct {
	totals [2]int64
	trace  []int64
}

func newClient(t *testing.T, registry *command.Registry) (*lockstep.Client, *counter) {
	t.Helper()
	state := &counter{}
	logic := lockstep.NewLogic(registry)
	require.NoError(t, lockstep.On(logic, func(p lockstep.PlayerNumber, cmd *add) error {
		state.totals[p] += cmd.Amount
		return nil
	}))
	client := lockstep.NewClient(lockstep.DefaultConfig(), registry, logic, nil, nil)
	client.SetSimulation(func(time.Duration) {
		state.trace = append(state.trace, state.totals[0]*31+state.totals[1])
	})
	return client, state
}

func run(t *testing.T, client *lockstep.Client, turns uint64) {
	t.Helper()
	for range 1000 {
		if client.NextTurn() == turns {
			return
		}
		_, err := client.Update(100 * time.Millisecond)
		require.NoError(t, err)
	}
	require.Fail(t, "client did not apply every turn")
}

func sessionTurns() []lockstep.Turn {
	turns := make([]lockstep.Turn, 20)
	for i := range turns {
		turns[i].Number = uint64(i)
		if i%4 == 3 {
			continue
		}
		turns[i].Entries = []lockstep.Entry{
			{Player: 0, Tag: 1, Command: &add{Amount: int64(i)}},
			{Player: 1, Tag: 1, Command: &add{Amount: -2 * int64(i)}},
		}
	}
	return turns
}

func recordSession(t *testing.T, registry *command.Registry) (*Recorder, *counter) {
	t.Helper()
	client, state := newClient(t, registry)
	rec := NewRecorder(registry)
	rec.Record(client)

	turns := sessionTurns()
	// Delivery order differs from turn order.
	for i := 0; i < len(turns); i += 2 {
		client.Receive(turns[i+1])
		client.Receive(turns[i])
	}
	client.Receive(turns[3])
	run(t, client, uint64(len(turns)))
	return rec, state
}

func TestRecorder_RecordsEveryTurn(t *testing.T) {
	registry := newRegistry(t)
	rec, _ := recordSession(t, registry)

	require.Equal(t, 20, rec.Len())
	turns := rec.Turns()
	for i, turn := range turns {
		assert.Equal(t, uint64(i), turn.Number)
	}
	assert.Empty(t, turns[3].Entries)
	assert.Len(t, turns[4].Entries, 2)
	assert.Equal(t, sessionTurns(), turns)

	turns[4].Entries[0].Command.(*add).Amount = 99
	assert.Equal(t, int64(4), rec.Turns()[4].Entries[0].Command.(*add).Amount)

	rec.Reset()
	assert.Zero(t, rec.Len())
}

func TestReplay_Idempotent(t *testing.T) {
	registry := newRegistry(t)
	rec, original := recordSession(t, registry)

	for _, compression := range []Compression{CompressionNone, CompressionSnappy, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteArchive(&buf, rec, compression))

			loaded, err := ReadArchive(&buf, registry)
			require.NoError(t, err)
			assert.Equal(t, rec.Turns(), loaded.Turns())

			client, state := newClient(t, registry)
			assert.Equal(t, 20, loaded.Replay(client))
			run(t, client, 20)
			assert.Equal(t, original.totals, state.totals)
			assert.Equal(t, original.trace, state.trace)

			assert.Zero(t, loaded.Replay(client))
		})
	}
}

func TestRecorder_SerializeRoundTrip(t *testing.T) {
	registry := newRegistry(t)
	rec, _ := recordSession(t, registry)

	w := wire.NewWriter(256)
	rec.Serialize(w)

	loaded := NewRecorder(registry)
	require.NoError(t, loaded.Deserialize(wire.NewReader(w.Bytes())))
	assert.Equal(t, rec.Turns(), loaded.Turns())

	data := w.Bytes()
	require.Error(t, NewRecorder(registry).Deserialize(wire.NewReader(data[:len(data)-1])))

	bad := bytes.Clone(data)
	bad[0] = 'X'
	require.ErrorIs(t, NewRecorder(registry).Deserialize(wire.NewReader(bad)), ErrBadMagic)

	bad = bytes.Clone(data)
	bad[len(logMagic)] = logVersion + 1
	require.ErrorIs(t, NewRecorder(registry).Deserialize(wire.NewReader(bad)), ErrUnsupportedVersion)
}

func TestReadArchive_Errors(t *testing.T) {
	registry := newRegistry(t)

	_, err := ReadArchive(bytes.NewReader([]byte("NS")), registry)
	require.Error(t, err)

	_, err = ReadArchive(bytes.NewReader([]byte("XXXX\x00")), registry)
	require.ErrorIs(t, err, ErrBadMagic)

	_, err = ReadArchive(bytes.NewReader([]byte("NSRA\x09")), registry)
	require.ErrorIs(t, err, ErrUnknownCompression)

	require.ErrorIs(t, WriteArchive(&bytes.Buffer{}, NewRecorder(registry), Compression(7)), ErrUnknownCompression)
}

func TestCompression_YAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("enabled: true\npath: a.replay\ncompression: snappy\n"), &cfg))
	assert.Equal(t, Config{Enabled: true, Path: "a.replay", Compression: CompressionSnappy}, cfg)

	out, err := yaml.Marshal(DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, string(out), "compression: zstd")

	require.Error(t, yaml.Unmarshal([]byte("compression: lz4\n"), &cfg))
}
