package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/config"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/protocol/loopback"
	"github.com/zeusync/netsync/internal/core/protocol/quic"
	"github.com/zeusync/netsync/internal/core/protocol/websocket"
	"github.com/zeusync/netsync/internal/core/replication"
	"github.com/zeusync/netsync/internal/core/scene"
	"github.com/zeusync/netsync/internal/demo"
)

func TestNewClient_Validation(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Lockstep.SimulationStepDuration = 0
	_, err := NewClient(cfg, loopback.NewHub().Dial(), log.Nop())
	assert.True(t, protocol.IsConfiguration(err))

	c, err := NewClient(DefaultClientConfig(), loopback.NewHub().Dial(), log.Nop())
	require.NoError(t, err)
	assert.NotEmpty(t, c.Identity())
	assert.Nil(t, c.Recorder())
}

func TestClient_Lifecycle(t *testing.T) {
	hub := loopback.NewHub()
	var received [][]byte
	hub.OnMessageReceived(func(_ protocol.ConnID, data []byte) { received = append(received, data) })

	cfg := DefaultClientConfig()
	cfg.Identity = "alice"
	cfg.Record = true
	c, err := NewClient(cfg, hub.Dial(), log.Nop())
	require.NoError(t, err)
	require.NotNil(t, c.Recorder())

	assert.ErrorIs(t, c.Ready(), ErrNotConnected)
	assert.ErrorIs(t, c.Submit(&demo.Spawn{}), ErrNotConnected)
	assert.ErrorIs(t, c.Disconnect(), ErrNotConnected)

	var events []EventType
	for _, typ := range []EventType{EventTypeConnected, EventTypeDisconnected} {
		c.OnEvent(typ, func(e Event) error {
			events = append(events, e.Type)
			return nil
		})
	}

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)

	require.Len(t, received, 1)
	msg, err := protocol.Unmarshal(received[0])
	require.NoError(t, err)
	require.Equal(t, protocol.KindHello, msg.Kind)
	identity, err := lockstep.DecodeHello(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)

	require.NoError(t, c.Submit(&demo.Move{Unit: 1, DX: 1}))
	require.Len(t, received, 2)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
	assert.Equal(t, []EventType{EventTypeConnected, EventTypeDisconnected}, events)
}

func TestClient_WelcomeAndTurns(t *testing.T) {
	hub := loopback.NewHub()
	c, err := NewClient(DefaultClientConfig(), hub.Dial(), log.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	conn := hub.Conns()[0]

	welcomed := 0
	c.OnEvent(EventTypeWelcomed, func(Event) error { welcomed++; return nil })

	require.NoError(t, hub.Send(conn, lockstep.EncodeWelcome(lockstep.Welcome{Player: 1})))
	tag, err := c.registry.TagOf(&demo.Spawn{})
	require.NoError(t, err)
	require.NoError(t, hub.Send(conn, lockstep.EncodeTurnMessage(lockstep.Turn{Number: 0, Entries: []lockstep.Entry{
		{Player: 1, Tag: tag, Command: &demo.Spawn{X: 2}},
	}})))
	require.NoError(t, c.Update(0))

	player, ok := c.Player()
	require.True(t, ok)
	assert.Equal(t, lockstep.PlayerNumber(1), player)
	assert.Equal(t, 1, welcomed)
	assert.Equal(t, 1, c.Lockstep().TurnBuffer())

	cfg := DefaultClientConfig()
	require.NoError(t, c.Update(cfg.Lockstep.ClientStartDelay+cfg.Lockstep.CommandStepDuration))
	assert.Equal(t, uint64(1), c.Lockstep().NextTurn())
	assert.Equal(t, 1, c.World().Scene().Len())
}

func TestClient_SceneHooks(t *testing.T) {
	var created, destroyed []scene.ObjectID
	cfg := DefaultClientConfig()
	cfg.Hooks = replication.Hooks{
		OnInstantiateObject: func(obj *scene.GameObject) { created = append(created, obj.ID) },
		OnDestroyObject:     func(obj *scene.GameObject) { destroyed = append(destroyed, obj.ID) },
	}

	hub := loopback.NewHub()
	c, err := NewClient(cfg, hub.Dial(), log.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	world := demo.NewWorld()
	unit := world.Scene().Instantiate(demo.TypeUnit, scene.At(1, 0, 1), &demo.Health{Current: 10, Max: 10})
	bc := replication.NewBroadcaster(replication.DefaultConfig(), world.Scene(), world.Codec(), hub, nil)
	bc.AddClient(hub.Conns()[0])

	bc.Flush()
	require.NoError(t, c.Update(0))
	assert.Equal(t, []scene.ObjectID{unit.ID}, created)
	assert.Empty(t, destroyed)

	world.Scene().Destroy(unit.ID)
	bc.Flush()
	require.NoError(t, c.Update(0))
	assert.Equal(t, []scene.ObjectID{unit.ID}, destroyed)
	assert.Zero(t, c.Scene().Len())
}

func TestNewTransport(t *testing.T) {
	cfg := config.Default().Transport
	_, ok := NewTransport(cfg, log.Nop()).(*websocket.Client)
	assert.True(t, ok)

	cfg.Kind = config.TransportQUIC
	_, ok = NewTransport(cfg, log.Nop()).(*quic.Client)
	assert.True(t, ok)
	assert.Equal(t, "quic://127.0.0.1:8080", Endpoint(cfg))
}
