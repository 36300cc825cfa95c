package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/config"
	"github.com/zeusync/netsync/internal/core/behaviour"
	"github.com/zeusync/netsync/internal/core/events/bus"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/protocol/loopback"
	"github.com/zeusync/netsync/internal/core/protocol/websocket"
	"github.com/zeusync/netsync/internal/core/scene"
	"github.com/zeusync/netsync/internal/demo"
	netclient "github.com/zeusync/netsync/sdk/go/client"
)

const frame = 10 * time.Millisecond

type harness struct {
	t       *testing.T
	config  config.Config
	hub     *loopback.Hub
	server  *Server
	conns   []*loopback.Conn
	clients []*netclient.Client

	events     []bus.EventType
	serverSums map[uint64]uint64
	clientSums []map[uint64]uint64
}

func newHarness(t *testing.T, players int) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Lockstep.MaxPlayers = players

	h := &harness{
		t:          t,
		config:     cfg,
		hub:        loopback.NewHub(),
		serverSums: make(map[uint64]uint64),
	}
	srv, err := NewServer(cfg, h.hub, log.Nop())
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	h.server = srv

	_, err = srv.Events().SubscribeAll(func(e bus.Event) error {
		h.events = append(h.events, e.Type)
		if e.Type == bus.TurnReady {
			h.serverSums[e.Turn] = srv.World().Checksum()
		}
		return nil
	})
	require.NoError(t, err)

	for i := range players {
		conn := h.hub.Dial()
		ccfg := netclient.DefaultClientConfig()
		ccfg.Identity = fmt.Sprintf("player-%d", i)
		ccfg.Lockstep = cfg.Lockstep
		ccfg.Record = true
		c, err := netclient.NewClient(ccfg, conn, log.Nop())
		require.NoError(t, err)

		sums := make(map[uint64]uint64)
		c.OnEvent(netclient.EventTypeTurnApplied, func(e netclient.Event) error {
			sums[e.Turn] = c.World().Checksum()
			return nil
		})
		require.NoError(t, c.Connect(context.Background()))

		h.conns = append(h.conns, conn)
		h.clients = append(h.clients, c)
		h.clientSums = append(h.clientSums, sums)
	}
	h.tick(0)
	return h
}

func (h *harness) tick(dt time.Duration) {
	h.t.Helper()
	h.server.Update(dt)
	for _, c := range h.clients {
		require.NoError(h.t, c.Update(dt))
	}
}

func (h *harness) start() {
	h.t.Helper()
	for _, c := range h.clients {
		require.NoError(h.t, c.Ready())
	}
	h.tick(0)
	require.Equal(h.t, lockstep.StateRunning, h.server.Lockstep().State())
}

func (h *harness) count(typ bus.EventType) int {
	n := 0
	for _, e := range h.events {
		if e == typ {
			n++
		}
	}
	return n
}

// requireAgreement checks every turn applied by a client against the server
// world at the same turn.
func (h *harness) requireAgreement(minTurns int) {
	h.t.Helper()
	for i, sums := range h.clientSums {
		require.GreaterOrEqual(h.t, len(sums), minTurns, "client %d", i)
		for turn, sum := range sums {
			want, ok := h.serverSums[turn]
			require.True(h.t, ok, "client %d turn %d", i, turn)
			require.Equal(h.t, want, sum, "client %d turn %d", i, turn)
		}
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	h := newHarness(t, 2)

	assert.Equal(t, 2, h.count(bus.PlayerConnected))
	for i, c := range h.clients {
		player, ok := c.Player()
		require.True(t, ok)
		assert.Equal(t, lockstep.PlayerNumber(i), player)
	}

	h.start()
	assert.Equal(t, 2, h.count(bus.PlayerReady))
	assert.Equal(t, 1, h.count(bus.SessionRunning))

	for range 25 {
		h.tick(frame)
	}
	stats := h.server.GetStats()
	assert.True(t, stats.Running)
	assert.Equal(t, 2, stats.Players)
	assert.Equal(t, uint64(2), stats.Turns)
	assert.Equal(t, 2, h.count(bus.TurnReady))
	// connected x2, ready x2, running, turn x2
	assert.Equal(t, uint64(7), stats.EventsPublished)
	assert.Zero(t, stats.EventErrors)

	require.NoError(t, h.server.Stop())
	assert.Equal(t, 1, h.count(bus.SessionStopped))
	assert.ErrorIs(t, h.server.Stop(), ErrServerNotRunning)
	assert.Zero(t, h.server.GetStats().Turns)

	require.NoError(t, h.server.Close())
	assert.ErrorIs(t, h.server.Start(), ErrServerClosed)
}

func TestServer_ClientsAgreeWithServer(t *testing.T) {
	h := newHarness(t, 2)
	h.start()

	a, b := h.clients[0], h.clients[1]
	for f := range 400 {
		switch f {
		case 0:
			require.NoError(t, a.Submit(&demo.Spawn{X: 5, Z: 5}))
			require.NoError(t, b.Submit(&demo.Spawn{X: -5, Z: -5}))
		case 30:
			require.NoError(t, a.Submit(&demo.Move{Unit: 1, DX: 2, DZ: -1}))
			// Not b's unit, ignored everywhere.
			require.NoError(t, b.Submit(&demo.Move{Unit: 1, DX: -9, DZ: 9}))
		case 60:
			require.NoError(t, b.Submit(&demo.Move{Unit: 2, DX: 0, DZ: 3}))
			require.NoError(t, a.Submit(&demo.Spawn{X: 0, Z: 0}))
		case 120:
			require.NoError(t, b.Submit(&demo.Damage{Unit: 1, Amount: 70}))
		case 150:
			require.NoError(t, b.Submit(&demo.Damage{Unit: 1, Amount: 70}))
		}
		h.tick(frame)
	}

	h.requireAgreement(30)
	for _, c := range h.clients {
		assert.Equal(t, uint32(1), c.World().Score().Kills[1])
		_, alive := c.World().Scene().Get(1)
		assert.False(t, alive)
		assert.Equal(t, c.Recorder().Len(), int(h.server.Lockstep().TurnCount()))
	}

	h.server.broadcaster.Flush()
	for _, c := range h.clients {
		require.NoError(t, c.Update(0))
		assert.Equal(t, h.server.World().Checksum(), scene.Checksum(c.Scene(), h.server.World().Codec()))
		for obj := range c.Scene().Objects() {
			_, ok := behaviour.Get[*demo.Nameplate](obj.Behaviours)
			assert.True(t, ok, "object %d", obj.ID)
		}
	}
}

func TestServer_ResyncAfterCorruptUpdate(t *testing.T) {
	h := newHarness(t, 1)
	h.start()
	c := h.clients[0]

	require.NoError(t, c.Submit(&demo.Spawn{X: 1, Z: 2}))
	for range 30 {
		h.tick(frame)
	}
	h.server.broadcaster.Flush()
	h.tick(0)
	require.True(t, c.Replication().Synced())

	var desynced int
	c.OnEvent(netclient.EventTypeDesynced, func(netclient.Event) error {
		desynced++
		return nil
	})
	corrupt := protocol.Message{Kind: protocol.KindSceneUpdate, Payload: []byte{0xff}}.Marshal()
	require.NoError(t, h.hub.Send(h.conns[0].ID(), corrupt))
	require.NoError(t, c.Update(0))

	assert.True(t, c.Replication().Desynced())
	assert.Equal(t, 1, c.Resyncs())
	assert.Equal(t, 1, desynced)

	h.tick(0)
	assert.Equal(t, 1, h.count(bus.ResyncRequested))

	h.server.broadcaster.Flush()
	h.tick(0)
	assert.True(t, c.Replication().Synced())
	assert.Equal(t, h.server.World().Checksum(), scene.Checksum(c.Scene(), h.server.World().Codec()))
}

func TestServer_ReconnectKeepsPlayerNumber(t *testing.T) {
	h := newHarness(t, 2)
	h.start()

	a := h.clients[0]
	require.NoError(t, a.Submit(&demo.Spawn{X: 3}))
	for range 100 {
		h.tick(frame)
	}

	require.NoError(t, a.Disconnect())
	h.tick(frame)
	assert.Equal(t, 1, h.count(bus.PlayerDisconnected))
	assert.Equal(t, 1, h.server.GetStats().Players)

	for range 50 {
		h.tick(frame)
	}
	require.NoError(t, a.Connect(context.Background()))
	for range 200 {
		h.tick(frame)
	}

	player, ok := a.Player()
	require.True(t, ok)
	assert.Equal(t, lockstep.PlayerNumber(0), player)
	assert.Equal(t, 2, h.server.GetStats().KnownPlayers)
	h.requireAgreement(30)
}

func TestServer_RejectsUnexpectedMessages(t *testing.T) {
	h := newHarness(t, 1)

	err := h.server.handleMessage(h.conns[0].ID(), protocol.Message{Kind: protocol.KindTurn}.Marshal())
	assert.ErrorIs(t, err, ErrUnexpectedMessage)
	assert.Equal(t, protocol.ErrorCodeUnknownMessage, protocol.GetErrorCode(err))

	err = h.server.handleMessage("stranger", protocol.Message{Kind: protocol.KindResync}.Marshal())
	assert.ErrorIs(t, err, protocol.ErrUnknownPeer)

	_, err = protocol.Unmarshal(nil)
	assert.Error(t, err)
	assert.Error(t, h.server.handleMessage(h.conns[0].ID(), nil))
}

func TestTokenAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	guarded := (&TokenAuth{Token: "secret"}).Wrap(ok)

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/ws", "", http.StatusUnauthorized},
		{"wrong query", "/ws?token=nope", "", http.StatusUnauthorized},
		{"query", "/ws?token=secret", "", http.StatusNoContent},
		{"bearer", "/ws", "Bearer secret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	var nilAuth *TokenAuth
	rec := httptest.NewRecorder()
	nilAuth.Wrap(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHTTPServer_Healthz(t *testing.T) {
	ws := websocket.NewServer(websocket.DefaultConfig(), nil)
	srv := NewHTTPServer("127.0.0.1:0", "/ws", ws, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_WebSocketSession(t *testing.T) {
	if testing.Short() {
		t.Skip("opens a TCP listener")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	cfg.Transport.Addr = "127.0.0.1:0"
	cfg.Transport.Token = "secret"
	cfg.Lockstep.MaxPlayers = 1

	listener, err := Listen(ctx, cfg.Transport, log.Nop())
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- listener.Serve(ctx) }()

	srv, err := NewServer(cfg, listener.Transport, log.Nop())
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer func() { _ = srv.Close() }()

	url := fmt.Sprintf("ws://%s%s?token=%s", listener.Addr, cfg.Transport.WebSocket.Path, cfg.Transport.Token)
	transport := websocket.NewClient(url, cfg.Transport.WebSocket, log.Nop())
	ccfg := netclient.DefaultClientConfig()
	c, err := netclient.NewClient(ccfg, transport, log.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer func() { _ = c.Close() }()

	require.Eventually(t, func() bool {
		srv.Update(0)
		if c.Update(0) != nil {
			return false
		}
		_, ok := c.Player()
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-served)
}
