package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
)

// collector keeps every event drained from an inbox.
type collector struct {
	mu     sync.Mutex
	inbox  *protocol.Inbox
	events []protocol.Event
}

func (c *collector) drain() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, c.inbox.Drain()...)
	return append([]protocol.Event(nil), c.events...)
}

func (c *collector) waitFor(t *testing.T, n int) []protocol.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.drain()) >= n }, 2*time.Second, 5*time.Millisecond)
	return c.drain()
}

func newTestServer(t *testing.T) (*Server, *collector, string) {
	t.Helper()
	srv := NewServer(DefaultConfig(), log.Nop())
	events := &collector{inbox: protocol.NewInbox()}
	events.inbox.BindServer(srv)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, events, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestTransport_RoundTrip(t *testing.T) {
	srv, serverEvents, url := newTestServer(t)

	client := NewClient(url, DefaultConfig(), log.Nop())
	clientEvents := &collector{inbox: protocol.NewInbox()}
	clientEvents.inbox.BindClient(client)

	require.ErrorIs(t, client.SendMessage([]byte{1}), protocol.ErrNotConnected)
	require.NoError(t, client.Connect(context.Background()))
	require.True(t, client.Connected())

	events := serverEvents.waitFor(t, 1)
	require.Equal(t, protocol.EventConnect, events[0].Type)
	conn := events[0].Conn

	require.NoError(t, client.SendMessage([]byte{1, 2, 3}))
	events = serverEvents.waitFor(t, 2)
	assert.Equal(t, protocol.EventMessage, events[1].Type)
	assert.Equal(t, conn, events[1].Conn)
	assert.Equal(t, []byte{1, 2, 3}, events[1].Data)

	require.NoError(t, srv.Send(conn, []byte{4}))
	require.NoError(t, srv.Send(conn, []byte{5}))
	received := clientEvents.waitFor(t, 2)
	assert.Equal(t, []byte{4}, received[0].Data)
	assert.Equal(t, []byte{5}, received[1].Data)

	require.NoError(t, client.Disconnect())
	assert.False(t, client.Connected())
	events = serverEvents.waitFor(t, 3)
	assert.Equal(t, protocol.EventDisconnect, events[2].Type)
	assert.ErrorIs(t, srv.Send(conn, []byte{6}), protocol.ErrConnectionClosed)
}

func TestTransport_ServerClose(t *testing.T) {
	srv, serverEvents, url := newTestServer(t)

	client := NewClient(url, DefaultConfig(), nil)
	require.NoError(t, client.Connect(context.Background()))
	serverEvents.waitFor(t, 1)
	require.Equal(t, 1, srv.ConnCount())

	require.NoError(t, srv.Close())
	require.Eventually(t, func() bool { return !client.Connected() }, 2*time.Second, 5*time.Millisecond)
	serverEvents.waitFor(t, 2)
	assert.Zero(t, srv.ConnCount())
}

func TestTransport_MessageTooLarge(t *testing.T) {
	srv := NewServer(Config{Path: "/ws", MaxMessageSize: 8}, nil)
	events := &collector{inbox: protocol.NewInbox()}
	events.inbox.BindServer(srv)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := NewClient("ws"+strings.TrimPrefix(ts.URL, "http"), DefaultConfig(), nil)
	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.SendMessage(make([]byte, 64)))

	got := events.waitFor(t, 2)
	assert.Equal(t, protocol.EventConnect, got[0].Type)
	assert.Equal(t, protocol.EventDisconnect, got[1].Type)
}

func TestClient_DialFailure(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", DefaultConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := client.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, protocol.ErrorCodeConnectionLost, protocol.GetErrorCode(err))
}
