// Package loopback is an in-memory transport. Delivery is synchronous and
// ordered, which makes sessions reproducible in tests and local play. Links
// can be stalled to simulate lag.
package loopback

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/netsync/internal/core/protocol"
)

var _ protocol.ServerTransport = (*Hub)(nil)

// Hub is the server end of the loopback network.
type Hub struct {
	mu    sync.RWMutex
	conns map[protocol.ConnID]*Conn

	onConnect    func(protocol.ConnID)
	onDisconnect func(protocol.ConnID)
	onMessage    func(protocol.ConnID, []byte)
}

func NewHub() *Hub {
	return &Hub{conns: make(map[protocol.ConnID]*Conn)}
}

// Dial returns an unconnected client transport bound to the hub.
func (h *Hub) Dial() *Conn {
	return &Conn{hub: h}
}

func (h *Hub) Send(conn protocol.ConnID, data []byte) error {
	h.mu.RLock()
	c, ok := h.conns[conn]
	h.mu.RUnlock()
	if !ok {
		return protocol.ErrConnectionClosed
	}
	c.deliver(data)
	return nil
}

func (h *Hub) OnConnect(handler func(protocol.ConnID)) {
	h.mu.Lock()
	h.onConnect = handler
	h.mu.Unlock()
}

func (h *Hub) OnDisconnect(handler func(protocol.ConnID)) {
	h.mu.Lock()
	h.onDisconnect = handler
	h.mu.Unlock()
}

func (h *Hub) OnMessageReceived(handler func(protocol.ConnID, []byte)) {
	h.mu.Lock()
	h.onMessage = handler
	h.mu.Unlock()
}

// Conns lists the connected ids.
func (h *Hub) Conns() []protocol.ConnID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]protocol.ConnID, 0, len(h.conns))
	for id := range h.conns {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		_ = c.Disconnect()
	}
	return nil
}

func (h *Hub) attach(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	handler := h.onConnect
	h.mu.Unlock()
	if handler != nil {
		handler(c.id)
	}
}

func (h *Hub) detach(id protocol.ConnID) {
	h.mu.Lock()
	_, ok := h.conns[id]
	delete(h.conns, id)
	handler := h.onDisconnect
	h.mu.Unlock()
	if ok && handler != nil {
		handler(id)
	}
}

func (h *Hub) receive(id protocol.ConnID, data []byte) {
	h.mu.RLock()
	handler := h.onMessage
	h.mu.RUnlock()
	if handler != nil {
		handler(id, data)
	}
}

var _ protocol.Transport = (*Conn)(nil)

// Conn is the client end of one loopback link. Each Connect opens a new
// server-side connection id.
type Conn struct {
	hub *Hub

	mu        sync.Mutex
	id        protocol.ConnID
	connected bool
	stalled   bool
	held      [][]byte
	onMessage func([]byte)
}

func (c *Conn) ID() protocol.ConnID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Conn) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.id = protocol.ConnID(uuid.NewString())
	c.connected = true
	c.mu.Unlock()

	c.hub.attach(c)
	return nil
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	id := c.id
	c.connected = false
	c.held = nil
	c.mu.Unlock()

	c.hub.detach(id)
	return nil
}

func (c *Conn) SendMessage(data []byte) error {
	c.mu.Lock()
	id, ok := c.id, c.connected
	c.mu.Unlock()
	if !ok {
		return protocol.ErrNotConnected
	}
	c.hub.receive(id, slices.Clone(data))
	return nil
}

func (c *Conn) OnMessageReceived(handler func([]byte)) {
	c.mu.Lock()
	c.onMessage = handler
	c.mu.Unlock()
}

// Stall holds server messages for this link while stalled is true. Releasing
// the stall delivers the held messages in order.
func (c *Conn) Stall(stalled bool) {
	c.mu.Lock()
	c.stalled = stalled
	var flush [][]byte
	if !stalled {
		flush, c.held = c.held, nil
	}
	handler := c.onMessage
	c.mu.Unlock()

	if handler == nil {
		return
	}
	for _, data := range flush {
		handler(data)
	}
}

func (c *Conn) Held() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}

func (c *Conn) deliver(data []byte) {
	data = slices.Clone(data)
	c.mu.Lock()
	if c.stalled {
		c.held = append(c.held, data)
		c.mu.Unlock()
		return
	}
	handler := c.onMessage
	c.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}
