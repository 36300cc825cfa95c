// Package client is the Go SDK for joining a netsync session of the demo
// game. It runs the lockstep simulation locally and mirrors the server scene
// next to it.
package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/replay"
	"github.com/zeusync/netsync/internal/core/replication"
	"github.com/zeusync/netsync/internal/core/scene"
	"github.com/zeusync/netsync/internal/demo"
)

// Client is one player in a session.
//
// Transport callbacks only queue messages; Update drains them and advances
// every engine. Update and the session methods (Ready, Submit) must be
// called from the same goroutine.
type Client struct {
	// Connection management
	transport protocol.Transport
	inbox     *protocol.Inbox

	// Session
	identity string
	registry *command.Registry
	world    *demo.World
	lockstep *lockstep.Client
	applier  *replication.Applier
	recorder *replay.Recorder

	// Event handlers
	eventHandlers map[EventType][]EventHandler
	handlerMutex  sync.RWMutex

	// Lifecycle
	connected atomic.Bool
	closed    atomic.Bool
	resyncs   int

	config Config
	logger log.Log
}

// Config holds configuration for the client
type Config struct {
	// Identity is the stable player identity sent in Hello. A random one is
	// generated when empty.
	Identity string

	ConnectTimeout time.Duration

	Lockstep    lockstep.Config
	Replication replication.Config

	// Hooks run when objects appear in or leave the mirrored scene.
	Hooks replication.Hooks

	// Record keeps every received turn for a replay archive.
	Record bool
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		Lockstep:       lockstep.DefaultConfig(),
		Replication:    replication.DefaultConfig(),
	}
}

// EventHandler defines a function type for handling client events
type EventHandler func(event Event) error

// EventType represents different types of client events
type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeWelcomed     EventType = "welcomed"
	EventTypeTurnApplied  EventType = "turn_applied"
	EventTypeDesynced     EventType = "desynced"
	EventTypeError        EventType = "error"
)

// Event represents a client event
type Event struct {
	Type      EventType
	Timestamp time.Time
	Turn      uint64
	Error     error
}

// NewClient creates a client on transport. The transport is connected by
// Connect.
func NewClient(config Config, transport protocol.Transport, logger log.Log) (*Client, error) {
	if logger == nil {
		logger = log.Provide()
	}
	if err := config.Lockstep.Validate(); err != nil {
		return nil, err
	}
	if err := config.Replication.Validate(); err != nil {
		return nil, err
	}
	if config.Identity == "" {
		config.Identity = uuid.NewString()
	}

	c := &Client{
		transport:     transport,
		inbox:         protocol.NewInbox(),
		identity:      config.Identity,
		registry:      demo.Commands(),
		world:         demo.NewWorld(),
		eventHandlers: make(map[EventType][]EventHandler),
		config:        config,
		logger:        logger.With(log.String("component", "client"), log.String("identity", config.Identity)),
	}

	logic, err := c.world.Logic(c.registry)
	if err != nil {
		return nil, err
	}
	c.lockstep = lockstep.NewClient(config.Lockstep, c.registry, logic, transport, logger)
	c.lockstep.SetSimulation(c.world.Step)
	c.lockstep.OnTurnApplied(func(turn lockstep.Turn) {
		c.emitEvent(Event{Type: EventTypeTurnApplied, Timestamp: time.Now(), Turn: turn.Number})
	})

	c.applier = replication.NewApplier(config.Replication, c.world.Codec(), demo.Factory(), config.Hooks, logger)

	if config.Record {
		c.recorder = replay.NewRecorder(c.registry)
		c.recorder.Record(c.lockstep)
	}

	c.inbox.BindClient(transport)

	c.logger.Info("Client created")
	return c, nil
}

// Connect establishes the connection and announces the identity. Reconnecting
// after Disconnect keeps the simulation; the server resends the turn
// history and already applied turns are skipped.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()
	if err := c.transport.Connect(connectCtx); err != nil {
		c.logger.Error("Failed to connect to server", log.Error(err))
		return err
	}
	c.connected.Store(true)

	if err := c.lockstep.Hello(c.identity); err != nil {
		return err
	}

	c.logger.Info("Connected to server")
	c.emitEvent(Event{Type: EventTypeConnected, Timestamp: time.Now()})
	return nil
}

// Disconnect closes the connection and forgets the mirrored scene. The
// lockstep simulation is kept for a later Connect.
func (c *Client) Disconnect() error {
	if !c.connected.CompareAndSwap(true, false) {
		return ErrNotConnected
	}
	err := c.transport.Disconnect()
	c.inbox.Drain()
	c.applier.Reset()

	c.logger.Info("Disconnected from server")
	c.emitEvent(Event{Type: EventTypeDisconnected, Timestamp: time.Now()})
	return err
}

// Close disconnects and drops all session state.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.connected.Load() {
		_ = c.Disconnect()
	}
	c.lockstep.Stop()
	c.logger.Info("Client closed")
	return nil
}

// Ready tells the server this player can start.
func (c *Client) Ready() error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return c.lockstep.Ready()
}

// Submit sends cmd to the server. It takes effect when it comes back in a
// turn.
func (c *Client) Submit(cmd command.Command) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return c.lockstep.Submit(cmd)
}

// Update handles queued messages and advances the simulation and the
// mirrored scene by dt. An error means the local simulation diverged.
func (c *Client) Update(dt time.Duration) error {
	for _, event := range c.inbox.Drain() {
		if err := c.handleMessage(event.Data); err != nil {
			c.logger.Warn("Message rejected",
				log.Int("code", int(protocol.GetErrorCode(err))),
				log.Error(err),
			)
			c.emitEvent(Event{Type: EventTypeError, Timestamp: time.Now(), Error: err})
		}
	}

	if _, err := c.lockstep.Update(dt); err != nil {
		c.emitEvent(Event{Type: EventTypeError, Timestamp: time.Now(), Error: err})
		return err
	}
	c.applier.Update(dt)
	return nil
}

func (c *Client) handleMessage(data []byte) error {
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		return err
	}

	switch msg.Kind {
	case protocol.KindWelcome:
		if err = c.lockstep.HandleWelcome(msg.Payload); err != nil {
			return err
		}
		player, _ := c.lockstep.Player()
		c.logger.Info("Joined session", log.Uint8("player", uint8(player)))
		c.emitEvent(Event{Type: EventTypeWelcomed, Timestamp: time.Now()})
		return nil
	case protocol.KindTurn:
		return c.lockstep.HandleTurn(msg.Payload)
	case protocol.KindSceneUpdate:
		c.lockstep.Heard()
		if err = c.applier.Apply(msg.Payload); err != nil && protocol.IsFatal(err) {
			c.requestResync(err)
		}
		return err
	default:
		return protocol.NewProtocolError(protocol.ErrorCodeUnknownMessage, msg.Kind.String(), ErrUnexpectedMessage)
	}
}

func (c *Client) requestResync(cause error) {
	c.resyncs++
	c.emitEvent(Event{Type: EventTypeDesynced, Timestamp: time.Now(), Error: cause})
	if err := c.transport.SendMessage(protocol.Message{Kind: protocol.KindResync}.Marshal()); err != nil {
		c.logger.Warn("Resync request failed", log.Error(err))
		return
	}
	c.logger.Info("Resync requested", log.Int("resyncs", c.resyncs))
}

// OnEvent registers an event handler
func (c *Client) OnEvent(eventType EventType, handler EventHandler) {
	c.handlerMutex.Lock()
	defer c.handlerMutex.Unlock()
	c.eventHandlers[eventType] = append(c.eventHandlers[eventType], handler)
}

func (c *Client) emitEvent(event Event) {
	c.handlerMutex.RLock()
	handlers := c.eventHandlers[event.Type]
	c.handlerMutex.RUnlock()

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			c.logger.Warn("Event handler failed",
				log.String("event_type", string(event.Type)),
				log.Error(err))
		}
	}
}

func (c *Client) Identity() string { return c.identity }

// Player returns the player number once the server welcomed the client.
func (c *Client) Player() (lockstep.PlayerNumber, bool) { return c.lockstep.Player() }

// World is the state built by applying turns locally.
func (c *Client) World() *demo.World { return c.world }

// Scene is the presentation view of the replicated server scene.
func (c *Client) Scene() *scene.Scene { return c.applier.Scene() }

func (c *Client) Replication() *replication.Applier { return c.applier }

func (c *Client) Lockstep() *lockstep.Client { return c.lockstep }

// Recorder is nil unless Config.Record is set.
func (c *Client) Recorder() *replay.Recorder { return c.recorder }

// Resyncs counts the baselines requested after a desync.
func (c *Client) Resyncs() int { return c.resyncs }

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.connected.Load() && !c.closed.Load()
}
