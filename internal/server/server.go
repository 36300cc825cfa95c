package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zeusync/netsync/internal/config"
	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/events/bus"
	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/replication"
	"github.com/zeusync/netsync/internal/demo"

	"github.com/zeusync/netsync/internal/core/observability/log"
)

const eventSource = "server"

// Server hosts one lockstep session of the demo game.
//
// Transport callbacks only queue into the inbox; every engine is driven from
// Update, which must be called from one goroutine (Run does that).
type Server struct {
	// Core components
	transport protocol.ServerTransport
	inbox     *protocol.Inbox

	// Session
	registry    *command.Registry
	lockstep    *lockstep.Server
	world       *demo.World
	logic       *lockstep.Logic
	broadcaster *replication.Broadcaster
	bus         bus.EventBus

	// Server state
	running atomic.Bool
	closed  atomic.Bool

	config     config.Config
	logger     log.Log
	baseLogger log.Log
}

// NewServer builds a server on transport. Configuration mistakes in the
// command registry or the world logic are reported here.
func NewServer(cfg config.Config, transport protocol.ServerTransport, logger log.Log) (*Server, error) {
	if logger == nil {
		logger = log.Provide()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		transport: transport,
		inbox:     protocol.NewInbox(),
		registry:  demo.Commands(),
		bus:       bus.New(),
		config:    cfg,
		logger:    logger.With(log.String("component", "server")),

		baseLogger: logger,
	}

	s.lockstep = lockstep.NewServer(cfg.Lockstep, s.registry, transport, logger)
	if err := s.newSession(); err != nil {
		return nil, err
	}
	s.bus.AddObserver(bus.NewLogObserver(logger))

	s.lockstep.OnTurnReady(s.onTurnReady)
	s.lockstep.OnStateChange(s.onStateChange)
	s.lockstep.OnPlayerReady(func(player lockstep.PlayerNumber) {
		e := bus.NewEvent(bus.PlayerReady, eventSource)
		e.Player = uint8(player)
		s.publish(e)
	})

	s.logger.Info("Server created",
		log.String("transport", cfg.Transport.Kind),
		log.String("addr", cfg.Transport.Addr),
		log.Int("max_players", cfg.Lockstep.MaxPlayers),
	)
	return s, nil
}

// Events exposes the session event bus.
func (s *Server) Events() bus.EventBus { return s.bus }

func (s *Server) Lockstep() *lockstep.Server { return s.lockstep }

// World is the authoritative game state mirrored to clients.
func (s *Server) World() *demo.World { return s.world }

// Start binds the transport and opens the session for players.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	if err := s.lockstep.Start(); err != nil {
		s.running.Store(false)
		return err
	}
	s.inbox.BindServer(s.transport)
	s.logger.Info("Server started")
	return nil
}

// Stop ends the session and starts over with an empty world. The transport
// stays open so Start can begin a new session; clients have to send Hello
// again. Like Update, Stop must not run concurrently with Run.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	turns := s.lockstep.TurnCount()
	s.lockstep.Stop()
	s.inbox.Drain()
	if err := s.newSession(); err != nil {
		return err
	}
	s.logger.Info("Server stopped", log.Uint64("turns", turns))
	return nil
}

func (s *Server) newSession() error {
	world := demo.NewWorld()
	logic, err := world.Logic(s.registry)
	if err != nil {
		return err
	}
	s.world = world
	s.logic = logic
	s.broadcaster = replication.NewBroadcaster(s.config.Replication, world.Scene(), world.Codec(), s.transport, s.baseLogger)
	return nil
}

// Close stops the session and closes the transport.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.running.Load() {
		_ = s.Stop()
	}
	err := s.transport.Close()
	s.logger.Info("Server closed")
	return err
}

// Run drives Update every tick until ctx is done.
func (s *Server) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Update(now.Sub(last))
			last = now
		}
	}
}

// Update handles queued transport events, then advances the turn engine and
// the scene replication by dt.
func (s *Server) Update(dt time.Duration) {
	if !s.running.Load() {
		return
	}
	for _, event := range s.inbox.Drain() {
		switch event.Type {
		case protocol.EventConnect:
			s.logger.Debug("Client connected", log.String("conn", string(event.Conn)))
		case protocol.EventDisconnect:
			s.handleDisconnect(event.Conn)
		case protocol.EventMessage:
			if err := s.handleMessage(event.Conn, event.Data); err != nil {
				s.logger.Warn("Message rejected",
					log.String("conn", string(event.Conn)),
					log.Int("code", int(protocol.GetErrorCode(err))),
					log.Error(err),
				)
			}
		}
	}
	s.lockstep.Update(dt)
	s.broadcaster.Update(dt)
}

func (s *Server) handleMessage(conn protocol.ConnID, data []byte) error {
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		return err
	}

	switch msg.Kind {
	case protocol.KindHello:
		return s.handleHello(conn, msg.Payload)
	case protocol.KindReady:
		return s.lockstep.Ready(conn)
	case protocol.KindCommand:
		return s.lockstep.HandleCommand(conn, msg.Payload)
	case protocol.KindResync:
		return s.handleResync(conn)
	default:
		return protocol.NewProtocolError(protocol.ErrorCodeUnknownMessage, msg.Kind.String(), ErrUnexpectedMessage)
	}
}

func (s *Server) handleHello(conn protocol.ConnID, payload []byte) error {
	identity, err := lockstep.DecodeHello(payload)
	if err != nil {
		return err
	}
	player, err := s.lockstep.Hello(conn, identity)
	if _, bound := s.lockstep.Player(conn); !bound {
		return err
	}
	// A failed history send leaves the player bound; it keeps receiving
	// scene updates and catches up on turns after reconnecting.
	s.broadcaster.AddClient(conn)

	e := bus.NewEvent(bus.PlayerConnected, eventSource)
	e.Conn = string(conn)
	e.Player = uint8(player)
	e.Data = identity
	s.publish(e)
	return err
}

func (s *Server) handleResync(conn protocol.ConnID) error {
	if _, ok := s.lockstep.Player(conn); !ok {
		return protocol.ErrUnknownPeer
	}
	s.broadcaster.Resync(conn)

	e := bus.NewEvent(bus.ResyncRequested, eventSource)
	e.Conn = string(conn)
	s.publish(e)
	return nil
}

func (s *Server) handleDisconnect(conn protocol.ConnID) {
	player, known := s.lockstep.Player(conn)
	s.lockstep.Disconnect(conn)
	s.broadcaster.RemoveClient(conn)
	s.logger.Debug("Client disconnected", log.String("conn", string(conn)))
	if !known {
		return
	}

	e := bus.NewEvent(bus.PlayerDisconnected, eventSource)
	e.Conn = string(conn)
	e.Player = uint8(player)
	s.publish(e)
}

func (s *Server) onTurnReady(turn lockstep.Turn) {
	if err := s.world.ApplyTurn(s.logic, turn.Clone(), s.config.Lockstep); err != nil {
		s.logger.Error("Turn rejected by world", log.Uint64("turn", turn.Number), log.Error(err))
	}

	e := bus.NewEvent(bus.TurnReady, eventSource)
	e.Turn = turn.Number
	e.Data = len(turn.Entries)
	s.publish(e)
}

func (s *Server) onStateChange(state lockstep.State) {
	switch state {
	case lockstep.StateRunning:
		s.publish(bus.NewEvent(bus.SessionRunning, eventSource))
	case lockstep.StateStopped:
		s.publish(bus.NewEvent(bus.SessionStopped, eventSource))
	default:
	}
}

func (s *Server) publish(e bus.Event) {
	if err := s.bus.Publish(e); err != nil {
		s.logger.Warn("Event handler failed", log.String("type", string(e.Type)), log.Error(err))
	}
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	events := s.bus.GetMetrics()
	return Stats{
		State:        s.lockstep.State(),
		Players:      s.lockstep.PlayerCount(),
		KnownPlayers: s.lockstep.KnownPlayers(),
		ReadyPlayers: s.lockstep.ReadyCount(),
		Turns:        s.lockstep.TurnCount(),
		Objects:      s.world.Scene().Len(),
		Checksum:     s.world.Checksum(),
		Running:      s.running.Load(),

		EventsPublished: events.Published,
		EventErrors:     events.Errors,
	}
}

// Stats contains server statistics
type Stats struct {
	State        lockstep.State
	Players      int
	KnownPlayers int
	ReadyPlayers int
	Turns        uint64
	Objects      int
	Checksum     uint64
	Running      bool

	// Bus counters for the lifetime of the server.
	EventsPublished uint64
	EventErrors     uint64
}
