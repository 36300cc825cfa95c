package lockstep

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/wire"
)

// State of the server turn engine.
type State uint8

const (
	StateStopped State = iota
	StateWaitingForPlayers
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateWaitingForPlayers:
		return "waiting_for_players"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var (
	ErrNotStarted     = errors.New("lockstep server is not started")
	ErrAlreadyStarted = errors.New("lockstep server is already started")
)

type peer struct {
	player PlayerNumber
}

// Server collects commands into fixed-duration turns and replicates every
// closed turn to all connected players.
//
// Player numbers are bound to the identity sent in Hello; a reconnecting
// client gets its old number back together with every turn since turn 0.
type Server struct {
	config   Config
	registry *command.Registry
	sender   protocol.Sender
	logger   log.Log

	state      State
	identities map[string]PlayerNumber
	peers      map[protocol.ConnID]*peer
	connected  map[PlayerNumber]protocol.ConnID
	ready      map[PlayerNumber]bool

	open    []Entry
	turns   []Turn
	history [][]byte
	elapsed time.Duration

	onTurnReady []func(Turn)
	onState     []func(State)
	onReady     []func(PlayerNumber)
}

func NewServer(config Config, registry *command.Registry, sender protocol.Sender, logger log.Log) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Server{
		config:   config,
		registry: registry,
		sender:   sender,
		logger:   logger.With(log.String("component", "lockstep_server")),
	}
	s.reset()
	return s
}

func (s *Server) reset() {
	s.state = StateStopped
	s.identities = make(map[string]PlayerNumber)
	s.peers = make(map[protocol.ConnID]*peer)
	s.connected = make(map[PlayerNumber]protocol.ConnID)
	s.ready = make(map[PlayerNumber]bool)
	s.open = nil
	s.turns = nil
	s.history = nil
	s.elapsed = 0
}

// OnTurnReady registers a callback fired for every closed turn, before it is
// broadcast.
func (s *Server) OnTurnReady(fn func(Turn)) { s.onTurnReady = append(s.onTurnReady, fn) }

func (s *Server) OnStateChange(fn func(State)) { s.onState = append(s.onState, fn) }

func (s *Server) OnPlayerReady(fn func(PlayerNumber)) { s.onReady = append(s.onReady, fn) }

func (s *Server) Start() error {
	if s.state != StateStopped {
		return ErrAlreadyStarted
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	s.setState(StateWaitingForPlayers)
	return nil
}

// Stop drops every player, turn and counter so the next Start begins clean.
func (s *Server) Stop() {
	if s.state == StateStopped {
		return
	}
	s.reset()
	s.logger.Info("lockstep server stopped")
	for _, fn := range s.onState {
		fn(StateStopped)
	}
}

func (s *Server) setState(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.logger.Info("lockstep state changed", log.String("state", state.String()))
	for _, fn := range s.onState {
		fn(state)
	}
}

func (s *Server) State() State { return s.state }

// PlayerCount is the number of players currently connected.
func (s *Server) PlayerCount() int { return len(s.connected) }

// KnownPlayers is the number of identities that ever joined this session.
func (s *Server) KnownPlayers() int { return len(s.identities) }

// ReadyCount is the number of connected players that signalled ready.
func (s *Server) ReadyCount() int { return len(s.ready) }

func (s *Server) TurnCount() uint64 { return uint64(len(s.turns)) }

// History returns copies of every closed turn.
func (s *Server) History() []Turn {
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.Clone()
	}
	return out
}

// HistoryChecksum hashes the encoded turn history.
func (s *Server) HistoryChecksum() uint64 {
	h := xxhash.New()
	for _, data := range s.history {
		_, _ = h.Write(data)
	}
	return h.Sum64()
}

// Player returns the player number bound to conn.
func (s *Server) Player(conn protocol.ConnID) (PlayerNumber, bool) {
	p, ok := s.peers[conn]
	if !ok {
		return 0, false
	}
	return p.player, true
}

// Hello binds conn to the player number of identity, allocating one on first
// sight, answers with Welcome and resends the whole turn history.
func (s *Server) Hello(conn protocol.ConnID, identity string) (PlayerNumber, error) {
	if s.state == StateStopped {
		return 0, ErrNotStarted
	}

	player, known := s.identities[identity]
	if !known {
		if len(s.identities) >= s.config.MaxPlayers {
			return 0, protocol.NewProtocolError(protocol.ErrorCodeSessionFull,
				fmt.Sprintf("%d players", s.config.MaxPlayers), protocol.ErrSessionFull)
		}
		player = PlayerNumber(len(s.identities))
		s.identities[identity] = player
	}

	// A connection holds one player. Switching identity releases the old one.
	if current, ok := s.peers[conn]; ok && current.player != player {
		s.unbind(conn, current.player)
	}
	if previous, ok := s.connected[player]; ok && previous != conn {
		delete(s.peers, previous)
		delete(s.ready, player)
	}
	s.peers[conn] = &peer{player: player}
	s.connected[player] = conn

	s.logger.Info("player joined",
		log.String("conn", string(conn)),
		log.Uint8("player", uint8(player)),
		log.Bool("reconnect", known),
		log.Int("history", len(s.history)),
	)

	if err := s.sender.Send(conn, EncodeWelcome(Welcome{Player: player, Turns: uint64(len(s.history))})); err != nil {
		return player, fmt.Errorf("welcome: %w", err)
	}
	for _, data := range s.history {
		if err := s.sender.Send(conn, data); err != nil {
			return player, fmt.Errorf("history: %w", err)
		}
	}
	return player, nil
}

// Ready marks the player behind conn ready. Repeated calls are no-ops.
func (s *Server) Ready(conn protocol.ConnID) error {
	p, ok := s.peers[conn]
	if !ok {
		return fmt.Errorf("ready from %s: %w", conn, protocol.ErrUnknownPeer)
	}
	if s.ready[p.player] {
		return nil
	}
	s.ready[p.player] = true
	s.logger.Debug("player ready",
		log.Uint8("player", uint8(p.player)),
		log.Int("ready", len(s.ready)),
	)
	for _, fn := range s.onReady {
		fn(p.player)
	}

	if s.state == StateWaitingForPlayers && len(s.ready) == s.config.MaxPlayers {
		s.elapsed = 0
		s.setState(StateRunning)
	}
	return nil
}

// Disconnect forgets conn. The player keeps its number but has to signal
// ready again if the session is still waiting for players.
func (s *Server) Disconnect(conn protocol.ConnID) {
	p, ok := s.peers[conn]
	if !ok {
		return
	}
	s.unbind(conn, p.player)
	s.logger.Info("player left",
		log.String("conn", string(conn)),
		log.Uint8("player", uint8(p.player)),
	)
}

func (s *Server) unbind(conn protocol.ConnID, player PlayerNumber) {
	delete(s.peers, conn)
	if s.connected[player] == conn {
		delete(s.connected, player)
		delete(s.ready, player)
	}
}

// HandleCommand decodes a command submission from conn and queues it.
func (s *Server) HandleCommand(conn protocol.ConnID, payload []byte) error {
	p, ok := s.peers[conn]
	if !ok {
		return fmt.Errorf("command from %s: %w", conn, protocol.ErrUnknownPeer)
	}
	r := wire.NewReader(payload)
	_, cmd, err := s.registry.Decode(r)
	if err == nil {
		err = r.Done()
	}
	if err != nil {
		return malformedTurn(err)
	}
	return s.AddCommand(p.player, cmd)
}

// AddCommand appends a copy of cmd to the open turn. Commands keep their
// arrival order.
func (s *Server) AddCommand(player PlayerNumber, cmd command.Command) error {
	tag, err := s.registry.TagOf(cmd)
	if err != nil {
		return err
	}
	s.open = append(s.open, Entry{Player: player, Tag: tag, Command: cmd.Clone()})
	return nil
}

// Update closes one turn per CommandStepDuration of accumulated time while
// running.
func (s *Server) Update(dt time.Duration) {
	if s.state != StateRunning {
		return
	}
	s.elapsed += dt
	for s.elapsed >= s.config.CommandStepDuration {
		s.elapsed -= s.config.CommandStepDuration
		s.closeTurn()
	}
}

func (s *Server) closeTurn() {
	turn := Turn{Number: uint64(len(s.turns)), Entries: s.open}
	s.open = nil

	data := EncodeTurnMessage(turn)
	s.turns = append(s.turns, turn)
	s.history = append(s.history, data)

	for _, fn := range s.onTurnReady {
		fn(turn)
	}

	for _, player := range slices.Sorted(maps.Keys(s.connected)) {
		conn := s.connected[player]
		if err := s.sender.Send(conn, data); err != nil {
			s.logger.Warn("turn send failed",
				log.Uint64("turn", turn.Number),
				log.String("conn", string(conn)),
				log.Error(err),
			)
		}
	}
}
