package lockstep

import (
	"fmt"
	"time"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/pkg/sequence"
)

// Client buffers turns received from the server and applies them in order
// at the command step cadence.
//
// After ClientStartDelay every CommandStepDuration of accumulated time
// applies one turn. When more than Cushion contiguous turns are waiting the
// client also applies turns ahead of schedule to catch up. Either way no
// more than MaxSimulationStepsPerFrame turns are applied per Update and a
// turn is never skipped or applied out of order.
type Client struct {
	config   Config
	registry *command.Registry
	logic    *Logic
	sender   protocol.MessageSender
	logger   log.Log

	player   PlayerNumber
	welcomed bool

	buffer       *sequence.OrderedQueue[uint64, Turn]
	next         uint64
	started      bool
	startElapsed time.Duration
	accumulator  time.Duration
	silence      time.Duration
	connected    bool

	simulation func(step time.Duration)
	onReceived []func(Turn)
	onApplied  []func(Turn)
}

func NewClient(config Config, registry *command.Registry, logic *Logic, sender protocol.MessageSender, logger log.Log) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		config:   config,
		registry: registry,
		logic:    logic,
		sender:   sender,
		logger:   logger.With(log.String("component", "lockstep_client")),
		buffer:   sequence.NewOrderedQueue[uint64, Turn](),
	}
}

// SetSimulation installs the fixed-step simulation hook run after the
// commands of each turn.
func (c *Client) SetSimulation(fn func(step time.Duration)) { c.simulation = fn }

// OnTurnReceived registers a tap on the turn intake path. It sees every turn
// exactly once, when it first enters the buffer.
func (c *Client) OnTurnReceived(fn func(Turn)) { c.onReceived = append(c.onReceived, fn) }

func (c *Client) OnTurnApplied(fn func(Turn)) { c.onApplied = append(c.onApplied, fn) }

func (c *Client) Player() (PlayerNumber, bool) { return c.player, c.welcomed }

// Connected is false once LagTimeout passes without any message.
func (c *Client) Connected() bool { return c.connected }

// TurnBuffer is the number of received turns not yet applied.
func (c *Client) TurnBuffer() int { return c.buffer.Len() }

// NextTurn is the number of the next turn to apply, which equals the count
// of applied turns.
func (c *Client) NextTurn() uint64 { return c.next }

// CurrentTurn returns the last applied turn number.
func (c *Client) CurrentTurn() (uint64, bool) {
	if c.next == 0 {
		return 0, false
	}
	return c.next - 1, true
}

// Heard records that a message arrived from the server.
func (c *Client) Heard() {
	c.silence = 0
	if !c.connected {
		c.connected = true
		c.logger.Debug("server reachable")
	}
}

// Hello announces identity to the server.
func (c *Client) Hello(identity string) error {
	return c.send(EncodeHello(identity))
}

// Ready signals the server that this player can start.
func (c *Client) Ready() error {
	return c.send(EncodeReady())
}

// Submit sends cmd to the server. It is applied once it comes back inside a
// turn.
func (c *Client) Submit(cmd command.Command) error {
	data, err := EncodeCommand(c.registry, cmd)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *Client) send(data []byte) error {
	if c.sender == nil {
		return protocol.ErrNotConnected
	}
	return c.sender.SendMessage(data)
}

// HandleWelcome processes the server answer to Hello.
func (c *Client) HandleWelcome(payload []byte) error {
	welcome, err := DecodeWelcome(payload)
	if err != nil {
		return err
	}
	c.Heard()
	c.player = welcome.Player
	c.welcomed = true
	c.start()
	c.logger.Info("welcomed",
		log.Uint8("player", uint8(welcome.Player)),
		log.Uint64("history", welcome.Turns),
	)
	return nil
}

// HandleTurn decodes a turn message and buffers it.
func (c *Client) HandleTurn(payload []byte) error {
	c.Heard()
	turn, err := DecodeTurnMessage(payload, c.registry)
	if err != nil {
		return err
	}
	c.Receive(turn)
	return nil
}

// Receive buffers turn. Turns already applied or already buffered are
// ignored, so a full history resend after a reconnect is harmless.
func (c *Client) Receive(turn Turn) bool {
	if turn.Number < c.next || c.buffer.Contains(turn.Number) {
		return false
	}
	c.buffer.Push(turn.Number, turn)
	c.start()
	for _, fn := range c.onReceived {
		fn(turn)
	}
	return true
}

func (c *Client) start() {
	if c.started {
		return
	}
	c.started = true
	c.startElapsed = 0
	c.accumulator = 0
}

// Update advances the client clock by dt and applies due turns. It returns
// how many turns were applied. An error means a turn could not be applied and
// the local simulation can no longer be trusted.
func (c *Client) Update(dt time.Duration) (int, error) {
	c.silence += dt
	if c.connected && c.silence > c.config.LagTimeout {
		c.connected = false
		c.logger.Warn("server silent", log.Error(protocol.WrapError(protocol.ErrLagging, "lockstep client")),
			log.Duration("silence", c.silence))
	}

	if !c.started {
		return 0, nil
	}
	if c.startElapsed < c.config.ClientStartDelay {
		c.startElapsed += dt
		if c.startElapsed < c.config.ClientStartDelay {
			return 0, nil
		}
		dt = c.startElapsed - c.config.ClientStartDelay
	}
	c.accumulator += dt

	step := c.config.CommandStepDuration
	applied := 0
	for applied < c.config.MaxSimulationStepsPerFrame {
		number, turn, ok := c.buffer.Peek()
		if !ok || number != c.next {
			break
		}
		due := c.accumulator >= step
		if !due && c.contiguous() <= c.config.Cushion() {
			break
		}

		// A failed turn stays buffered as the next one to apply.
		if err := c.apply(turn); err != nil {
			return applied, err
		}
		c.buffer.Pop()
		if due {
			c.accumulator -= step
		}
		applied++
	}

	if number, _, ok := c.buffer.Peek(); (!ok || number != c.next) && c.accumulator > step {
		c.accumulator = step
	}
	return applied, nil
}

// contiguous counts buffered turns starting at the next turn to apply.
func (c *Client) contiguous() int {
	n := 0
	for c.buffer.Contains(c.next + uint64(n)) {
		n++
	}
	return n
}

func (c *Client) apply(turn Turn) error {
	for _, e := range turn.Entries {
		if err := c.logic.Dispatch(e); err != nil {
			return fmt.Errorf("turn %d player %d: %w", turn.Number, e.Player, err)
		}
	}
	if c.simulation != nil {
		for range c.config.StepsPerTurn() {
			c.simulation(c.config.SimulationStepDuration)
		}
	}
	c.next = turn.Number + 1
	for _, fn := range c.onApplied {
		fn(turn)
	}
	return nil
}

// Stop clears every buffer and counter so the client can join a new session.
// Registered hooks are kept.
func (c *Client) Stop() {
	c.buffer.Clear()
	c.player = 0
	c.welcomed = false
	c.next = 0
	c.started = false
	c.startElapsed = 0
	c.accumulator = 0
	c.silence = 0
	c.connected = false
}
