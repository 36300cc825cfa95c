package lockstep

import (
	"fmt"
	"time"

	"github.com/zeusync/netsync/internal/core/protocol"
)

// Config holds the lockstep timing surface. It is validated at startup and
// never changes during a session.
type Config struct {
	// CommandStepDuration is the length of one turn.
	CommandStepDuration time.Duration `yaml:"command_step_duration"`
	// SimulationStepDuration is the fixed simulation step; a turn runs
	// CommandStepDuration / SimulationStepDuration of them.
	SimulationStepDuration time.Duration `yaml:"simulation_step_duration"`
	// ClientSimulationDelay is how much buffered time a client holds back
	// to absorb jitter before it starts catching up.
	ClientSimulationDelay time.Duration `yaml:"client_simulation_delay"`
	// ClientStartDelay is the grace period between joining and simulating.
	ClientStartDelay time.Duration `yaml:"client_start_delay"`
	// MaxSimulationStepsPerFrame caps the turns a client applies per Update.
	MaxSimulationStepsPerFrame int `yaml:"max_simulation_steps_per_frame"`
	MaxPlayers                 int `yaml:"max_players"`
	// LagTimeout marks a client disconnected after this much silence.
	LagTimeout time.Duration `yaml:"lag_timeout"`
}

// DefaultConfig returns default lockstep configuration
func DefaultConfig() Config {
	return Config{
		CommandStepDuration:        100 * time.Millisecond,
		SimulationStepDuration:     10 * time.Millisecond,
		ClientSimulationDelay:      200 * time.Millisecond,
		ClientStartDelay:           500 * time.Millisecond,
		MaxSimulationStepsPerFrame: 10,
		MaxPlayers:                 2,
		LagTimeout:                 2 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.CommandStepDuration <= 0:
		return invalidConfig("command step duration must be positive, got %s", c.CommandStepDuration)
	case c.SimulationStepDuration <= 0:
		return invalidConfig("simulation step duration must be positive, got %s", c.SimulationStepDuration)
	case c.CommandStepDuration%c.SimulationStepDuration != 0:
		return invalidConfig("command step %s is not a multiple of simulation step %s",
			c.CommandStepDuration, c.SimulationStepDuration)
	case c.ClientSimulationDelay < 0:
		return invalidConfig("client simulation delay must not be negative, got %s", c.ClientSimulationDelay)
	case c.ClientStartDelay < 0:
		return invalidConfig("client start delay must not be negative, got %s", c.ClientStartDelay)
	case c.MaxSimulationStepsPerFrame < 1:
		return invalidConfig("max simulation steps per frame must be at least 1, got %d", c.MaxSimulationStepsPerFrame)
	case c.MaxPlayers < 1 || c.MaxPlayers > 256:
		return invalidConfig("max players must be within 1..256, got %d", c.MaxPlayers)
	case c.LagTimeout <= 0:
		return invalidConfig("lag timeout must be positive, got %s", c.LagTimeout)
	}
	return nil
}

// StepsPerTurn is the number of simulation steps one turn advances.
func (c Config) StepsPerTurn() int {
	return int(c.CommandStepDuration / c.SimulationStepDuration)
}

// Cushion is the number of contiguous buffered turns a client keeps in
// reserve before applying turns ahead of schedule.
func (c Config) Cushion() int {
	return int(c.ClientSimulationDelay / c.CommandStepDuration)
}

func invalidConfig(format string, args ...any) error {
	return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig, fmt.Sprintf(format, args...), nil)
}
