// Package config loads the YAML configuration shared by the binaries.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/netsync/internal/core/lockstep"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/protocol/quic"
	"github.com/zeusync/netsync/internal/core/protocol/websocket"
	"github.com/zeusync/netsync/internal/core/replay"
	"github.com/zeusync/netsync/internal/core/replication"
)

const (
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

type Config struct {
	Log         LogConfig          `yaml:"log"`
	Transport   TransportConfig    `yaml:"transport"`
	Lockstep    lockstep.Config    `yaml:"lockstep"`
	Replication replication.Config `yaml:"replication"`
	Replay      replay.Config      `yaml:"replay"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TransportConfig struct {
	// Kind is "websocket" or "quic".
	Kind string `yaml:"kind"`
	Addr string `yaml:"addr"`
	// Token, when set, is required from WebSocket clients.
	Token     string           `yaml:"token"`
	WebSocket websocket.Config `yaml:"websocket"`
	QUIC      quic.Config      `yaml:"quic"`
}

// Default returns default configuration
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Transport: TransportConfig{
			Kind:      TransportWebSocket,
			Addr:      "127.0.0.1:8080",
			WebSocket: websocket.DefaultConfig(),
			QUIC:      quic.DefaultConfig(),
		},
		Lockstep:    lockstep.DefaultConfig(),
		Replication: replication.DefaultConfig(),
		Replay:      replay.DefaultConfig(),
	}
}

// Load reads and validates the file at path. An empty path yields the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode parses YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig, "log", err)
	}
	switch c.Transport.Kind {
	case TransportWebSocket, TransportQUIC:
	default:
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("unknown transport %q", c.Transport.Kind), nil)
	}
	if c.Transport.Addr == "" {
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig, "transport address is empty", nil)
	}
	if err := c.Lockstep.Validate(); err != nil {
		return fmt.Errorf("lockstep: %w", err)
	}
	if err := c.Replication.Validate(); err != nil {
		return fmt.Errorf("replication: %w", err)
	}
	if c.Replay.Enabled && c.Replay.Path == "" {
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig, "replay path is empty", nil)
	}
	return nil
}

// Logger builds the process logger at the configured level.
func (c Config) Logger() *log.Logger {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		level = log.LevelInfo
	}
	return log.New(level)
}
