package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/replay"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.Lockstep.CommandStepDuration)
	assert.Equal(t, 10, cfg.Lockstep.MaxSimulationStepsPerFrame)
	assert.Equal(t, 100*time.Millisecond, cfg.Replication.SyncInterval)
	assert.Equal(t, TransportWebSocket, cfg.Transport.Kind)
}

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
log:
  level: debug
transport:
  kind: quic
  addr: 0.0.0.0:9000
  quic:
    insecure_skip_verify: true
lockstep:
  command_step_duration: 50ms
  simulation_step_duration: 5ms
  max_players: 4
replication:
  enable_prediction: true
replay:
  enabled: true
  compression: snappy
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, TransportQUIC, cfg.Transport.Kind)
	assert.True(t, cfg.Transport.QUIC.InsecureSkipVerify)
	assert.Equal(t, "netsync", cfg.Transport.QUIC.NextProto)
	assert.Equal(t, 50*time.Millisecond, cfg.Lockstep.CommandStepDuration)
	assert.Equal(t, 10, cfg.Lockstep.StepsPerTurn())
	assert.Equal(t, 4, cfg.Lockstep.MaxPlayers)
	assert.Equal(t, 500*time.Millisecond, cfg.Lockstep.ClientStartDelay)
	assert.True(t, cfg.Replication.EnablePrediction)
	assert.Equal(t, replay.CompressionSnappy, cfg.Replay.Compression)
	assert.Equal(t, "session.replay", cfg.Replay.Path)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "lockstep:\n  turbo: true\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"bad transport", "transport:\n  kind: carrier-pigeon\n"},
		{"step mismatch", "lockstep:\n  simulation_step_duration: 30ms\n"},
		{"zero sync interval", "replication:\n  sync_interval: 0s\n"},
		{"empty replay path", "replay:\n  enabled: true\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.True(t, protocol.IsConfiguration(err), err.Error())
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "netsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  addr: 127.0.0.1:7000\n"), 0o600))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Transport.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	cfg, err = Load(empty)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
