package replication

import (
	"fmt"
	"time"

	"github.com/zeusync/netsync/internal/core/protocol"
)

// Config controls how often the server scene is mirrored and how clients
// present the result.
type Config struct {
	SyncInterval     time.Duration `yaml:"sync_interval"`
	EnablePrediction bool          `yaml:"enable_prediction"`
}

// DefaultConfig returns default replication configuration
func DefaultConfig() Config {
	return Config{
		SyncInterval:     100 * time.Millisecond,
		EnablePrediction: false,
	}
}

func (c Config) Validate() error {
	if c.SyncInterval <= 0 {
		return protocol.NewProtocolError(protocol.ErrorCodeInvalidConfig,
			fmt.Sprintf("sync interval must be positive, got %s", c.SyncInterval), nil)
	}
	return nil
}
