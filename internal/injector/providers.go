package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/netsync/internal/config"
	"github.com/zeusync/netsync/internal/core/observability/log"
)

// ConfigPath is the YAML file handed to config.Load. Empty means defaults.
type ConfigPath string

// Runtime is what every binary needs before it builds its session host.
type Runtime struct {
	Config config.Config
	Logger *log.Logger
}

var ProviderSet = wire.NewSet(ProvideConfig, ProvideLogger, NewRuntime)

func ProvideConfig(path ConfigPath) (config.Config, error) {
	return config.Load(string(path))
}

func ProvideLogger(cfg config.Config) *log.Logger {
	return cfg.Logger()
}

func NewRuntime(cfg config.Config, logger *log.Logger) Runtime {
	return Runtime{Config: cfg, Logger: logger}
}
