//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"
)

func InitializeRuntime(path ConfigPath) (Runtime, error) {
	wire.Build(ProviderSet)
	return Runtime{}, nil
}
