//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/scenesync/internal/config"
	"github.com/zeusync/scenesync/internal/core/engine"
	"github.com/zeusync/scenesync/internal/core/scene"
)

func InitializeEngine(cfg config.Config, doc *scene.Document) *engine.Engine {
	wire.Build(Set)
	return nil
}
