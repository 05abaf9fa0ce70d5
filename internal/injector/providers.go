package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/scenesync/internal/config"
	"github.com/zeusync/scenesync/internal/core/engine"
	"github.com/zeusync/scenesync/internal/core/observability/log"
)

// Set builds an engine from a loaded configuration and a document.
var Set = wire.NewSet(ProvideLogger, ProvideOptions, engine.New)

func ProvideLogger(cfg config.Config) log.Log {
	return cfg.Logger()
}

func ProvideOptions(cfg config.Config) engine.Options {
	return cfg.Engine
}
