// Package config loads the scenesync configuration: built-in defaults, then an
// optional YAML file, then SCENESYNC_* environment variables.
package config

import (
	"os"
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/scenesync/internal/core/engine"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/protocol"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Log       LogConfig      `yaml:"log"`
	Engine    engine.Options `yaml:"engine"`
	Transport Transport      `yaml:"transport"`
	Export    Export         `yaml:"export"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Transport configures the network endpoints that serve the scene stream to
// remote mirrors. An empty address disables that endpoint.
type Transport struct {
	WebSocketAddr string        `yaml:"websocket_addr"`
	QUICAddr      string        `yaml:"quic_addr"`
	MaxFrameSize  int           `yaml:"max_frame_size"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
}

type Export struct {
	Binary      bool `yaml:"binary"`
	Concurrency int  `yaml:"concurrency"`
}

// env lists the variables that override file values. Unset or zero values
// leave the file value alone.
type env struct {
	LogLevel      string  `config:"SCENESYNC_LOG_LEVEL"`
	Channel       string  `config:"SCENESYNC_CHANNEL"`
	SyncRate      int     `config:"SCENESYNC_SYNC_RATE"`
	FrameRate     int     `config:"SCENESYNC_FRAME_RATE"`
	TickRate      int     `config:"SCENESYNC_TICK_RATE"`
	Gravity       float64 `config:"SCENESYNC_GRAVITY"`
	WebSocketAddr string  `config:"SCENESYNC_WEBSOCKET_ADDR"`
	QUICAddr      string  `config:"SCENESYNC_QUIC_ADDR"`
	MaxFrameSize  int     `config:"SCENESYNC_MAX_FRAME_SIZE"`
}

func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Engine: engine.DefaultOptions(),
		Transport: Transport{
			MaxFrameSize: protocol.DefaultMaxFrameSize,
			DialTimeout:  5 * time.Second,
		},
		Export: Export{Binary: true, Concurrency: 4},
	}
}

// Load reads path (skipped when empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	var e env
	if err := jlconfig.FromEnv().To(&e); err != nil {
		return errors.Wrap(err, "environment")
	}
	if e.LogLevel != "" {
		c.Log.Level = e.LogLevel
	}
	if e.Channel != "" {
		c.Engine.Channel = protocol.PairMode(e.Channel)
	}
	if e.SyncRate != 0 {
		c.Engine.SyncRate = e.SyncRate
	}
	if e.FrameRate != 0 {
		c.Engine.FrameRate = e.FrameRate
	}
	if e.TickRate != 0 {
		c.Engine.Physics.TickRate = e.TickRate
	}
	if e.Gravity != 0 {
		c.Engine.Physics.Gravity = float32(e.Gravity)
	}
	if e.WebSocketAddr != "" {
		c.Transport.WebSocketAddr = e.WebSocketAddr
	}
	if e.QUICAddr != "" {
		c.Transport.QUICAddr = e.QUICAddr
	}
	if e.MaxFrameSize != 0 {
		c.Transport.MaxFrameSize = e.MaxFrameSize
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error", "silent":
	default:
		return errors.Wrapf(ErrInvalid, "log level %q", c.Log.Level)
	}
	if !c.Engine.Channel.Valid() {
		return errors.Wrapf(ErrInvalid, "channel %q", c.Engine.Channel)
	}
	rates := map[string]int{
		"sync_rate":         c.Engine.SyncRate,
		"frame_rate":        c.Engine.FrameRate,
		"physics.tick_rate": c.Engine.Physics.TickRate,
	}
	for name, rate := range rates {
		if rate <= 0 || rate > 1000 {
			return errors.Wrapf(ErrInvalid, "%s %d outside 1..1000", name, rate)
		}
	}
	p := c.Engine.Physics
	if p.PlayerRadius <= 0 || p.PlayerHeight < 2*p.PlayerRadius {
		return errors.Wrap(ErrInvalid, "player capsule needs a positive radius and a height of at least two radii")
	}
	if c.Engine.PeerInputRate < 0 {
		return errors.Wrapf(ErrInvalid, "peer input rate %d", c.Engine.PeerInputRate)
	}
	if c.Transport.MaxFrameSize <= 0 {
		return errors.Wrapf(ErrInvalid, "max frame size %d", c.Transport.MaxFrameSize)
	}
	if c.Export.Concurrency < 0 {
		return errors.Wrapf(ErrInvalid, "export concurrency %d", c.Export.Concurrency)
	}
	return nil
}

// Logger builds the process logger the configuration describes.
func (c Config) Logger() *log.Logger {
	return log.NewWithOptions(log.ParseLevel(c.Log.Level), log.Options{Development: c.Log.Development})
}
