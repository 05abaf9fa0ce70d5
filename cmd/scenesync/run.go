package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/protocol"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/injector"
	"github.com/zeusync/scenesync/internal/server"
)

const (
	flagWebSocket = "ws"
	flagQUIC      = "quic"
	flagPlay      = "play"
)

// NewRunCmd starts the engine on a scene and serves it to remote mirrors.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scene.glb]",
		Short: "Run the engine on a scene and serve it over the configured transports",
		Example: `scenesync run level.glb --ws :8080 --play
scenesync run --config scenesync.yaml --quic 127.0.0.1:4242`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if ws, _ := cmd.Flags().GetString(flagWebSocket); ws != "" {
				cfg.Transport.WebSocketAddr = ws
			}
			if addr, _ := cmd.Flags().GetString(flagQUIC); addr != "" {
				cfg.Transport.QUICAddr = addr
			}
			logger := cfg.Logger()
			defer logger.Sync()

			doc := scene.NewDocument()
			if len(args) == 1 {
				if doc, err = readScene(args[0], logger); err != nil {
					return err
				}
				logger.Info("scene loaded", log.String("path", args[0]), log.Int("nodes", len(doc.Nodes())))
			}

			eng := injector.InitializeEngine(cfg, doc)
			defer func() {
				if err := eng.Close(); err != nil {
					logger.Warn("engine close", log.Error(err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(eng, cfg.Transport, logger)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer func() {
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Stop(shutdown); err != nil && !errors.Is(err, server.ErrServerNotRunning) {
					logger.Warn("server stop", log.Error(err))
				}
			}()

			if play, _ := cmd.Flags().GetBool(flagPlay); play {
				if err := eng.Control(protocol.SubjectStart, nil); err != nil {
					return err
				}
			}
			return eng.Run(ctx)
		},
	}
	cmd.Flags().String(flagWebSocket, "", "serve the scene over WebSocket on this address")
	cmd.Flags().String(flagQUIC, "", "serve the scene over QUIC on this address")
	cmd.Flags().Bool(flagPlay, false, "start the physics simulation immediately")
	return cmd
}
