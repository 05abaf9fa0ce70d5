package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/server"
)

const flagWait = "wait"

// summary is what inspect prints.
type summary struct {
	Buffers    int        `json:"buffers"`
	Accessors  int        `json:"accessors"`
	Textures   int        `json:"textures"`
	Materials  int        `json:"materials"`
	Primitives int        `json:"primitives"`
	Meshes     int        `json:"meshes"`
	Nodes      int        `json:"nodes"`
	Roots      []nodeInfo `json:"roots,omitempty"`
}

type nodeInfo struct {
	Name        string     `json:"name,omitempty"`
	Translation [3]float32 `json:"translation"`
	Mesh        string     `json:"mesh,omitempty"`
	Collider    string     `json:"collider,omitempty"`
	Spawn       bool       `json:"spawn,omitempty"`
	Children    []nodeInfo `json:"children,omitempty"`
}

func summarize(doc *scene.Document) summary {
	s := summary{
		Buffers:    len(doc.Buffers()),
		Accessors:  len(doc.Accessors()),
		Textures:   len(doc.Textures()),
		Materials:  len(doc.Materials()),
		Primitives: len(doc.Primitives()),
		Meshes:     len(doc.Meshes()),
		Nodes:      len(doc.Nodes()),
	}
	for _, n := range doc.Roots() {
		s.Roots = append(s.Roots, describe(n))
	}
	return s
}

func describe(n *scene.Node) nodeInfo {
	info := nodeInfo{Name: n.Name(), Translation: n.Translation()}
	if m := n.Mesh(); m != nil {
		info.Mesh = m.Name()
	}
	ext := n.Extensions()
	if ext.Collider != nil {
		info.Collider = string(ext.Collider.Type)
	}
	info.Spawn = ext.SpawnPoint != nil
	for _, c := range n.Children() {
		info.Children = append(info.Children, describe(c))
	}
	return info
}

// NewInspectCmd summarizes a scene file or a running server's scene.
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [scene.glb]",
		Short: "Summarize a scene file, or the scene a server is streaming",
		Example: `scenesync inspect level.glb
scenesync inspect --ws ws://127.0.0.1:8080/scene
scenesync inspect --quic 127.0.0.1:4242 --wait 2s`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.Logger()
			defer logger.Sync()

			if len(args) == 1 {
				doc, err := readScene(args[0], logger)
				if err != nil {
					return err
				}
				return printJSON(cmd, summarize(doc))
			}

			ws, _ := cmd.Flags().GetString(flagWebSocket)
			addr, _ := cmd.Flags().GetString(flagQUIC)
			wait, _ := cmd.Flags().GetDuration(flagWait)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Transport.DialTimeout)
			defer cancel()
			var client *server.Client
			switch {
			case ws != "":
				client, err = server.DialWebSocket(ctx, ws, logger)
			case addr != "":
				client, err = server.DialQUIC(ctx, addr, logger)
			default:
				return errors.New("inspect needs a scene file, --ws or --quic")
			}
			if err != nil {
				return err
			}
			defer client.Close()

			select {
			case <-time.After(wait):
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
			var s summary
			if err := client.View(func(m *scene.Mirror) { s = summarize(m.Document()) }); err != nil {
				return err
			}
			logger.Debug("remote scene received", log.Int("messages", client.Applied()))
			return printJSON(cmd, s)
		},
	}
	cmd.Flags().String(flagWebSocket, "", "WebSocket URL of a running server")
	cmd.Flags().String(flagQUIC, "", "QUIC address of a running server")
	cmd.Flags().Duration(flagWait, time.Second, "how long to collect the remote stream before printing")
	return cmd
}
