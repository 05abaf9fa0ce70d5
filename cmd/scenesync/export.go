package main

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/scenesync/internal/core/gltf"
)

const flagJSON = "json"

// NewExportCmd re-encodes a scene file as GLB or as self-contained glTF JSON.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <in> <out>",
		Short: "Convert a scene between GLB and glTF JSON",
		Example: `scenesync export level.gltf level.glb
scenesync export level.glb level.gltf --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.Logger()
			defer logger.Sync()

			doc, err := readScene(args[0], logger)
			if err != nil {
				return err
			}

			binary := cfg.Export.Binary
			if cmd.Flags().Changed(flagJSON) {
				asJSON, _ := cmd.Flags().GetBool(flagJSON)
				binary = !asJSON
			} else if strings.HasSuffix(strings.ToLower(args[1]), ".gltf") {
				binary = false
			}

			exp := gltf.NewExporter(gltf.Options{Concurrency: cfg.Export.Concurrency, Log: logger})
			var out []byte
			if binary {
				var buf bytes.Buffer
				if err := exp.Write(cmd.Context(), doc, &buf); err != nil {
					return err
				}
				out = buf.Bytes()
			} else if out, err = exp.JSON(cmd.Context(), doc); err != nil {
				return err
			}
			return errors.Wrap(os.WriteFile(args[1], out, 0o644), "write scene")
		},
	}
	cmd.Flags().Bool(flagJSON, false, "write glTF JSON with embedded buffers instead of GLB")
	return cmd
}
