package main

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/scenesync/internal/config"
	"github.com/zeusync/scenesync/internal/core/gltf"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
)

const flagConfig = "config"

// NewRootCmd builds the scenesync command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scenesync",
		Short:         "Serve, convert and inspect synchronized glTF scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String(flagConfig, "", "path to a YAML configuration file")

	root.AddCommand(
		NewRunCmd(),
		NewExportCmd(),
		NewInspectCmd(),
		NewSchemaCmd(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path)
}

// readScene parses a .glb or .gltf file. External URIs resolve relative to
// the file's directory.
func readScene(path string, logger log.Log) (*scene.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open scene")
	}
	defer f.Close()
	dir := os.DirFS(filepath.Dir(path))
	return gltf.Parse(f, gltf.ParseOptions{
		Log: logger,
		Resolve: func(uri string) ([]byte, error) {
			data, err := fs.ReadFile(dir, uri)
			return data, errors.Wrapf(err, "resolve %s", uri)
		},
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(append(out, '\n'))
	return err
}
