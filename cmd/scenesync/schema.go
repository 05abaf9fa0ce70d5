package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/scenesync/internal/core/scene"
)

// NewSchemaCmd prints the JSON schema of an entity kind's snapshot.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "schema <kind>",
		Short:   "Print the JSON schema of an entity snapshot",
		Example: "scenesync schema node",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := scene.ParseKind(args[0])
			if !ok {
				return errors.Errorf("unknown kind %q", args[0])
			}
			return printJSON(cmd, scene.Schema(kind))
		},
	}
}
