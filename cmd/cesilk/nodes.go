package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cesilk/comfy-nodes/internal/app"
	"github.com/cesilk/comfy-nodes/internal/config"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes [class]",
	Short: "Print the object_info schema of all nodes or of one class",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := app.NewApp(config.MustGetConfig())
		if err != nil {
			return err
		}
		defer app.Close()

		var info any = app.Registry().ObjectInfo()
		if len(args) == 1 {
			node, err := app.Registry().Get(args[0])
			if err != nil {
				return err
			}
			def := node.Definition()
			info = map[string]*nodes.Definition{def.Class: def}
		}

		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
