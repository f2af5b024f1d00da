package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	sizenode "github.com/cesilk/comfy-nodes/internal/workflow/nodes/size"
)

var sizesCmd = &cobra.Command{
	Use:   "sizes",
	Short: "List the SDXL size presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tWIDTH\tHEIGHT")
		for _, label := range sizenode.Labels {
			width, height, err := sizenode.Dimensions(label)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%d\n", label, width, height)
		}
		return w.Flush()
	},
}
