package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cesilk/comfy-nodes/internal/utils/hashutil"
	"github.com/cesilk/comfy-nodes/internal/utils/imageutil"
)

var metaCmd = &cobra.Command{
	Use:   "meta <image.png>",
	Short: "Print the digest and workflow metadata of a saved PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		texts, err := imageutil.ReadTextChunks(f)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(texts))
		for k := range texts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		// Same digest as the blake3 metadata stored with S3 uploads.
		digest, err := hashutil.Blake3File(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "blake3: %s\n", digest)
		for _, k := range keys {
			var v any
			if err := json.Unmarshal([]byte(texts[k]), &v); err != nil {
				fmt.Fprintf(out, "%s: %s\n", k, texts[k])
				continue
			}

			pretty, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s:\n%s\n", k, pretty)
		}
		return nil
	},
}
