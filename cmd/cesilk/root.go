package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cesilk/comfy-nodes/internal/config"
)

const cesilkPrefix = "CESILK"

var Cmd = &cobra.Command{
	Use:   "cesilk",
	Short: "CESILK node host",
	Long:  "Runs the CESILK ComfyUI nodes: SDXL sizes, S3 and Google Drive savers and the OpenAI image, vision and chat nodes",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(cesilkPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		return config.LoadEnvAndConfigFiles()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("cesilk-home", "", "Path to the cesilk home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	viper.BindPFlag("cesilk_home", pflags.Lookup("cesilk-home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	Cmd.AddCommand(serveCmd, runCmd, nodesCmd, sizesCmd, metaCmd, dbCmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
