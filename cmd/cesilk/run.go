package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/cesilk/comfy-nodes/internal/app"
	"github.com/cesilk/comfy-nodes/internal/config"
	"github.com/cesilk/comfy-nodes/internal/workflow/executor"
)

var runCmd = &cobra.Command{
	Use:   "run <prompt.json>",
	Short: "Execute a prompt locally and print the node outputs",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrompt,
}

func init() {
	runCmd.Flags().String("extra-pnginfo", "", "JSON file embedded into saved PNGs as extra_pnginfo")
	runCmd.Flags().Bool("quiet", false, "Do not show progress")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	graph, err := executor.ReadFile(args[0])
	if err != nil {
		return err
	}

	var extra executor.ExtraData
	if path, _ := cmd.Flags().GetString("extra-pnginfo"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &extra.ExtraPNGInfo); err != nil {
			return fmt.Errorf("invalid extra_pnginfo: %w", err)
		}
	}

	app, err := app.NewApp(config.MustGetConfig(), app.WithS3(), app.WithDrive())
	if err != nil {
		return err
	}
	defer app.Close()

	opts := []executor.Option{executor.WithLogger(app.Logger)}

	var (
		progress *mpb.Progress
		bar      *mpb.Bar
	)
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		progress = mpb.New(mpb.WithWidth(60), mpb.WithOutput(cmd.ErrOrStderr()))
		bar = progress.AddBar(0,
			mpb.PrependDecorators(
				decor.Name("nodes", decor.WC{W: 8, C: decor.DidentRight}),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
		opts = append(opts, executor.WithProgress(func(_, _ string, done, total int) {
			bar.SetTotal(int64(total), false)
			bar.SetCurrent(int64(done))
		}))
	}

	exec := executor.NewWorkflowExecutor(app.Registry(), opts...)
	outputs, runErr := exec.Execute(app.Context(), graph, extra)

	if progress != nil {
		if runErr != nil {
			bar.Abort(false)
		} else {
			bar.SetTotal(-1, true)
		}
		progress.Wait()
	}

	if runErr != nil {
		return runErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(outputs)
}
