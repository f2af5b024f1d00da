package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/app"
	"github.com/cesilk/comfy-nodes/internal/config"
	"github.com/cesilk/comfy-nodes/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the node host API and execute queued prompts",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the server on")
	flags.String("host", config.DefaultHost, "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration")
	flags.String("output-dir", "", "Directory saved images are written to")

	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
	viper.BindPFlag("environment", flags.Lookup("environment"))
	viper.BindPFlag("output_dir", flags.Lookup("output-dir"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := app.NewApp(
		config.MustGetConfig(),
		app.WithDBInitialization(),
		app.WithMQ(),
		app.WithS3(),
		app.WithDrive(),
	)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := server.NewServer(app.Config())
	if err != nil {
		return err
	}
	srv.SetupRoutes(app)

	ctx, stop := signal.NotifyContext(app.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)

	if queue := app.Queue(); queue != nil {
		go func() {
			errc <- queue.Run(ctx)
		}()
	} else {
		app.Logger.Warn("prompt queue disabled, POST /prompt will be rejected")
	}

	go func() {
		app.Logger.Info("server listening", zap.String("addr", srv.Addr()))
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		stop()
		if stopErr := srv.Stop(context.Background()); stopErr != nil {
			app.Logger.Warn("failed to stop server", zap.Error(stopErr))
		}
		return err
	case <-ctx.Done():
		app.Logger.Info("shutting down")
		return srv.Stop(context.Background())
	}
}
