package app

import (
	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/services/openaiclient"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
	imagenode "github.com/cesilk/comfy-nodes/internal/workflow/nodes/image"
	openainode "github.com/cesilk/comfy-nodes/internal/workflow/nodes/openai"
	sizenode "github.com/cesilk/comfy-nodes/internal/workflow/nodes/size"
)

// NewRegistry registers every node with the services the app was built with.
func NewRegistry(app *App) *nodes.Registry {
	saver := &imagenode.Saver{
		Storage:         app.storage,
		Resolver:        app.resolver,
		DisableMetadata: app.config.DisableMetadata,
	}

	var drive imagenode.DriveUploader
	if app.drive != nil {
		drive = app.drive
	}

	var rootID string
	if app.config.GDrive != nil {
		rootID = app.config.GDrive.RootID
	}

	openAI := func() (*openaiclient.Client, error) {
		return openaiclient.FromConfig(app.config.OpenAI)
	}

	registry := nodes.NewRegistry()
	registry.MustRegister(
		sizenode.New(),
		imagenode.NewSaveAndUploadToS3(saver, app.s3, app.Logger.With(zap.String("node", imagenode.S3Class))),
		imagenode.NewSaveAndUploadToGoogleDrive(saver, drive, rootID, app.Logger.With(zap.String("node", imagenode.GDriveClass))),
		openainode.NewImageBatchGenerator(func() (openainode.ImageGenerator, error) {
			return openAI()
		}, app.Logger.With(zap.String("node", openainode.GenerateClass))),
		openainode.NewImageDescriptionToTextfile(func() (openainode.Describer, error) {
			return openAI()
		}, app.storage, app.resolver, app.Logger.With(zap.String("node", openainode.DescribeClass))),
		openainode.NewChat(func() (openainode.Chatter, error) {
			return openAI()
		}),
	)

	return registry
}
