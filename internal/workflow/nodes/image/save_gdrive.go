package imagenode

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/services/gdrive"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

const GDriveClass = "CESILK_SaveAndUploadToGoogleDrive"

var ErrDriveNotConfigured = errors.New("google drive uploader is not configured")

type DriveUploader interface {
	Upload(ctx context.Context, rootID, folderName, localPath string) (string, error)
}

type SaveAndUploadToGoogleDrive struct {
	saver    *Saver
	uploader DriveUploader
	rootID   string
	logger   *zap.Logger
}

func NewSaveAndUploadToGoogleDrive(saver *Saver, uploader DriveUploader, rootID string, logger *zap.Logger) *SaveAndUploadToGoogleDrive {
	return &SaveAndUploadToGoogleDrive{
		saver:    saver,
		uploader: uploader,
		rootID:   rootID,
		logger:   logger,
	}
}

func (n *SaveAndUploadToGoogleDrive) Definition() *nodes.Definition {
	return &nodes.Definition{
		Class:       GDriveClass,
		DisplayName: "CESILK Save And Upload To Google Drive",
		Category:    gdriveCategory,
		Required: []nodes.Input{
			{Name: "images", Type: nodes.ImageType, Tooltip: "The images to save."},
			{Name: "gdrive_upload", Type: nodes.BoolType, Default: false},
			{Name: "directory", Type: nodes.StringType, Default: "@@%Y-%m-%d@@"},
			{Name: "filename_prefix", Type: nodes.StringType, Default: "@@%H%M%S@@"},
		},
		Hidden:     hiddenInputs,
		OutputNode: true,
	}
}

func (n *SaveAndUploadToGoogleDrive) Execute(ctx context.Context, in nodes.Inputs) (*nodes.Result, error) {
	images, err := in.Images("images")
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return &nodes.Result{UI: map[string]any{"images": []SavedImage{}}}, nil
	}

	upload, err := in.Bool("gdrive_upload")
	if err != nil {
		return nil, err
	}
	directory, err := in.String("directory")
	if err != nil {
		return nil, err
	}
	filenamePrefix, err := in.String("filename_prefix")
	if err != nil {
		return nil, err
	}

	directory = n.saver.Resolver.Strftime(directory)
	prefix := n.saver.Resolver.Strftime(filepath.Join(directory, filenamePrefix))

	fileIDs := make([]string, len(images))
	var after func(int, savedFile) error
	if upload {
		after = func(i int, file savedFile) error {
			if n.uploader == nil {
				return ErrDriveNotConfigured
			}

			fileID, err := n.uploader.Upload(ctx, n.rootID, directory, file.Path)
			if err != nil {
				// Authentication problems abort the node; API failures only cost
				// this file its upload.
				if errors.Is(err, gdrive.ErrConnect) {
					return err
				}

				n.logger.Error("an error occurred while uploading to drive", zap.String("file", file.Filename), zap.Error(err))
				return nil
			}

			fileIDs[i] = fileID
			return nil
		}
	}

	results, err := n.saver.Save(images, prefix, in, gdriveFileName, after)
	if err != nil {
		return nil, err
	}

	return &nodes.Result{UI: map[string]any{
		"images":          results,
		"gdrive_file_ids": fileIDs,
	}}, nil
}

func gdriveFileName(filename string, counter int) string {
	return fmt.Sprintf("%s_%05d.png", filename, counter)
}
