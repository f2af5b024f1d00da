package gdrive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const FolderMimeType = "application/vnd.google-apps.folder"

var (
	ErrRootNotSet = errors.New("drive root folder id is not set")
	ErrConnect    = errors.New("failed to connect to drive")
)

// FilesAPI is the subset of Drive v3 the uploader needs.
type FilesAPI interface {
	FindFolder(ctx context.Context, parentID, name string) (id string, found bool, err error)
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
	UploadFile(ctx context.Context, folderID, localPath, mimeType string) (string, error)
}

// Connector opens an authenticated FilesAPI. It runs once per upload so that an
// expired token on disk is refreshed between graph executions.
type Connector func(ctx context.Context) (FilesAPI, error)

// Uploader puts files into a named folder below a root folder, creating that
// folder on first use.
type Uploader struct {
	connect Connector
	logger  *zap.Logger

	// find-or-create is two round trips; concurrent uploads into a new folder
	// would otherwise create duplicates.
	folderMu sync.Mutex
}

func NewUploader(connect Connector, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Uploader{
		connect: connect,
		logger:  logger,
	}
}

// NewDriveConnector authenticates with auth and talks to the public Drive API.
func NewDriveConnector(auth *Authenticator, opts ...option.ClientOption) Connector {
	return func(ctx context.Context) (FilesAPI, error) {
		ts, err := auth.TokenSource(ctx)
		if err != nil {
			return nil, err
		}

		return NewDriveFiles(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)...)
	}
}

// Upload uploads localPath into rootID/folderName and returns the new file id.
func (u *Uploader) Upload(ctx context.Context, rootID, folderName, localPath string) (string, error) {
	if rootID == "" {
		return "", ErrRootNotSet
	}

	api, err := u.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnect, err)
	}

	folderID, err := u.findOrCreateFolder(ctx, api, rootID, folderName)
	if err != nil {
		return "", err
	}

	mtype, err := mimetype.DetectFile(localPath)
	if err != nil {
		return "", err
	}

	fileID, err := api.UploadFile(ctx, folderID, localPath, mtype.String())
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(localPath), err)
	}

	u.logger.Info("uploaded file to drive", zap.String("file_id", fileID), zap.String("folder_id", folderID))
	return fileID, nil
}

func (u *Uploader) findOrCreateFolder(ctx context.Context, api FilesAPI, rootID, name string) (string, error) {
	u.folderMu.Lock()
	defer u.folderMu.Unlock()

	folderID, found, err := api.FindFolder(ctx, rootID, name)
	if err != nil {
		return "", fmt.Errorf("failed to search folder %q: %w", name, err)
	}

	if found {
		u.logger.Debug("found drive folder", zap.String("name", name), zap.String("folder_id", folderID))
		return folderID, nil
	}

	folderID, err = api.CreateFolder(ctx, rootID, name)
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", name, err)
	}

	u.logger.Info("created drive folder", zap.String("name", name), zap.String("folder_id", folderID))
	return folderID, nil
}

// DriveFiles implements FilesAPI on top of the generated Drive v3 client.
type DriveFiles struct {
	svc *drive.Service
}

func NewDriveFiles(ctx context.Context, opts ...option.ClientOption) (*DriveFiles, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &DriveFiles{svc: svc}, nil
}

func (d *DriveFiles) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	q := fmt.Sprintf(
		"'%s' in parents and mimeType = '%s' and name = '%s' and trashed = false",
		escapeQuery(parentID), FolderMimeType, escapeQuery(name),
	)

	var files []*drive.File
	err := d.svc.Files.List().
		Q(q).
		Spaces("drive").
		Fields("nextPageToken, files(id, name)").
		Pages(ctx, func(list *drive.FileList) error {
			files = append(files, list.Files...)
			return nil
		})
	if err != nil {
		return "", false, err
	}

	if len(files) == 0 {
		return "", false, nil
	}

	return files[0].Id, true, nil
}

func (d *DriveFiles) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	folder := &drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{parentID},
	}

	created, err := d.svc.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}

	return created.Id, nil
}

func (d *DriveFiles) UploadFile(ctx context.Context, folderID, localPath, mimeType string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	metadata := &drive.File{
		Name:    filepath.Base(localPath),
		Parents: []string{folderID},
	}

	created, err := d.svc.Files.Create(metadata).
		Media(file, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}

	return created.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
