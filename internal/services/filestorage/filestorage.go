package filestorage

import (
	"context"
	"errors"
)

var (
	ErrEmptyBucket = errors.New("bucket name is empty")
	ErrEmptyKey    = errors.New("object key is empty")
)

// ObjectUploader pushes a file that already exists on local disk to object storage.
type ObjectUploader interface {
	UploadFile(ctx context.Context, localPath, bucket, key string) (string, error)
}
