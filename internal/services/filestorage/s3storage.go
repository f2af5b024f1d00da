package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/cesilk/comfy-nodes/internal/config"
	"github.com/cesilk/comfy-nodes/internal/utils/hashutil"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3FileStorage struct {
	client putObjectAPI
}

// NewS3FileStorage builds a client once for the whole process. Static keys win
// over the shared profile when both are configured.
func NewS3FileStorage(ctx context.Context, cfg *config.S3Config) (*S3FileStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("s3 config is not set")
	}

	options := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		options = append(options, awsConfig.WithCredentialsProvider(credentialsProvider))
	} else if cfg.Profile != "" {
		options = append(options, awsConfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointUrl != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointUrl)
			o.UsePathStyle = true
		}
	})

	return NewS3FileStorageWithClient(s3Client), nil
}

func NewS3FileStorageWithClient(client putObjectAPI) *S3FileStorage {
	return &S3FileStorage{client: client}
}

// UploadFile puts the file at localPath into bucket/key and returns its s3:// URI.
func (u *S3FileStorage) UploadFile(ctx context.Context, localPath, bucket, key string) (string, error) {
	if bucket == "" {
		return "", ErrEmptyBucket
	}
	if key == "" {
		return "", ErrEmptyKey
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}

	input := s3.PutObjectInput{
		Key:         aws.String(key),
		Bucket:      aws.String(bucket),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(mimetype.Detect(content).String()),
		Metadata: map[string]string{
			"blake3": hashutil.Blake3Hash(content),
		},
	}
	if _, err := u.client.PutObject(ctx, &input); err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}
