// Package objectstore uploads resume files to S3.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrNoBucket is returned when no bucket is configured.
var ErrNoBucket = errors.New("objectstore: bucket is required")

// Uploader stores a local file under key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, path string) (string, error)
}

// ObjectKey returns the key a resume file is stored under: "<id>_<basename>".
func ObjectKey(resumeID uuid.UUID, filename string) string {
	return resumeID.String() + "_" + filepath.Base(filename)
}

// ObjectURL returns the virtual-hosted-style URL of key.
func ObjectURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// Options configures an S3Uploader.
type Options struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Uploader uploads through the S3 transfer manager, which switches to
// multipart uploads for large files.
type S3Uploader struct {
	bucket   string
	region   string
	uploader *manager.Uploader
}

// NewS3Uploader loads the AWS configuration (static keys when given,
// otherwise the default credential chain) and returns an uploader.
func NewS3Uploader(ctx context.Context, opts Options) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3UploaderWithClient(s3.NewFromConfig(cfg), opts.Bucket, opts.Region), nil
}

// NewS3UploaderWithClient wraps an existing S3 client.
func NewS3UploaderWithClient(client manager.UploadAPIClient, bucket, region string) *S3Uploader {
	return &S3Uploader{
		bucket:   bucket,
		region:   region,
		uploader: manager.NewUploader(client),
	}
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, key, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the upload directory
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := u.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", path, u.bucket, key, err)
	}
	return ObjectURL(u.bucket, u.region, key), nil
}
