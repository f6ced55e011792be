package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forecastkit/forecastkit/pkg/identity"
)

// S3API is the subset of the S3 client the store consumes.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads dataset uploads from an S3 bucket and derives the
// service-facing locations for imports and exports.
type S3Store struct {
	client S3API
	bucket string
}

// NewS3Store creates a store over an existing S3 client.
func NewS3Store(client S3API, bucket string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
	}
}

// NewS3StoreFromConfig creates a store from a resolved AWS configuration.
func NewS3StoreFromConfig(cfg aws.Config, bucket string) *S3Store {
	return NewS3Store(s3.NewFromConfig(cfg), bucket)
}

// Open returns a reader over the object at key.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

// Fingerprint streams the object through the content hash without buffering
// it in memory.
func (s *S3Store) Fingerprint(ctx context.Context, key string) (string, error) {
	body, err := s.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	fp, err := identity.Fingerprint(body)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint s3://%s/%s: %w", s.bucket, key, err)
	}
	return fp, nil
}

// URI returns the s3:// location of key.
func (s *S3Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, strings.TrimPrefix(key, "/"))
}

// ExportPrefix returns the location under which an execution's forecast
// results are written.
func (s *S3Store) ExportPrefix(datasetGroup, executionID string) string {
	return fmt.Sprintf("s3://%s/exports/%s/%s/", s.bucket, datasetGroup, executionID)
}
