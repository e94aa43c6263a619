package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/phobologic/repoorbit/internal/config"
)

// ObjectPutter is the subset of *minio.Client used by S3.
type ObjectPutter interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 uploads documents to a single object key, creating the bucket on
// first use.
type S3 struct {
	client      ObjectPutter
	bucket      string
	key         string
	region      string
	contentType string

	mu    sync.Mutex
	ready bool
}

// ParseS3URL splits "s3://bucket/key" into its parts.
func ParseS3URL(target string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(target, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %q", target)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	key = strings.Trim(key, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q needs both bucket and key", target)
	}
	return bucket, key, nil
}

// NewS3 connects to the endpoint in cfg.
func NewS3(cfg config.S3Options, bucket, key, contentType string) (*S3, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return NewS3WithClient(client, bucket, key, region, contentType), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client ObjectPutter, bucket, key, region, contentType string) *S3 {
	return &S3{
		client:      client,
		bucket:      bucket,
		key:         key,
		region:      region,
		contentType: contentType,
	}
}

// ensureBucket creates the bucket if needed. Only success is remembered, so
// a failed check is retried on the next write.
func (s *S3) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

// Write uploads data to the object key, replacing any previous version.
func (s *S3) Write(ctx context.Context, data []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: s.contentType,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// String returns the target as an s3:// URL.
func (s *S3) String() string { return "s3://" + s.bucket + "/" + s.key }
