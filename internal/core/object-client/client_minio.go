package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cfg "github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// MinioClient stores files in an S3-compatible MinIO server.
type MinioClient struct {
	client   *minio.Client
	endpoint string
	bucket   string
	secure   bool
}

var _ core.ObjectClient = (*MinioClient)(nil)

// NewMinioClient connects and creates the bucket when it does not exist yet.
func NewMinioClient(ctx context.Context, cfg *cfg.Config) (*MinioClient, error) {
	if cfg.MinioEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name not set")
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		slog.Info("object-client: created minio bucket", "bucket", cfg.BucketName)
	}

	return &MinioClient{
		client:   client,
		endpoint: cfg.MinioEndpoint,
		bucket:   cfg.BucketName,
		secure:   cfg.MinioUseSSL,
	}, nil
}

func (c *MinioClient) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := c.client.PutObject(ctxUpload, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio upload failed: %w", err)
	}

	scheme := "http"
	if c.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, c.endpoint, c.bucket, key), nil
}

func (c *MinioClient) GetFile(ctx context.Context, key string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj, err := c.client.GetObject(ctxGet, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.mapErr(key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, c.mapErr(key, err)
	}
	return body, nil
}

func (c *MinioClient) DeleteFile(ctx context.Context, key string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := c.client.RemoveObject(ctxDel, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete failed: %w", err)
	}
	return nil
}

func (c *MinioClient) mapErr(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", core.ErrObjectNotFound, key)
	}
	return fmt.Errorf("minio get failed: %w", err)
}
