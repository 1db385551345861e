package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore stores game assets in a MinIO bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// MinIOStoreConfig configures a MinIOStore.
type MinIOStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	URLExpiry time.Duration
}

// NewMinIOStore connects to a MinIO server.
func NewMinIOStore(cfg MinIOStoreConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("MinIO endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("MinIO bucket name is required")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket, expiry: cfg.URLExpiry}, nil
}

// Upload uploads body under key, reporting progress as parts are sent.
func (m *MinIOStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress ProgressFunc) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
		Progress:    &progressSink{total: size, fn: onProgress},
	})
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", m.bucket, key, err)
	}
	return nil
}

// ResolvePlaybackURL returns a presigned GET for key.
func (m *MinIOStore) ResolvePlaybackURL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	return u.String(), nil
}

// Ping checks the bucket exists.
func (m *MinIOStore) Ping(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}
