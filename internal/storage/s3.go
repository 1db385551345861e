package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/amillerrr/courtside/internal/config"
)

// Default timeout for s3 control operations
const DefaultS3Timeout = 30 * time.Second

// ObjectStore puts objects and resolves URLs for playing them back.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress ProgressFunc) error
	ResolvePlaybackURL(ctx context.Context, key string) (string, error)
	Ping(ctx context.Context) error
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Presigner signs GET requests for private objects.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores game assets in an S3 bucket.
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	cdnDomain string
	expiry    time.Duration
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	Bucket    string
	CDNDomain string
	URLExpiry time.Duration
}

// NewS3Store creates an S3Store on top of an SDK client.
func NewS3Store(client *s3.Client, cfg S3StoreConfig) (*S3Store, error) {
	return newS3Store(client, s3.NewPresignClient(client), cfg)
}

func newS3Store(client S3API, presigner Presigner, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket name is required")
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	return &S3Store{
		client:    client,
		presigner: presigner,
		bucket:    cfg.Bucket,
		cdnDomain: strings.TrimSuffix(strings.TrimPrefix(cfg.CDNDomain, "https://"), "/"),
		expiry:    cfg.URLExpiry,
	}, nil
}

// Upload uploads body under key, reporting progress as bytes are read.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress ProgressFunc) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          newProgressReader(body, size, onProgress),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// ResolvePlaybackURL returns a CDN URL when one is configured, otherwise a presigned GET.
func (s *S3Store) ResolvePlaybackURL(ctx context.Context, key string) (string, error) {
	if s.cdnDomain != "" {
		return (&url.URL{Scheme: "https", Host: s.cdnDomain, Path: "/" + key}).String(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	if req.URL == "" {
		return "", errors.New("presigned url is empty")
	}
	return req.URL, nil
}

// Ping checks the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// NewObjectStore builds the object store selected by STORAGE_BACKEND.
func NewObjectStore(awsCfg aws.Config, cfg *config.Config) (ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendMinIO:
		return NewMinIOStore(MinIOStoreConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			UseSSL:    cfg.Storage.MinIOUseSSL,
			Bucket:    cfg.AWS.VideoBucket,
			URLExpiry: cfg.Upload.PlaybackURLExpiry,
		})
	case config.BackendS3, "":
		return NewS3Store(NewS3ClientFromAWSConfig(awsCfg, cfg), S3StoreConfig{
			Bucket:    cfg.AWS.VideoBucket,
			CDNDomain: cfg.AWS.CDNDomain,
			URLExpiry: cfg.Upload.PlaybackURLExpiry,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
