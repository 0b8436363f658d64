package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig holds configuration for an S3-compatible image bucket
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base URL objects are reachable under; defaults to the endpoint
	Prefix    string // key prefix inside the bucket
	Logger    *slog.Logger
}

// ObjectStore persists images into a MinIO or S3-compatible bucket
type ObjectStore struct {
	client    *minio.Client
	bucket    string
	prefix    string
	publicURL string
	logger    *slog.Logger
}

// NewObjectStore connects to the bucket, creating it when missing
func NewObjectStore(ctx context.Context, config ObjectStoreConfig) (*ObjectStore, error) {
	if config.Endpoint == "" || config.Bucket == "" {
		return nil, fmt.Errorf("object store requires an endpoint and a bucket")
	}
	if config.Prefix == "" {
		config.Prefix = "images/feishu"
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.PublicURL == "" {
		scheme := "http"
		if config.UseSSL {
			scheme = "https"
		}
		config.PublicURL = fmt.Sprintf("%s://%s/%s", scheme, config.Endpoint, config.Bucket)
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, &StorageError{Operation: "connect object store", Path: config.Endpoint, Err: err}
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, &StorageError{Operation: "check bucket", Path: config.Bucket, Err: err}
	}
	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, &StorageError{Operation: "create bucket", Path: config.Bucket, Err: err}
		}
		config.Logger.InfoContext(ctx, "bucket created", "bucket", config.Bucket)
	}

	return &ObjectStore{
		client:    client,
		bucket:    config.Bucket,
		prefix:    strings.Trim(config.Prefix, "/"),
		publicURL: strings.TrimRight(config.PublicURL, "/"),
		logger:    config.Logger,
	}, nil
}

// Save uploads the image under a content-derived key with its effective media type
func (s *ObjectStore) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	mediaType, ext, err := ImageType(data, contentType)
	if err != nil {
		return "", err
	}

	key := s.prefix + "/" + GenerateName(data, ext)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  mediaType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to upload image",
			"error", err,
			"bucket", s.bucket,
			"key", key,
		)
		return "", &StorageError{Operation: "upload image", Path: key, Err: err}
	}

	s.logger.DebugContext(ctx, "image uploaded",
		"bucket", s.bucket,
		"key", key,
		"size", len(data),
	)

	return s.publicURL + "/" + key, nil
}

// Accessible checks that the bucket can be reached
func (s *ObjectStore) Accessible(ctx context.Context) bool {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	return err == nil && exists
}
