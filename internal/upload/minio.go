package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	s3Scheme   = "s3://"
	presignTTL = 15 * time.Minute
)

// MinIOConfig carries connection settings for an S3-compatible server.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func (c MinIOConfig) validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.AccessKey == "" {
		missing = append(missing, "access_key")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret_key")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("minio config missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MinIOStore keeps uploads in a single bucket. URIs are "s3://<bucket>/<key>".
type MinIOStore struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

// NewMinIOStore builds the client without contacting the server. Call
// EnsureBucket before first use.
func NewMinIOStore(cfg MinIOConfig, logger *slog.Logger) (*MinIOStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, region: cfg.Region, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		s.logger.Info("upload bucket ready", "bucket", s.bucket)
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("upload bucket created", "bucket", s.bucket)
	return nil
}

func (s *MinIOStore) Owns(uri string) bool {
	_, ok := s.objectKey(uri)
	return ok
}

func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*Object, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("invalid upload key %q", key)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}
	s.logger.Info("upload stored",
		"backend", "minio",
		"bucket", s.bucket,
		"key", key,
		"size", humanize.Bytes(uint64(info.Size)),
	)
	return &Object{URI: s.uri(key), Key: key, Size: info.Size, ContentType: contentType}, nil
}

func (s *MinIOStore) Open(ctx context.Context, uri string) (io.ReadSeekCloser, *Object, error) {
	key, ok := s.objectKey(uri)
	if !ok {
		return nil, nil, ErrNotOwned
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, mapMinIOError(err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, mapMinIOError(err)
	}
	return obj, &Object{URI: uri, Key: key, Size: info.Size, ContentType: info.ContentType}, nil
}

func (s *MinIOStore) Delete(ctx context.Context, uri string) error {
	key, ok := s.objectKey(uri)
	if !ok {
		return ErrNotOwned
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapMinIOError(err)
	}
	return nil
}

// Locate returns a short-lived presigned GET URL for uri.
func (s *MinIOStore) Locate(ctx context.Context, uri string) (string, error) {
	key, ok := s.objectKey(uri)
	if !ok {
		return "", ErrNotOwned
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *MinIOStore) uri(key string) string {
	return s3Scheme + s.bucket + "/" + key
}

func (s *MinIOStore) objectKey(uri string) (string, bool) {
	bucket, key, ok := ParseS3URI(uri)
	if !ok || bucket != s.bucket || !ValidKey(key) {
		return "", false
	}
	return key, true
}

// ParseS3URI splits "s3://bucket/key" into its parts.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, s3Scheme)
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func mapMinIOError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Join(ErrNotExist, err)
	}
	return err
}
