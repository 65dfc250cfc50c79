// Package minio stores archived payloads in MinIO or any S3 compatible store.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BlobStore = (*BlobStore)(nil)

// Config configures the blob store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	// Transport overrides the HTTP transport, mostly for tests
	Transport http.RoundTripper
}

// BlobStore implements driven.BlobStore with minio-go.
type BlobStore struct {
	client *miniogo.Client
	bucket string
	logger *slog.Logger
}

// NewBlobStore creates a client for cfg.Bucket. It does not contact the server.
func NewBlobStore(cfg Config, logger *slog.Logger) (*BlobStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: minio endpoint and bucket are required", domain.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       region,
		BucketLookup: miniogo.BucketLookupPath,
		Transport:    cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &BlobStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("check bucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
		resp := miniogo.ToErrorResponse(err)
		if resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
			return nil
		}
		return classify("create bucket", err)
	}
	s.logger.Info("created minio bucket", "bucket", s.bucket)
	return nil
}

// Put uploads one payload. Throttling responses wrap domain.ErrRateLimited so
// the upload manager backs off.
func (s *BlobStore) Put(ctx context.Context, payload *domain.UploadPayload) error {
	if payload == nil || payload.Key == "" {
		return fmt.Errorf("%w: upload payload needs a key", domain.ErrInvalidInput)
	}
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		payload.Key,
		bytes.NewReader(payload.Body),
		int64(len(payload.Body)),
		miniogo.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: payload.Metadata,
		},
	)
	if err != nil {
		return classify("upload "+payload.Key, err)
	}

	s.logger.Debug("uploaded payload", "object_key", payload.Key, "size", len(payload.Body))
	return nil
}

// Ping checks that the bucket exists.
func (s *BlobStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("ping", err)
	}
	if !exists {
		return fmt.Errorf("%w: bucket %s", domain.ErrNotFound, s.bucket)
	}
	return nil
}

// classify maps S3 errors onto the domain sentinels.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	resp := miniogo.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(resp.Code, "SlowDown") || resp.Code == "RequestLimitExceeded":
		return fmt.Errorf("%w: minio %s: %v", domain.ErrRateLimited, op, err)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: minio %s: %v", domain.ErrTransient, op, err)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: minio %s: %v", domain.ErrNotFound, op, err)
	case resp.StatusCode >= 400:
		return fmt.Errorf("minio %s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: minio %s: %v", domain.ErrTransient, op, err)
	}
	return fmt.Errorf("%w: minio %s: %v", domain.ErrServiceUnavailable, op, err)
}
