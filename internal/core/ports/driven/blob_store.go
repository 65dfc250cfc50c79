package driven

import (
	"context"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// BlobStore is the object store bulk uploads are pushed to (MinIO/S3).
// A throttled request returns an error wrapping domain.ErrRateLimited.
type BlobStore interface {
	// Put stores one payload under its key
	Put(ctx context.Context, payload *domain.UploadPayload) error

	// Ping checks the bucket is reachable
	Ping(ctx context.Context) error
}
