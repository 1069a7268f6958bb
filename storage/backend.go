package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the narrow object-store contract the gateway drives both
// backends through (spec §6's object-store external interface).
type Backend interface {
	Name() string
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
}
