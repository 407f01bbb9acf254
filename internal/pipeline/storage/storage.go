package storage

import (
	"context"
	"io"
)

// Storage is the archive backend for finished run outputs. Keys are
// slash-separated paths; bucket may be empty for backends without one.
type Storage interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}
