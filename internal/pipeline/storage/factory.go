package storage

import (
	types "PrintForge/pkg"
	"fmt"
)

func NewStorage(cfg types.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Storage(cfg.S3)
	case "local":
		return NewLocalStorage(cfg.Local)
	case "gcloud", "r2":
		return nil, fmt.Errorf("gcloud and r2 backends not implemented yet")
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Type)
	}
}

// Bucket returns the bucket for the configured backend. Local storage keys
// directly under its base path and has none.
func Bucket(cfg types.StorageConfig) string {
	switch cfg.Type {
	case "s3":
		return cfg.S3.Bucket
	case "gcloud":
		return cfg.GCloud.Bucket
	case "r2":
		return cfg.R2.Bucket
	default:
		return ""
	}
}
