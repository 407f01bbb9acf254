package storage

import (
	types "PrintForge/pkg"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Archiver uploads finished run outputs to the configured backend under
// runs/<run-id>/<basename>.
type Archiver struct {
	logger *zap.Logger
	store  Storage
	bucket string
	retry  types.RetryConfig
}

func NewArchiver(store Storage, bucket string, retryCfg types.RetryConfig, logger *zap.Logger) *Archiver {
	return &Archiver{logger: logger, store: store, bucket: bucket, retry: retryCfg}
}

func (a *Archiver) Archive(ctx context.Context, runID uuid.UUID, path string) (string, error) {
	key := fmt.Sprintf("runs/%s/%s", runID, filepath.Base(path))

	err := Retry(ctx, a.logger, a.retry, fmt.Sprintf("archive %s", key), func() error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return a.store.Upload(ctx, a.bucket, key, f)
	})
	if err != nil {
		a.logger.Error("Archive upload failed", zap.String("key", key), zap.Error(err))
		return "", err
	}

	a.logger.Info("Archived run output", zap.String("key", key))
	return key, nil
}

// Fetch retrieves an archived output by the key Archive returned.
func (a *Archiver) Fetch(ctx context.Context, key string) ([]byte, error) {
	return a.store.Download(ctx, a.bucket, key)
}
