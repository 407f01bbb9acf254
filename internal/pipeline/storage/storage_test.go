package storage

import (
	types "PrintForge/pkg"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetry() types.RetryConfig {
	return types.RetryConfig{MaxAttempts: 3, InitialIntervalSec: 0.001, BackoffCoefficient: 1}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "archive")
	store, err := NewLocalStorage(types.LocalConfig{BasePath: base})
	require.NoError(t, err)
	assert.Equal(t, base, store.Root())

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "", "runs/abc/final.jpg", strings.NewReader("pixels")))

	_, err = os.Stat(filepath.Join(base, "runs", "abc", "final.jpg"))
	require.NoError(t, err)

	data, err := store.Download(ctx, "", "runs/abc/final.jpg")
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestLocalStoragePrefixesBucket(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(types.LocalConfig{BasePath: base})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "prints", "final.jpg", strings.NewReader("pixels")))

	_, err = os.Stat(filepath.Join(base, "prints", "final.jpg"))
	require.NoError(t, err)
}

func TestLocalStorageRequiresBasePath(t *testing.T) {
	_, err := NewLocalStorage(types.LocalConfig{})
	require.Error(t, err)
}

func TestNewStorageBackends(t *testing.T) {
	tcs := map[string]struct {
		cfg     types.StorageConfig
		wantErr bool
	}{
		"local": {
			cfg:     types.StorageConfig{Type: "local", Local: types.LocalConfig{BasePath: t.TempDir()}},
			wantErr: false,
		},
		"gcloud not implemented": {
			cfg:     types.StorageConfig{Type: "gcloud"},
			wantErr: true,
		},
		"r2 not implemented": {
			cfg:     types.StorageConfig{Type: "r2"},
			wantErr: true,
		},
		"unknown backend": {
			cfg:     types.StorageConfig{Type: "ftp"},
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			store, err := NewStorage(tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, store)
		})
	}
}

func TestBucketPerBackend(t *testing.T) {
	cfg := types.StorageConfig{
		S3:     types.S3Config{Bucket: "s3-prints"},
		GCloud: types.GCloudConfig{Bucket: "gc-prints"},
		R2:     types.R2Config{Bucket: "r2-prints"},
	}

	tcs := map[string]string{
		"s3":     "s3-prints",
		"gcloud": "gc-prints",
		"r2":     "r2-prints",
		"local":  "",
	}

	for backend, want := range tcs {
		t.Run(backend, func(t *testing.T) {
			cfg.Type = backend
			assert.Equal(t, want, Bucket(cfg))
		})
	}
}

func TestRetryStopsAtLimit(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), zap.NewNop(), fastRetry(), "always fails", func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), zap.NewNop(), fastRetry(), "flaky", func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestArchiverUploadsUnderRunKey(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(types.LocalConfig{BasePath: base})
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "final.jpg")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0644))

	runID := uuid.New()
	arch := NewArchiver(store, "", fastRetry(), zap.NewNop())

	key, err := arch.Archive(context.Background(), runID, src)
	require.NoError(t, err)
	assert.Equal(t, "runs/"+runID.String()+"/final.jpg", key)

	data, err := arch.Fetch(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
}

func TestArchiverMissingFile(t *testing.T) {
	store, err := NewLocalStorage(types.LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	arch := NewArchiver(store, "", fastRetry(), zap.NewNop())
	key, err := arch.Archive(context.Background(), uuid.New(), filepath.Join(t.TempDir(), "nope.jpg"))
	require.Error(t, err)
	assert.Empty(t, key)
}
