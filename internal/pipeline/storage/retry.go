package storage

import (
	types "PrintForge/pkg"
	"context"
	"time"

	"go.uber.org/zap"
)

func Retry(ctx context.Context, logger *zap.Logger, cfg types.RetryConfig, operation string, fn func() error) error {
	interval := time.Duration(cfg.InitialIntervalSec * float64(time.Second))

	var attempts int32
	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("Retry cancelled", zap.String("operation", operation), zap.Error(err))
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= cfg.MaxAttempts {
			logger.Error("Retry limit reached", zap.String("operation", operation), zap.Int32("attempts", attempts), zap.Error(err))
			return err
		}
		logger.Warn("Retry attempt failed", zap.String("operation", operation), zap.Int32("attempt", attempts), zap.Error(err))

		select {
		case <-ctx.Done():
			logger.Warn("Retry cancelled", zap.String("operation", operation), zap.Error(ctx.Err()))
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * cfg.BackoffCoefficient)
	}
}
