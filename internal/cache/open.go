package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"repoaudit/internal/config"
)

// Open builds the configured backend. "none" and "" yield a nil-backed
// cache that always misses.
func Open(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (*ScanCache, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "", "none":
	case "memory":
		backend = NewMemory(cfg.MaxEntries, cfg.MaxAge)
	case "disk":
		backend, err = NewDisk(DiskConfig{Root: cfg.DiskRoot, MaxEntries: cfg.MaxEntries, MaxBytes: cfg.DiskMaxBytes, TTL: cfg.MaxAge})
	case "postgres":
		backend, err = NewPostgres(ctx, cfg.PostgresDSN)
	case "s3":
		backend, err = NewS3(cfg.S3)
	default:
		err = fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	return New(backend, logger), nil
}
