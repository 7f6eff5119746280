// Package bootstrap builds the process-level dependencies shared by the
// api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mojiQAQ/petsphoto/internal/events"
	"github.com/mojiQAQ/petsphoto/internal/infra"
	"github.com/mojiQAQ/petsphoto/internal/storage"
)

// ObjectStore opens the configured storage backend.
func ObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		store, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:     cfg.MinIOEndpoint,
			AccessKey:    cfg.MinIOAccessKey,
			SecretKey:    cfg.MinIOSecretKey,
			UseSSL:       cfg.MinIOUseSSL,
			Region:       cfg.MinIORegion,
			BucketPrefix: cfg.MinIOBucketPrefix,
		})
		if err != nil {
			return nil, err
		}
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.EnsureBuckets(ensureCtx); err != nil {
			return nil, err
		}
		return store, nil
	case "local", "":
		return storage.NewFileStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// Events returns a Redis stream publisher when REDIS_ADDR is set, otherwise
// a publisher that drops events. The returned close func is never nil.
func Events(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (events.Publisher, func() error) {
	if cfg.RedisAddr == "" {
		return events.Nop{}, func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil && logger != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable at startup")
	}
	return events.NewRedisPublisher(client, cfg.RedisStream), client.Close
}
