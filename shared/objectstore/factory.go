package objectstore

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/pdf-gateway/internal/config"
)

// New builds the store selected by the storage backend setting
func New(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendSupabase, "":
		return NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey, cfg.Storage.Bucket, logger), nil
	case config.StorageBackendS3:
		return NewS3Store(S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			ForcePathStyle:  cfg.Storage.S3.ForcePathStyle,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Storage.Backend)
	}
}
