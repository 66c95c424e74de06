package blobstore

import (
	"context"
	"fmt"

	"github.com/hide-yama/file-share/internal/config"
)

// New builds the Store selected by cfg.StorageBackend.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendMinio:
		return NewMinio(ctx, MinioOptions{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.S3Region,
		})
	case config.BackendS3:
		return NewS3(ctx, S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.Bucket,
		})
	case config.BackendGCS:
		return NewGCS(ctx, GCSOptions{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.GCSCredentialsFile,
			AccessID:        cfg.GCSAccessID,
			PrivateKey:      cfg.GCSPrivateKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
