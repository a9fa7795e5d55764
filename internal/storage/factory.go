// Package storage selects the output store finished renders are published to.
package storage

import (
	"context"

	"videoproc/internal/adapters/storage/gdrive"
	"videoproc/internal/adapters/storage/localfs"
	"videoproc/internal/adapters/storage/s3"
	"videoproc/internal/config"
	"videoproc/internal/pkg/errors"
	"videoproc/internal/pkg/logger"
	"videoproc/internal/ports"
)

// Pinger is implemented by providers that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewProvider builds the configured provider. It returns nil, nil when
// publishing is disabled.
func NewProvider(ctx context.Context, cfg config.OutputConfig, log *logger.Logger) (ports.StorageProvider, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil

	case "localfs":
		if cfg.LocalRoot == "" {
			return nil, errors.ValidationField("OUTPUT_LOCAL_ROOT", "local output root is required")
		}
		fs := localfs.New(cfg.LocalRoot)
		if err := fs.Ping(ctx); err != nil {
			return nil, err
		}
		return fs, nil

	case "gdrive":
		client, err := gdrive.New(ctx, gdrive.Credentials{
			ClientID:     cfg.GDrive.ClientID,
			ClientSecret: cfg.GDrive.ClientSecret,
			RefreshToken: cfg.GDrive.RefreshToken,
		}, cfg.GDrive.FolderID)
		if err != nil {
			return nil, err
		}
		return client, nil

	case "s3":
		client, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
		}, log.WithComponent("s3"))
		if err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, errors.Validationf("unknown output provider: %s", cfg.Provider)
	}
}

// Ping checks sp when it supports it.
func Ping(ctx context.Context, sp ports.StorageProvider) error {
	if p, ok := sp.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
