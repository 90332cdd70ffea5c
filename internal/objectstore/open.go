package objectstore

import (
	"context"
	"fmt"
	"log/slog"

	"filerelay/internal/config"
	"filerelay/internal/services"
	"filerelay/internal/services/minio"
	"filerelay/internal/services/s3"
)

// Open builds the uploader configured in cfg.Storage and, when
// create_container is set, makes sure the container exists.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Uploader, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "open", "config is nil", nil)
	}
	storage := cfg.Storage

	var (
		uploader Uploader
		err      error
	)
	switch storage.Backend {
	case config.StorageBackendFilesystem:
		uploader, err = NewFilesystemStore(storage.ConnectionString, logger)
	case config.StorageBackendS3:
		uploader, err = s3.New(ctx, s3.Options{
			Endpoint:  storage.ConnectionString,
			Region:    storage.Region,
			AccessKey: storage.AccessKey,
			SecretKey: storage.SecretKey,
			Logger:    logger,
		})
	case config.StorageBackendMinIO:
		uploader, err = minio.New(minio.Options{
			Endpoint:  storage.ConnectionString,
			Region:    storage.Region,
			AccessKey: storage.AccessKey,
			SecretKey: storage.SecretKey,
			UseSSL:    storage.UseSSL,
			Logger:    logger,
		})
	default:
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "open", fmt.Sprintf("unsupported backend %q", storage.Backend), nil)
	}
	if err != nil {
		return nil, err
	}

	if storage.CreateContainer {
		if ensurer, ok := uploader.(ContainerEnsurer); ok {
			if err := ensurer.EnsureContainer(ctx, storage.Container); err != nil {
				return nil, err
			}
		}
	}
	return uploader, nil
}
