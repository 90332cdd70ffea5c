package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"filerelay/internal/fileutil"
	"filerelay/internal/logging"
	"filerelay/internal/services"
)

// FilesystemStore keeps objects as files under <root>/<container>/<key>.
type FilesystemStore struct {
	root   string
	logger *slog.Logger
}

// NewFilesystemStore roots a store at dir.
func NewFilesystemStore(dir string, logger *slog.Logger) (*FilesystemStore, error) {
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "open", "filesystem root is empty", nil)
	}
	return &FilesystemStore{root: dir, logger: logging.NewComponentLogger(logger, "objectstore")}, nil
}

// ObjectPath returns where container/key lives on disk.
func (s *FilesystemStore) ObjectPath(container, key string) string {
	return filepath.Join(s.root, container, key)
}

// EnsureContainer creates the container directory.
func (s *FilesystemStore) EnsureContainer(_ context.Context, container string) error {
	if err := ValidateKey(container); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.root, container), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "objectstore", "ensure container", container, err)
	}
	return nil
}

// UpsertObject writes content atomically, so a reader sees the old object or
// the new one and never a partial write.
func (s *FilesystemStore) UpsertObject(ctx context.Context, container, key string, content io.Reader, size int64, overwrite bool) error {
	if err := ValidateKey(container); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrTransient, "objectstore", "upsert", key, err)
	}

	containerDir := filepath.Join(s.root, container)
	if info, err := os.Stat(containerDir); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", containerDir)
		}
		return services.Wrap(services.ErrConfiguration, "objectstore", "upsert", "container "+container+" is missing", err)
	}

	target := s.ObjectPath(container, key)
	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return services.Wrap(services.ErrObjectExists, "objectstore", "upsert", container+"/"+key, nil)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrTransient, "objectstore", "upsert", key, err)
		}
	}

	written, err := fileutil.WriteFileAtomic(target, content, 0o644)
	if err != nil {
		return services.Wrap(services.ErrTransient, "objectstore", "upsert", key, err)
	}
	if size >= 0 && written != size {
		s.logger.Debug("object size differs from announced size",
			logging.String(logging.FieldObjectKey, key),
			logging.Int64("announced_bytes", size),
			logging.Int64("written_bytes", written),
		)
	}
	return nil
}
