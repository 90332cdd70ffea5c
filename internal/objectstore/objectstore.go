package objectstore

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"filerelay/internal/services"
)

// Uploader writes an object by key, replacing any existing object when
// overwrite is set. size may be -1 when unknown.
type Uploader interface {
	UpsertObject(ctx context.Context, container, key string, content io.Reader, size int64, overwrite bool) error
}

// ContainerEnsurer is implemented by backends that can create their container.
type ContainerEnsurer interface {
	EnsureContainer(ctx context.Context, container string) error
}

// ObjectKey returns the object key for a source file path: its base name in NFC.
func ObjectKey(path string) string {
	return norm.NFC.String(filepath.Base(path))
}

// ValidateKey rejects keys that would escape a container or address nothing.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return services.Wrap(services.ErrData, "objectstore", "validate key", "empty object key", nil)
	case key == "." || key == "..":
		return services.Wrap(services.ErrData, "objectstore", "validate key", fmt.Sprintf("invalid object key %q", key), nil)
	case strings.ContainsAny(key, `/\`):
		return services.Wrap(services.ErrData, "objectstore", "validate key", fmt.Sprintf("object key %q contains a path separator", key), nil)
	}
	return nil
}
