// Package filelock probes whether a source file is still held by its writer.
//
// Probe opens the file read-only and tries a non-blocking exclusive flock,
// releasing it straight away. Writers that lock the files they produce make
// the probe fail with services.ErrFileLocked; a file that is gone yields an
// error matching fs.ErrNotExist. Nothing is held between the probe and the
// caller's later read, so a writer can still grab the file in between.
package filelock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"

	"filerelay/internal/services"
)

// Probe reports whether path can be opened for exclusive reading right now.
func Probe(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return services.Wrap(services.ErrData, "filelock", "probe", fmt.Sprintf("%s is not a regular file", path), nil)
	}

	lock := flock.New(path, flock.SetFlag(os.O_RDONLY))
	locked, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return services.Wrap(services.ErrTransient, "filelock", "probe", path, err)
	}
	if !locked {
		return services.Wrap(services.ErrFileLocked, "filelock", "probe", path+" is held by another process", nil)
	}
	if err := lock.Unlock(); err != nil {
		return services.Wrap(services.ErrTransient, "filelock", "release", path, err)
	}
	return nil
}
