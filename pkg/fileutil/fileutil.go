// Package fileutil holds the durable-write helpers shared by every index
// artifact: write to a temp file, fsync, rename, fsync the directory.
package fileutil

import (
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

// WriteAtomic writes data to a temp file beside path, syncs it and renames
// it into place, replacing any previous content.
func WriteAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "creating %s", tmpPath)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "writing %s", tmpPath)
	}
	if err := f.Sync(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "syncing %s", tmpPath)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "closing %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "renaming %s", tmpPath)
	}
	return SyncDir(filepath.Dir(path))
}

// SyncDir fsyncs a directory so renames inside it survive a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "opening directory %s", dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "syncing directory %s", dir)
	}
	return nil
}
