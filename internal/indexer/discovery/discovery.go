// Package discovery enumerates the documents of a build. Paths are always
// returned sorted so document IDs, which follow discovery order, are
// reproducible across runs.
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

// Scan returns every regular file under folder, recursing through
// subdirectories, sorted lexicographically by full path. Symlinked
// directories are not followed.
func Scan(folder string) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, err, "document folder %s", folder)
	}
	if !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrConfig, "document folder %s is not a directory", folder)
	}
	var paths []string
	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil || target.IsDir() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "scanning %s", folder)
	}
	sort.Strings(paths)
	return paths, nil
}

// Filter keeps a path iff it does not end with any deny-listed extension and
// does end with some allow-listed extension.
func Filter(paths []string, allow, deny []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if hasExt(p, deny) {
			continue
		}
		if hasExt(p, allow) {
			out = append(out, p)
		}
	}
	return out
}

// Discover scans and filters every folder and returns the combined,
// sorted, duplicate-free path list.
func Discover(folders []string, allow, deny []string) ([]string, error) {
	var all []string
	for _, folder := range folders {
		paths, err := Scan(folder)
		if err != nil {
			return nil, err
		}
		all = append(all, Filter(paths, allow, deny)...)
	}
	sort.Strings(all)
	return dedupSorted(all), nil
}

func hasExt(path string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func dedupSorted(paths []string) []string {
	if len(paths) < 2 {
		return paths
	}
	out := paths[:1]
	for _, p := range paths[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
