package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, r)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(r), 0o644))
	}
}

func TestScanRecursiveSorted(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "z.c", "a/b/c.h", "a/a.c", "m.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	got, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a/a.c"),
		filepath.Join(root, "a/b/c.h"),
		filepath.Join(root, "m.txt"),
		filepath.Join(root, "z.c"),
	}, got)
}

func TestScanMissingFolder(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestScanFileIsNotFolder(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "f.c")
	_, err := Scan(filepath.Join(root, "f.c"))
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestFilterDenyOverridesAllow(t *testing.T) {
	got := Filter([]string{"foo.c", "foo.h", "foo.txt", "bar.c"}, []string{".c", ".h"}, []string{".h"})
	assert.Equal(t, []string{"foo.c", "bar.c"}, got)
}

func TestFilterMultiDotDeny(t *testing.T) {
	got := Filter([]string{"x.pb.go", "x.go", "x_test.go"}, []string{".go"}, []string{".pb.go", "_test.go"})
	assert.Equal(t, []string{"x.go"}, got)
}

func TestFilterEmptyAllow(t *testing.T) {
	assert.Empty(t, Filter([]string{"a.c"}, nil, nil))
}

func TestDiscoverAcrossFolders(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "b/two.go", "a/one.go", "a/skip.md")

	got, err := Discover([]string{filepath.Join(root, "b"), filepath.Join(root, "a")}, []string{".go"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a/one.go"),
		filepath.Join(root, "b/two.go"),
	}, got)
}

func TestDiscoverOverlappingFolders(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/one.go")

	got, err := Discover([]string{root, root}, []string{".go"}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDiscoverSymlinkedFileIndexedPerPath(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "real.go")
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "alias.go")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	got, err := Discover([]string{root}, []string{".go"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "alias.go"), filepath.Join(root, "real.go")}, got)
}

func TestDiscoverIsDeterministic(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "q.go", "c/d.go", "b.go", "c/a.go")
	first, err := Discover([]string{root}, []string{".go"}, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Discover([]string{root}, []string{".go"}, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
