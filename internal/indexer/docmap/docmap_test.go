package docmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

func TestAssignSequential(t *testing.T) {
	m := New()
	for i, p := range []string{"a.txt", "b.txt", "c.txt"} {
		id, err := m.Assign(p)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}
	assert.Equal(t, 3, m.Len())

	path, ok := m.Path(1)
	assert.True(t, ok)
	assert.Equal(t, "b.txt", path)

	_, ok = m.Path(3)
	assert.False(t, ok)
}

func TestAssignDuplicatePath(t *testing.T) {
	m := New()
	_, err := m.Assign("a.txt")
	require.NoError(t, err)
	_, err = m.Assign("a.txt")
	assert.ErrorIs(t, err, apperrors.ErrInvariant)
	assert.Equal(t, 1, m.Len())
}

func TestPersistLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New()
	for _, p := range []string{"src/x.go", "src/y.go"} {
		_, err := m.Assign(p)
		require.NoError(t, err)
	}
	require.NoError(t, m.Persist(dir))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), got.Entries())
	assert.Equal(t, NoCorpus, got.Entries()[0].Corpus)
}

func TestPersistOverwrites(t *testing.T) {
	dir := t.TempDir()
	big := New()
	for _, p := range []string{"1", "2", "3"} {
		_, _ = big.Assign(p)
	}
	require.NoError(t, big.Persist(dir))

	small := New()
	_, _ = small.Assign("only")
	require.NoError(t, small.Persist(dir))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestLoadRejectsGaps(t *testing.T) {
	dir := t.TempDir()
	body := `[{"id":0,"path":"a","corpus":"NO-CORPUS-FILE"},{"id":2,"path":"b","corpus":"NO-CORPUS-FILE"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
	_, err := Load(dir)
	assert.ErrorIs(t, err, apperrors.ErrInvariant)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrIO)
}

func TestPersistLoadNonUTF8Paths(t *testing.T) {
	dir := t.TempDir()
	m := New()
	paths := []string{"src/caf\xe8.txt", "src/caf\xe9.txt", "src/plain.txt"}
	for _, p := range paths {
		_, err := m.Assign(p)
		require.NoError(t, err)
	}
	require.NoError(t, m.Persist(dir))

	got, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	for i, want := range paths {
		p, ok := got.Path(uint32(i))
		require.True(t, ok)
		assert.Equal(t, want, p)
	}
	assert.Equal(t, m.Entries(), got.Entries())
}

func TestLoadRejectsDuplicatePaths(t *testing.T) {
	dir := t.TempDir()
	body := `[{"id":0,"path":"a","corpus":"NO-CORPUS-FILE"},{"id":1,"path":"a","corpus":"NO-CORPUS-FILE"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
	_, err := Load(dir)
	assert.ErrorIs(t, err, apperrors.ErrInvariant)
}
