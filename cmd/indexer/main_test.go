package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

func writeParams(t *testing.T, dir, folder string) string {
	t.Helper()
	path := filepath.Join(dir, "params.ini")
	content := fmt.Sprintf("[DOCUMENTS]\nDOCLIST = %s\n[EXTN]\nEXTNLIST = .c\nBLACKLIST = .pb.c\n", folder)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunBuildsStore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.c"), []byte("int main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.c"), []byte("int x int"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "c.pb.c"), []byte("ignored"), 0o644))
	store := filepath.Join(dir, "out.index")
	metricsFile := filepath.Join(dir, "indexer.prom")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-config", writeParams(t, dir, src),
		"-indexstore", store,
		"-metrics-file", metricsFile,
		"-verify",
	}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "Success : Index created - "+store)
	assert.Contains(t, stdout.String(), "Documents : 2")
	assert.Contains(t, stdout.String(), "Corpus size : 5")
	assert.FileExists(t, filepath.Join(store, "MANIFEST.json"))
	assert.FileExists(t, metricsFile)
}

func TestRunConfigErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))
	params := writeParams(t, dir, src)

	tests := []struct {
		name string
		args []string
	}{
		{"zero ngrams", []string{"-config", params, "-indexstore", filepath.Join(dir, "s"), "-ngrams", "0"}},
		{"negative workers", []string{"-config", params, "-indexstore", filepath.Join(dir, "s"), "-workers", "-2"}},
		{"missing store", []string{"-config", params}},
		{"missing config", []string{"-config", filepath.Join(dir, "nope.ini"), "-indexstore", filepath.Join(dir, "s")}},
		{"unknown flag", []string{"-bogus"}},
		{"stray argument", []string{"-config", params, "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			require.Error(t, err)
			assert.Equal(t, apperrors.ExitConfig, apperrors.ExitCode(err))
			assert.Empty(t, stdout.String())
			assert.NoDirExists(t, filepath.Join(dir, "s"))
		})
	}
}

func TestRunEmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))
	store := filepath.Join(dir, "out.index")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-config", writeParams(t, dir, src), "-indexstore", store}, &stdout, &stderr)
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitEmptyCorpus, apperrors.ExitCode(err))
	assert.NoDirExists(t, store)
}

func TestRunAcceptsConfigfileAlias(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.c"), []byte("int main"), 0o644))
	store := filepath.Join(dir, "out.index")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--configfile=" + writeParams(t, dir, src), "--indexstore=" + store, "--ngrams=1", "--verbose"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Success : Index created - "+store)
	assert.Contains(t, stdout.String(), "Documents : 1")
}
