package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadINI(t *testing.T) {
	path := writeFile(t, "params.ini", `
[DOCUMENTS]
DOCLIST = ./src , ./include,

[EXTN]
EXTNLIST = .c, .h
BLACKLIST = .pb.h

[LOGGING]
LEVEL = debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"./src", "./include"}, cfg.Documents.Folders)
	assert.Equal(t, []string{".c", ".h"}, cfg.Extensions.Allow)
	assert.Equal(t, []string{".pb.h"}, cfg.Extensions.Deny)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 1, cfg.Indexer.GramWidth)
}

func TestLoadINIMissingSection(t *testing.T) {
	path := writeFile(t, "params.ini", "[DOCUMENTS]\nDOCLIST = ./src\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
	assert.Contains(t, err.Error(), "EXTN")
}

func TestLoadINIMissingKey(t *testing.T) {
	path := writeFile(t, "params.ini", "[DOCUMENTS]\nFOLDERS = ./src\n[EXTN]\nEXTNLIST=.go\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "params.yaml", `
documents:
  folders: [./a, " ./b "]
extensions:
  allow: [.go]
  deny: [_test.go]
indexer:
  gramWidth: 2
  workers: 4
kafka:
  brokers: [localhost:9092]
redis:
  addr: localhost:6379
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"./a", "./b"}, cfg.Documents.Folders)
	assert.Equal(t, []string{"_test.go"}, cfg.Extensions.Deny)
	assert.Equal(t, 2, cfg.Indexer.GramWidth)
	assert.Equal(t, 4, cfg.Indexer.Workers)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "index.complete", cfg.Kafka.IndexComplete)
	assert.Equal(t, "search:*", cfg.Redis.CacheKeyPattern)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeFile(t, "params.yml", "documents: [unterminated")
	_, err := Load(path)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = Load("")
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SP_LOGGING_FORMAT", "json")
	t.Setenv("SP_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SP_POSTGRES_PORT", "6543")
	path := writeFile(t, "params.ini", "[DOCUMENTS]\nDOCLIST=.\n[EXTN]\nEXTNLIST=.go\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 6543, cfg.Postgres.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Documents.Folders = []string{"."}
		c.Extensions.Allow = []string{".go"}
		c.Indexer.StoreDir = "out.index"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no folders", func(c *Config) { c.Documents.Folders = nil }},
		{"no allow", func(c *Config) { c.Extensions.Allow = nil }},
		{"zero ngrams", func(c *Config) { c.Indexer.GramWidth = 0 }},
		{"negative ngrams", func(c *Config) { c.Indexer.GramWidth = -3 }},
		{"zero workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"no store", func(c *Config) { c.Indexer.StoreDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), apperrors.ErrConfig)
		})
	}
}

func TestDefaultDoesNotAlias(t *testing.T) {
	a, b := Default(), Default()
	a.Documents.Folders = append(a.Documents.Folders, "x")
	a.Kafka.Brokers = append(a.Kafka.Brokers, "k")
	assert.Empty(t, b.Documents.Folders)
	assert.Empty(t, b.Kafka.Brokers)
}
