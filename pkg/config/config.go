// Package config loads and validates the indexer configuration. The document
// sources and extension filters come from either a section-based INI file
// (the classic params.ini layout) or a YAML file; SP_* environment variables
// override either.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Documents  DocumentsConfig  `yaml:"documents"`
	Extensions ExtensionsConfig `yaml:"extensions"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
}

// DocumentsConfig lists the folders scanned for documents.
type DocumentsConfig struct {
	Folders []string `yaml:"folders"`
}

// ExtensionsConfig holds the allow- and deny-lists of file extensions. A
// deny-listed extension always wins over an allowed one.
type ExtensionsConfig struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// IndexerConfig controls a single build.
type IndexerConfig struct {
	StoreDir  string `yaml:"storeDir"`
	GramWidth int    `yaml:"gramWidth"`
	Workers   int    `yaml:"workers"`
	Verbose   bool   `yaml:"verbose"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig points at a node-exporter textfile the build metrics are
// written to. Empty disables the export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfilePath"`
}

// KafkaConfig holds broker and topic settings for the build-complete event.
// No brokers disables the publisher.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	IndexComplete string        `yaml:"indexComplete"`
	Timeout       time.Duration `yaml:"timeout"`
}

// RedisConfig holds the connection used to drop cached search results once
// a new index is published. An empty Addr disables invalidation.
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	PoolSize        int    `yaml:"poolSize"`
	CacheKeyPattern string `yaml:"cacheKeyPattern"`
}

// PostgresConfig holds the build catalog connection. An empty Host disables
// the catalog.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Load reads the config file at path and applies environment-variable
// overrides. Files ending in .yaml or .yml are parsed as YAML, anything else
// as INI. The result is not validated; call Validate once command-line
// overrides have been applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return nil, apperrors.New(apperrors.ErrConfig, "no config file given")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, err, "cannot find config file %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	default:
		if err := loadINI(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	cfg.Documents.Folders = cleanList(cfg.Documents.Folders)
	cfg.Extensions.Allow = cleanList(cfg.Extensions.Allow)
	cfg.Extensions.Deny = cleanList(cfg.Extensions.Deny)
	cfg.Kafka.Brokers = cleanList(cfg.Kafka.Brokers)
	return cfg, nil
}

// Default returns a fresh Config populated with defaults. Every call
// allocates new slices so configs never share state.
func Default() *Config {
	return &Config{
		Documents:  DocumentsConfig{Folders: []string{}},
		Extensions: ExtensionsConfig{Allow: []string{}, Deny: []string{}},
		Indexer: IndexerConfig{
			GramWidth: 1,
			Workers:   1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{},
			IndexComplete: "index.complete",
			Timeout:       10 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:        4,
			CacheKeyPattern: "search:*",
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "searchplatform",
			User:            "searchplatform",
			SSLMode:         "disable",
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
	}
}

// Validate checks the settings a build cannot start without.
func (c *Config) Validate() error {
	if len(c.Documents.Folders) == 0 {
		return apperrors.New(apperrors.ErrConfig, "no document folders configured")
	}
	if len(c.Extensions.Allow) == 0 {
		return apperrors.New(apperrors.ErrConfig, "no allowed file extensions configured")
	}
	if c.Indexer.GramWidth <= 0 {
		return apperrors.Newf(apperrors.ErrConfig, "ngrams should be > 0, got %d", c.Indexer.GramWidth)
	}
	if c.Indexer.Workers <= 0 {
		return apperrors.Newf(apperrors.ErrConfig, "workers should be > 0, got %d", c.Indexer.Workers)
	}
	if c.Indexer.StoreDir == "" {
		return apperrors.New(apperrors.ErrConfig, "no index store directory given")
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, err, "parsing config file %s", path)
	}
	return nil
}

// loadINI reads the params.ini layout:
//
//	[DOCUMENTS]
//	DOCLIST = ./src, ./include
//	[EXTN]
//	EXTNLIST = .c, .h
//	BLACKLIST = .pb.h
func loadINI(path string, cfg *Config) error {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConfig, err, "parsing config file %s", path)
	}
	docs, err := f.GetSection("documents")
	if err != nil {
		return apperrors.Newf(apperrors.ErrConfig, "config file %s: missing [DOCUMENTS] section", path)
	}
	if !docs.HasKey("doclist") {
		return apperrors.Newf(apperrors.ErrConfig, "config file %s: missing DOCLIST in [DOCUMENTS]", path)
	}
	cfg.Documents.Folders = splitList(docs.Key("doclist").String())

	extn, err := f.GetSection("extn")
	if err != nil {
		return apperrors.Newf(apperrors.ErrConfig, "config file %s: missing [EXTN] section", path)
	}
	if !extn.HasKey("extnlist") {
		return apperrors.Newf(apperrors.ErrConfig, "config file %s: missing EXTNLIST in [EXTN]", path)
	}
	cfg.Extensions.Allow = splitList(extn.Key("extnlist").String())
	if extn.HasKey("blacklist") {
		cfg.Extensions.Deny = splitList(extn.Key("blacklist").String())
	}

	if sec, err := f.GetSection("logging"); err == nil {
		cfg.Logging.Level = sec.Key("level").MustString(cfg.Logging.Level)
		cfg.Logging.Format = sec.Key("format").MustString(cfg.Logging.Format)
	}
	return nil
}

func splitList(v string) []string {
	return cleanList(strings.Split(v, ","))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_DOCUMENTS_FOLDERS"); v != "" {
		cfg.Documents.Folders = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.TextfilePath = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
}
