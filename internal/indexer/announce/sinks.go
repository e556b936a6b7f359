package announce

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/resilience"
)

// CurrentStoreKey holds the JSON event of the latest build in Redis.
const CurrentStoreKey = "srcindex:current"

// FromConfig connects every sink the configuration enables. Kafka needs
// brokers, Redis an address, PostgreSQL a host.
func FromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Announcer, error) {
	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, &KafkaSink{producer: kafka.NewProducer(cfg.Kafka)})
	}
	if cfg.Redis.Addr != "" {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			closeAll()
			return nil, apperrors.Wrap(apperrors.ErrAnnounce, err, "connecting to redis %s", cfg.Redis.Addr)
		}
		sinks = append(sinks, &RedisSink{cache: client, pattern: cfg.Redis.CacheKeyPattern})
	}
	if cfg.Postgres.Host != "" {
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			closeAll()
			return nil, apperrors.Wrap(apperrors.ErrAnnounce, err, "connecting to postgres %s", cfg.Postgres.Host)
		}
		sinks = append(sinks, &PostgresSink{client: client})
	}
	return New(sinks, m, resilience.RetryConfig{}, cfg.Kafka.Timeout), nil
}

type publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	Close() error
}

// KafkaSink publishes the event on the index-complete topic, keyed by build.
type KafkaSink struct {
	producer publisher
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Announce(ctx context.Context, ev Event) error {
	return s.producer.Publish(ctx, kafka.Event{Key: ev.BuildID, Value: ev})
}

func (s *KafkaSink) Close() error { return s.producer.Close() }

type cache interface {
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Close() error
}

// RedisSink drops cached search results computed against the previous store
// and records the new one under CurrentStoreKey.
type RedisSink struct {
	cache   cache
	pattern string
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Announce(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("marshaling event: %w", err))
	}
	if s.pattern != "" {
		if _, err := s.cache.FlushByPattern(ctx, s.pattern); err != nil {
			return err
		}
	}
	return s.cache.Set(ctx, CurrentStoreKey, value, 0)
}

func (s *RedisSink) Close() error { return s.cache.Close() }

const createBuildsTable = `CREATE TABLE IF NOT EXISTS index_builds (
	build_id     TEXT PRIMARY KEY,
	store_dir    TEXT NOT NULL,
	documents    INTEGER NOT NULL,
	corpus_size  BIGINT NOT NULL,
	avg_length   DOUBLE PRECISION NOT NULL,
	terms        INTEGER NOT NULL,
	postings     BIGINT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
)`

const insertBuild = `INSERT INTO index_builds
	(build_id, store_dir, documents, corpus_size, avg_length, terms, postings, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (build_id) DO NOTHING`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink appends a row to the index_builds catalog.
type PostgresSink struct {
	client *postgres.Client
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Announce(ctx context.Context, ev Event) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		return recordBuild(ctx, tx, ev)
	})
}

func (s *PostgresSink) Close() error { return s.client.Close() }

func recordBuild(ctx context.Context, db execer, ev Event) error {
	if _, err := db.ExecContext(ctx, createBuildsTable); err != nil {
		return fmt.Errorf("creating index_builds: %w", err)
	}
	_, err := db.ExecContext(ctx, insertBuild,
		ev.BuildID, ev.StoreDir, ev.Documents, ev.CorpusSize, ev.AvgLength, ev.Terms, ev.Postings, ev.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting build %s: %w", ev.BuildID, err)
	}
	return nil
}
