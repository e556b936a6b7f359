// Package announce tells the outside world that a new index store is in
// place. It runs only after a build is durable; a failed announcement never
// touches the store.
package announce

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/resilience"
)

// Event is the payload every sink receives.
type Event struct {
	BuildID     string    `json:"build_id"`
	StoreDir    string    `json:"store_dir"`
	Documents   int       `json:"documents"`
	CorpusSize  int64     `json:"corpus_size"`
	AvgLength   float64   `json:"avg_length"`
	Terms       int       `json:"terms"`
	Postings    int       `json:"postings"`
	CompletedAt time.Time `json:"completed_at"`
}

// FromResult builds the event for a completed build.
func FromResult(res *indexer.Result, completedAt time.Time) Event {
	return Event{
		BuildID:     res.BuildID,
		StoreDir:    res.StoreDir,
		Documents:   res.Documents,
		CorpusSize:  res.CorpusSize,
		AvgLength:   res.AvgLength,
		Terms:       res.Terms,
		Postings:    res.Postings,
		CompletedAt: completedAt.UTC(),
	}
}

// Sink delivers an Event somewhere.
type Sink interface {
	Name() string
	Announce(ctx context.Context, ev Event) error
	Close() error
}

// Announcer fans an Event out to every configured sink.
type Announcer struct {
	sinks   []Sink
	retry   resilience.RetryConfig
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(sinks []Sink, m *metrics.Metrics, retry resilience.RetryConfig, timeout time.Duration) *Announcer {
	if m == nil {
		m = metrics.New()
	}
	return &Announcer{
		sinks:   sinks,
		retry:   retry,
		timeout: timeout,
		metrics: m,
		logger:  logger.WithComponent("announcer"),
	}
}

// Sinks returns the names of the configured sinks.
func (a *Announcer) Sinks() []string {
	names := make([]string, 0, len(a.sinks))
	for _, s := range a.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Announce delivers ev to every sink, retrying each independently. All sinks
// are attempted even if one fails; the failures are joined.
func (a *Announcer) Announce(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range a.sinks {
		err := resilience.Retry(ctx, sink.Name(), a.retry, func() error {
			return resilience.WithTimeout(ctx, a.timeout, sink.Name(), func(ctx context.Context) error {
				return sink.Announce(ctx, ev)
			})
		})
		if err != nil {
			a.metrics.AnnouncementsTotal.WithLabelValues(sink.Name(), "error").Inc()
			a.logger.Error("announcement failed", "sink", sink.Name(), "build_id", ev.BuildID, "error", err)
			errs = append(errs, err)
			continue
		}
		a.metrics.AnnouncementsTotal.WithLabelValues(sink.Name(), "ok").Inc()
		a.logger.Info("build announced", "sink", sink.Name(), "build_id", ev.BuildID)
	}
	if len(errs) > 0 {
		return apperrors.Wrap(apperrors.ErrAnnounce, errors.Join(errs...), "%d of %d sinks failed", len(errs), len(a.sinks))
	}
	return nil
}

func (a *Announcer) Close() error {
	var errs []error
	for _, s := range a.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
