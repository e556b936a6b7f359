// Package metrics defines the Prometheus collectors of an index build. A
// batch job is gone before anything could scrape it, so the collectors live
// on their own registry which is written out as a node-exporter textfile at
// the end of the run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for a build.
type Metrics struct {
	Registry *prometheus.Registry

	DocsIndexedTotal   prometheus.Counter
	BytesReadTotal     prometheus.Counter
	PostingsTotal      prometheus.Counter
	DocumentTerms      prometheus.Histogram
	IndexTerms         prometheus.Gauge
	CorpusSize         prometheus.Gauge
	AvgDocLength       prometheus.Gauge
	PhaseDuration      *prometheus.HistogramVec
	BuildsTotal        *prometheus.CounterVec
	LastSuccessSeconds prometheus.Gauge
	AnnouncementsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "srcindex_docs_indexed_total",
				Help: "Documents added to the index.",
			},
		),
		BytesReadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "srcindex_bytes_read_total",
				Help: "Bytes of document content read.",
			},
		),
		PostingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "srcindex_postings_total",
				Help: "Postings appended to the index.",
			},
		),
		DocumentTerms: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "srcindex_document_terms",
				Help:    "Terms produced per document.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "srcindex_index_terms",
				Help: "Distinct terms in the last built index.",
			},
		),
		CorpusSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "srcindex_corpus_size",
				Help: "Sum of all document lengths in the last built index.",
			},
		),
		AvgDocLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "srcindex_avg_doc_length",
				Help: "Average document length in the last built index.",
			},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "srcindex_phase_duration_seconds",
				Help:    "Time spent in each build phase.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 1800},
			},
			[]string{"phase"},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srcindex_builds_total",
				Help: "Builds by outcome (done, aborted).",
			},
			[]string{"outcome"},
		),
		LastSuccessSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "srcindex_last_success_timestamp_seconds",
				Help: "Unix time of the last successful build.",
			},
		),
		AnnouncementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "srcindex_announcements_total",
				Help: "Post-build announcements by sink and status.",
			},
			[]string{"sink", "status"},
		),
	}

	m.Registry.MustRegister(
		m.DocsIndexedTotal,
		m.BytesReadTotal,
		m.PostingsTotal,
		m.DocumentTerms,
		m.IndexTerms,
		m.CorpusSize,
		m.AvgDocLength,
		m.PhaseDuration,
		m.BuildsTotal,
		m.LastSuccessSeconds,
		m.AnnouncementsTotal,
	)

	return m
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// The file is written atomically so the textfile collector never reads a
// partial file.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
