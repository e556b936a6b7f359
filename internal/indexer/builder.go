// Package indexer builds an index store from a corpus of source files in
// one deterministic batch run: discover documents, assign dense IDs,
// tokenize, accumulate postings, then persist the inverted index, the
// document map and the corpus statistics and seal them with a manifest.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/discovery"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/docmap"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/fileutil"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/metrics"
)

const stagingSuffix = ".staging-"

type State int32

const (
	StateInitializing State = iota
	StateDiscovering
	StateIndexing
	StateFinalizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateDiscovering:
		return "discovering"
	case StateIndexing:
		return "indexing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Progress is called once per indexed document with the number of documents
// done so far, the total, and the document's path. Calls are serialised.
type Progress func(done, total int, path string)

// Result describes a completed build.
type Result struct {
	BuildID    string
	StoreDir   string
	Documents  int
	CorpusSize int64
	AvgLength  float64
	Terms      int
	Postings   int
	Duration   time.Duration
}

// Builder runs index builds. A Builder may run several builds one after the
// other but not concurrently.
type Builder struct {
	cfg       *config.Config
	tokenizer tokenizer.Tokenizer
	progress  Progress
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	readFile  func(string) ([]byte, error)
	state     atomic.Int32
}

type Option func(*Builder)

func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(b *Builder) { b.tokenizer = t }
}

func WithProgress(p Progress) Option {
	return func(b *Builder) { b.progress = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithReadFile replaces the function used to read document content.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(b *Builder) { b.readFile = fn }
}

func NewBuilder(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:       cfg,
		tokenizer: tokenizer.Words{},
		metrics:   metrics.New(),
		logger:    logger.WithComponent("index-builder"),
		now:       time.Now,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State reports the phase of the current or last build.
func (b *Builder) State() State {
	return State(b.state.Load())
}

func (b *Builder) enter(log *slog.Logger, s State) {
	prev := State(b.state.Swap(int32(s)))
	log.Debug("build state changed", "from", prev.String(), "to", s.String())
}

// Build runs a full rebuild of the configured store. Any existing store at
// the target is removed first. On failure no store is left at the target.
func (b *Builder) Build(ctx context.Context) (res *Result, err error) {
	start := b.now()
	buildID := uuid.NewString()
	log := b.logger.With("build_id", buildID)
	b.enter(log, StateInitializing)

	var staging string
	defer func() {
		if err == nil {
			return
		}
		if staging != "" {
			if rmErr := os.RemoveAll(staging); rmErr != nil {
				log.Error("removing staging directory", "dir", staging, "error", rmErr)
			}
		}
		b.enter(log, StateAborted)
		b.metrics.BuildsTotal.WithLabelValues("aborted").Inc()
		log.Error("index build aborted", "error", err)
	}()

	phase := b.now()
	target, err := b.initialize(log)
	if err != nil {
		return nil, err
	}
	staging, err = os.MkdirTemp(filepath.Dir(target), filepath.Base(target)+stagingSuffix+"*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "creating staging directory")
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "creating staging directory")
	}
	b.observe("initializing", phase)

	phase = b.now()
	b.enter(log, StateDiscovering)
	paths, err := discovery.Discover(b.cfg.Documents.Folders, b.cfg.Extensions.Allow, b.cfg.Extensions.Deny)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, apperrors.Newf(apperrors.ErrEmptyCorpus,
			"no files matching %v under %v", b.cfg.Extensions.Allow, b.cfg.Documents.Folders)
	}
	log.Info("documents discovered", "count", len(paths))
	b.observe("discovering", phase)

	phase = b.now()
	b.enter(log, StateIndexing)
	var (
		idx     *index.MemoryIndex
		docs    *docmap.Map
		lengths []int
	)
	if b.cfg.Indexer.Workers > 1 && len(paths) > 1 {
		idx, docs, lengths, err = b.indexParallel(ctx, log, paths)
	} else {
		idx, docs, lengths, err = b.indexSequential(ctx, log, paths)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("documents indexed", "terms", idx.Terms(), "postings", idx.Postings(), "approx_bytes", idx.Size())
	b.observe("indexing", phase)

	phase = b.now()
	b.enter(log, StateFinalizing)
	res, err = b.finalize(log, buildID, staging, target, idx, docs, lengths)
	if err != nil {
		return nil, err
	}
	staging = ""
	b.observe("finalizing", phase)

	res.Duration = b.now().Sub(start)
	b.enter(log, StateDone)
	b.metrics.BuildsTotal.WithLabelValues("done").Inc()
	b.metrics.LastSuccessSeconds.Set(float64(b.now().Unix()))
	log.Info("index created",
		"store", res.StoreDir,
		"documents", res.Documents,
		"corpus_size", res.CorpusSize,
		"avg_length", res.AvgLength,
		"terms", res.Terms,
		"postings", res.Postings,
		"duration", res.Duration,
	)
	return res, nil
}

// initialize validates the configuration and clears the target, returning
// its absolute path.
func (b *Builder) initialize(log *slog.Logger) (string, error) {
	if err := b.cfg.Validate(); err != nil {
		return "", err
	}
	target, err := filepath.Abs(b.cfg.Indexer.StoreDir)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrConfig, err, "resolving store directory")
	}
	if _, err := os.Stat(target); err == nil {
		log.Warn("deleting existing index store", "store", target)
		if err := os.RemoveAll(target); err != nil {
			return "", apperrors.Wrap(apperrors.ErrIO, err, "removing existing store %s", target)
		}
	} else if !os.IsNotExist(err) {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "checking store %s", target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "creating store parent directory")
	}
	if err := removeStaleStaging(log, target); err != nil {
		return "", err
	}
	return target, nil
}

// removeStaleStaging deletes staging directories left next to target by
// builds that were killed before they could clean up.
func removeStaleStaging(log *slog.Logger, target string) error {
	parent := filepath.Dir(target)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "listing %s", parent)
	}
	prefix := filepath.Base(target) + stagingSuffix
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		stale := filepath.Join(parent, e.Name())
		log.Warn("removing stale staging directory", "dir", stale)
		if err := os.RemoveAll(stale); err != nil {
			return apperrors.Wrap(apperrors.ErrIO, err, "removing stale staging directory %s", stale)
		}
	}
	return nil
}

func (b *Builder) indexSequential(ctx context.Context, log *slog.Logger, paths []string) (*index.MemoryIndex, *docmap.Map, []int, error) {
	idx := index.NewMemoryIndex()
	docs := docmap.New()
	lengths := make([]int, 0, len(paths))
	report := b.reporter(log, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("indexing cancelled: %w", err)
		}
		id, err := docs.Assign(path)
		if err != nil {
			return nil, nil, nil, err
		}
		n, err := b.indexDocument(idx, id, path)
		if err != nil {
			return nil, nil, nil, err
		}
		lengths = append(lengths, n)
		report(path)
	}
	return idx, docs, lengths, nil
}

// indexParallel assigns every ID up front, splits the ID range into
// contiguous shards, indexes each shard into its own fragment and merges the
// fragments in ID order. The result is identical to indexSequential.
func (b *Builder) indexParallel(ctx context.Context, log *slog.Logger, paths []string) (*index.MemoryIndex, *docmap.Map, []int, error) {
	docs := docmap.New()
	for _, path := range paths {
		if _, err := docs.Assign(path); err != nil {
			return nil, nil, nil, err
		}
	}
	workers := b.cfg.Indexer.Workers
	if workers > len(paths) {
		workers = len(paths)
	}
	lengths := make([]int, len(paths))
	fragments := make([]*index.MemoryIndex, workers)
	report := b.reporter(log, len(paths))
	shardSize := (len(paths) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * shardSize
		hi := min(lo+shardSize, len(paths))
		frag := index.NewMemoryIndex()
		fragments[w] = frag
		g.Go(func() error {
			for id := lo; id < hi; id++ {
				if err := gctx.Err(); err != nil {
					return fmt.Errorf("indexing cancelled: %w", err)
				}
				n, err := b.indexDocument(frag, uint32(id), paths[id])
				if err != nil {
					return err
				}
				lengths[id] = n
				report(paths[id])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	log.Debug("merging index fragments", "fragments", workers)
	idx := index.NewMemoryIndex()
	if err := idx.Merge(fragments...); err != nil {
		return nil, nil, nil, err
	}
	return idx, docs, lengths, nil
}

// indexDocument reads, tokenizes and indexes one document and returns its
// length in terms.
func (b *Builder) indexDocument(idx *index.MemoryIndex, id uint32, path string) (int, error) {
	content, err := b.readFile(path)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrIO, err, "reading document %s", path)
	}
	n := b.cfg.Indexer.GramWidth
	terms := b.tokenizer.Terms(string(content), n)
	if err := tokenizer.Validate(terms, n); err != nil {
		return 0, fmt.Errorf("document %s: %w", path, err)
	}
	for pos, term := range terms {
		if err := idx.Update(term, pos, id); err != nil {
			return 0, err
		}
	}
	b.metrics.DocsIndexedTotal.Inc()
	b.metrics.BytesReadTotal.Add(float64(len(content)))
	b.metrics.PostingsTotal.Add(float64(len(terms)))
	b.metrics.DocumentTerms.Observe(float64(len(terms)))
	return len(terms), nil
}

// reporter returns a goroutine-safe per-document progress hook.
func (b *Builder) reporter(log *slog.Logger, total int) func(path string) {
	var mu sync.Mutex
	done := 0
	level := slog.LevelDebug
	if b.cfg.Indexer.Verbose {
		level = slog.LevelInfo
	}
	return func(path string) {
		mu.Lock()
		defer mu.Unlock()
		done++
		log.Log(context.Background(), level, "document added to index", "n", done, "total", total, "path", path)
		if b.progress != nil {
			b.progress(done, total, path)
		}
	}
}

// finalize persists every artifact into staging, seals it with the manifest
// and moves it into place at target.
func (b *Builder) finalize(log *slog.Logger, buildID, staging, target string, idx *index.MemoryIndex, docs *docmap.Map, lengths []int) (*Result, error) {
	if docs.Len() != len(lengths) {
		return nil, apperrors.Newf(apperrors.ErrInvariant, "%d documents but %d lengths", docs.Len(), len(lengths))
	}
	st, err := stats.Compute(lengths)
	if err != nil {
		return nil, err
	}
	if _, err := segment.NewWriter(staging, segment.WithClock(b.now)).Write(idx.Snapshot(), uint32(docs.Len())); err != nil {
		return nil, err
	}
	if err := docs.Persist(staging); err != nil {
		return nil, err
	}
	if err := st.Persist(staging); err != nil {
		return nil, err
	}
	if err := store.WriteManifest(staging, store.Manifest{
		BuildID:    buildID,
		CreatedAt:  b.now().UTC(),
		GramWidth:  b.cfg.Indexer.GramWidth,
		Documents:  st.N,
		CorpusSize: st.CorpusSize,
		Terms:      idx.Terms(),
		Postings:   idx.Postings(),
	}); err != nil {
		return nil, err
	}
	if err := os.Rename(staging, target); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "publishing store %s", target)
	}
	if err := fileutil.SyncDir(filepath.Dir(target)); err != nil {
		log.Warn("store published but parent directory sync failed", "error", err)
	}

	b.metrics.IndexTerms.Set(float64(idx.Terms()))
	b.metrics.CorpusSize.Set(float64(st.CorpusSize))
	b.metrics.AvgDocLength.Set(st.AvgLength)
	return &Result{
		BuildID:    buildID,
		StoreDir:   target,
		Documents:  st.N,
		CorpusSize: st.CorpusSize,
		AvgLength:  st.AvgLength,
		Terms:      idx.Terms(),
		Postings:   idx.Postings(),
	}, nil
}

func (b *Builder) observe(phase string, since time.Time) {
	b.metrics.PhaseDuration.WithLabelValues(phase).Observe(b.now().Sub(since).Seconds())
}
