package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/announce"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/metrics"
)

type options struct {
	configPath  string
	storeDir    string
	ngrams      int
	workers     int
	verbose     bool
	metricsFile string
	verify      bool
	set         map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("indexer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.configPath, "config", "params.ini", "path to the INI or YAML configuration")
	fs.StringVar(&o.configPath, "configfile", "params.ini", "alias for -config")
	fs.StringVar(&o.storeDir, "indexstore", "", "directory the index store is written to")
	fs.IntVar(&o.ngrams, "ngrams", 1, "number of consecutive tokens per term")
	fs.IntVar(&o.workers, "workers", 0, "documents tokenized in parallel (0 uses the config value)")
	fs.BoolVar(&o.verbose, "verbose", false, "log per-document progress")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the build")
	fs.BoolVar(&o.verify, "verify", false, "read the published store back and check its invariants")
	if err := fs.Parse(args); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, err, "parsing flags")
	}
	if fs.NArg() > 0 {
		return nil, apperrors.Newf(apperrors.ErrConfig, "unexpected arguments: %v", fs.Args())
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// loadConfig reads the config file and lets explicit flags win over it.
func loadConfig(o *options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.storeDir != "" {
		cfg.Indexer.StoreDir = o.storeDir
	}
	if o.set["ngrams"] {
		cfg.Indexer.GramWidth = o.ngrams
	}
	if o.workers != 0 {
		cfg.Indexer.Workers = o.workers
	}
	if o.verbose {
		cfg.Indexer.Verbose = true
	}
	if o.metricsFile != "" {
		cfg.Metrics.TextfilePath = o.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()
	defer func() {
		if cfg.Metrics.TextfilePath == "" {
			return
		}
		if werr := m.WriteTextfile(cfg.Metrics.TextfilePath); werr != nil {
			slog.Warn("failed to write metrics textfile", "path", cfg.Metrics.TextfilePath, "error", werr)
		}
	}()

	slog.Info("starting index build",
		"folders", cfg.Documents.Folders,
		"store", cfg.Indexer.StoreDir,
		"gram_width", cfg.Indexer.GramWidth,
		"workers", cfg.Indexer.Workers,
	)
	res, err := indexer.NewBuilder(cfg, indexer.WithMetrics(m)).Build(ctx)
	if err != nil {
		return err
	}
	if o.verify {
		if err := verifyStore(res.StoreDir); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "Success : Index created - %s\n", res.StoreDir)
	fmt.Fprintf(stdout, "Documents : %d\n", res.Documents)
	fmt.Fprintf(stdout, "Corpus size : %d\n", res.CorpusSize)

	ann, err := announce.FromConfig(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer ann.Close()
	return ann.Announce(ctx, announce.FromResult(res, time.Now()))
}

func verifyStore(dir string) error {
	s, err := store.Open(dir)
	if err != nil {
		return err
	}
	if err := s.Verify(); err != nil {
		return err
	}
	slog.Info("index store verified", "store", dir, "terms", s.Manifest.Terms)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "indexer: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
