// Package store reads back and checks a finished index store. A store is a
// directory holding index.spdx, docmap.json and stats.json, sealed by a
// MANIFEST.json that records each artifact's size and xxhash64 checksum. The
// manifest is written last, so a directory without one is not a store.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/docmap"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/stats"
	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/fileutil"
)

const (
	ManifestFileName = "MANIFEST.json"
	ManifestVersion  = 1
)

// Artifacts lists the files every store holds, in the order they are written.
var Artifacts = []string{segment.FileName, docmap.FileName, stats.FileName}

// Manifest seals a store.
type Manifest struct {
	Version    int        `json:"version"`
	BuildID    string     `json:"build_id"`
	CreatedAt  time.Time  `json:"created_at"`
	GramWidth  int        `json:"gram_width"`
	Documents  int        `json:"documents"`
	CorpusSize int64      `json:"corpus_size"`
	Terms      int        `json:"terms"`
	Postings   int        `json:"postings"`
	Artifacts  []Artifact `json:"artifacts"`
}

type Artifact struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum string `json:"xxhash64"`
}

// WriteManifest checksums the artifacts already present in dir and writes
// the manifest that seals it.
func WriteManifest(dir string, m Manifest) error {
	m.Version = ManifestVersion
	m.Artifacts = m.Artifacts[:0]
	for _, name := range Artifacts {
		a, err := checksum(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		a.Name = name
		m.Artifacts = append(m.Artifacts, a)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return fileutil.WriteAtomic(filepath.Join(dir, ManifestFileName), data)
}

// ReadManifest reads dir's manifest without checking artifacts.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return Manifest{}, apperrors.Wrap(apperrors.ErrIO, err, "%s is not a complete index store", dir)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, apperrors.Wrap(apperrors.ErrIO, err, "parsing manifest")
	}
	if m.Version != ManifestVersion {
		return Manifest{}, apperrors.Newf(apperrors.ErrIO, "unsupported manifest version %d (expected %d)", m.Version, ManifestVersion)
	}
	return m, nil
}

func checksum(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, apperrors.Wrap(apperrors.ErrIO, err, "opening artifact")
	}
	defer f.Close()
	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Artifact{}, apperrors.Wrap(apperrors.ErrIO, err, "checksumming %s", path)
	}
	return Artifact{Size: n, Checksum: strconv.FormatUint(h.Sum64(), 16)}, nil
}

// Store is a fully loaded index store.
type Store struct {
	Dir      string
	Manifest Manifest
	Index    *index.MemoryIndex
	Docs     *docmap.Map
	Stats    stats.Snapshot
}

// Open verifies the artifact checksums against the manifest and loads every
// structure back into memory.
func Open(dir string) (*Store, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	for _, want := range m.Artifacts {
		got, err := checksum(filepath.Join(dir, want.Name))
		if err != nil {
			return nil, err
		}
		if got.Size != want.Size || got.Checksum != want.Checksum {
			return nil, apperrors.Newf(apperrors.ErrIO, "artifact %s does not match manifest", want.Name)
		}
	}

	r, err := segment.OpenReader(filepath.Join(dir, segment.FileName))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	entries, err := r.Entries()
	if err != nil {
		return nil, err
	}
	idx := index.NewMemoryIndex()
	idx.Load(entries)

	docs, err := docmap.Load(dir)
	if err != nil {
		return nil, err
	}
	st, err := stats.Load(dir)
	if err != nil {
		return nil, err
	}
	return &Store{Dir: dir, Manifest: m, Index: idx, Docs: docs, Stats: st}, nil
}

// Verify checks the cross-artifact invariants: document IDs are dense, every
// term has postings ordered by (doc, position), every posting refers to a
// known document at a position inside it, and each document's posting count
// equals its recorded length.
func (s *Store) Verify() error {
	n := s.Docs.Len()
	ids := roaring.New()
	for _, e := range s.Docs.Entries() {
		ids.Add(e.ID)
	}
	if ids.GetCardinality() != uint64(n) || (n > 0 && ids.Maximum() != uint32(n-1)) {
		return apperrors.Newf(apperrors.ErrInvariant, "document ids are not the dense range [0,%d)", n)
	}
	if s.Stats.N != n || s.Manifest.Documents != n {
		return apperrors.Newf(apperrors.ErrInvariant, "document count mismatch: map %d, stats %d, manifest %d", n, s.Stats.N, s.Manifest.Documents)
	}
	if s.Stats.CorpusSize != s.Manifest.CorpusSize {
		return apperrors.Newf(apperrors.ErrInvariant, "corpus size mismatch: stats %d, manifest %d", s.Stats.CorpusSize, s.Manifest.CorpusSize)
	}

	perDoc := make([]int, n)
	for _, entry := range s.Index.Snapshot() {
		if len(entry.Postings) == 0 {
			return apperrors.Newf(apperrors.ErrInvariant, "term %q has no postings", entry.Term)
		}
		for i, p := range entry.Postings {
			if !ids.Contains(p.DocID) {
				return apperrors.Newf(apperrors.ErrInvariant, "term %q refers to unknown document %d", entry.Term, p.DocID)
			}
			if int(p.Position) >= s.Stats.Lengths[p.DocID] {
				return apperrors.Newf(apperrors.ErrInvariant, "term %q position %d outside document %d", entry.Term, p.Position, p.DocID)
			}
			if i > 0 && p.Less(entry.Postings[i-1]) {
				return apperrors.Newf(apperrors.ErrInvariant, "term %q postings out of order at %d", entry.Term, i)
			}
			perDoc[p.DocID]++
		}
	}
	for id, got := range perDoc {
		if got != s.Stats.Lengths[id] {
			return apperrors.Newf(apperrors.ErrInvariant, "document %d has %d postings but length %d", id, got, s.Stats.Lengths[id])
		}
	}
	if s.Index.Terms() != s.Manifest.Terms || s.Index.Postings() != s.Manifest.Postings {
		return apperrors.Newf(apperrors.ErrInvariant, "index has %d terms/%d postings, manifest %d/%d",
			s.Index.Terms(), s.Index.Postings(), s.Manifest.Terms, s.Manifest.Postings)
	}
	return nil
}
