// Package stats derives the corpus-level aggregates a ranking function such
// as BM25 needs: document count, corpus size and average document length,
// together with the per-document length table.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/fileutil"
)

const FileName = "stats.json"

// Snapshot is the persisted statistics of one build. Lengths[id] is the term
// count of document id.
type Snapshot struct {
	N          int     `json:"n"`
	CorpusSize int64   `json:"corpus_size"`
	AvgLength  float64 `json:"avg_length"`
	Lengths    []int   `json:"doc_lengths"`
}

// Compute aggregates lengths. It fails when there are no documents, since
// the average length is undefined.
func Compute(lengths []int) (Snapshot, error) {
	n := len(lengths)
	if n == 0 {
		return Snapshot{}, apperrors.New(apperrors.ErrEmptyCorpus, "cannot compute statistics over zero documents")
	}
	var cs int64
	for id, l := range lengths {
		if l < 0 {
			return Snapshot{}, apperrors.Newf(apperrors.ErrInvariant, "document %d has negative length %d", id, l)
		}
		cs += int64(l)
	}
	table := make([]int, n)
	copy(table, lengths)
	return Snapshot{
		N:          n,
		CorpusSize: cs,
		AvgLength:  float64(cs) / float64(n),
		Lengths:    table,
	}, nil
}

// Check verifies the snapshot's internal consistency.
func (s Snapshot) Check() error {
	if s.N != len(s.Lengths) {
		return apperrors.Newf(apperrors.ErrInvariant, "statistics: N=%d but %d lengths", s.N, len(s.Lengths))
	}
	if s.N == 0 {
		return apperrors.New(apperrors.ErrEmptyCorpus, "statistics: zero documents")
	}
	var sum int64
	for _, l := range s.Lengths {
		sum += int64(l)
	}
	if sum != s.CorpusSize {
		return apperrors.Newf(apperrors.ErrInvariant, "statistics: lengths sum to %d, corpus size %d", sum, s.CorpusSize)
	}
	if math.Abs(s.AvgLength*float64(s.N)-float64(s.CorpusSize)) > 1e-6*math.Max(1, float64(s.CorpusSize)) {
		return apperrors.Newf(apperrors.ErrInvariant, "statistics: avg %g * N %d != corpus size %d", s.AvgLength, s.N, s.CorpusSize)
	}
	return nil
}

// Persist writes the snapshot to dir/stats.json.
func (s Snapshot) Persist(dir string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling statistics: %w", err)
	}
	return fileutil.WriteAtomic(filepath.Join(dir, FileName), data)
}

// Load reads and checks a snapshot written by Persist.
func Load(dir string) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return Snapshot{}, apperrors.Wrap(apperrors.ErrIO, err, "reading statistics")
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, apperrors.Wrap(apperrors.ErrIO, err, "parsing statistics")
	}
	if err := s.Check(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
