// Package docmap assigns dense document identifiers and persists the
// id → path table of a build.
package docmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/fileutil"
)

const (
	FileName = "docmap.json"

	// NoCorpus marks documents read directly from disk rather than from a
	// packed corpus file.
	NoCorpus = "NO-CORPUS-FILE"
)

// Entry is one row of the document map. Paths that are not valid UTF-8
// are also stored byte-exact in RawPath, since JSON strings cannot carry
// them.
type Entry struct {
	ID      uint32 `json:"id"`
	Path    string `json:"path"`
	RawPath []byte `json:"raw_path,omitempty"`
	Corpus  string `json:"corpus"`
}

// Map hands out IDs 0..N-1 in call order. It is not safe for concurrent use.
type Map struct {
	entries []Entry
	byPath  map[string]uint32
}

func New() *Map {
	return &Map{byPath: make(map[string]uint32)}
}

// Assign returns the next sequential ID for path. Assigning a path twice is
// an invariant violation.
func (m *Map) Assign(path string) (uint32, error) {
	if id, dup := m.byPath[path]; dup {
		return 0, apperrors.Newf(apperrors.ErrInvariant, "document %s already has id %d", path, id)
	}
	id := uint32(len(m.entries))
	m.entries = append(m.entries, Entry{ID: id, Path: path, Corpus: NoCorpus})
	m.byPath[path] = id
	return id, nil
}

func (m *Map) Len() int {
	return len(m.entries)
}

// Path returns the source path of id.
func (m *Map) Path(id uint32) (string, bool) {
	if int(id) >= len(m.entries) {
		return "", false
	}
	return m.entries[id].Path, true
}

// Entries returns the table ordered by ID.
func (m *Map) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Persist writes the table to dir/docmap.json, replacing any previous file.
func (m *Map) Persist(dir string) error {
	rows := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		if !utf8.ValidString(e.Path) {
			e.RawPath = []byte(e.Path)
		}
		rows[i] = e
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshaling document map: %w", err)
	}
	return fileutil.WriteAtomic(filepath.Join(dir, FileName), data)
}

// Load reads a document map written by Persist and checks its IDs are dense.
func Load(dir string) (*Map, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading document map")
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "parsing document map")
	}
	m := &Map{
		entries: make([]Entry, 0, len(entries)),
		byPath:  make(map[string]uint32, len(entries)),
	}
	for i, e := range entries {
		if e.ID != uint32(i) {
			return nil, apperrors.Newf(apperrors.ErrInvariant, "document map row %d has id %d", i, e.ID)
		}
		if e.RawPath != nil {
			e.Path = string(e.RawPath)
			e.RawPath = nil
		}
		if prev, dup := m.byPath[e.Path]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvariant, "document map rows %d and %d share path %q", prev, e.ID, e.Path)
		}
		m.entries = append(m.entries, e)
		m.byPath[e.Path] = e.ID
	}
	return m, nil
}
