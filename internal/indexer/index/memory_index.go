package index

import (
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

// MemoryIndex accumulates term → postings for a single build. It has one
// writer and no concurrent readers, so it carries no lock.
type MemoryIndex struct {
	index    map[string]PostingList
	postings int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]PostingList),
	}
}

// Update appends (docID, position) to term's posting list, creating the list
// on first occurrence. Every occurrence is kept. Postings must arrive in
// (docID, position) order per term.
func (m *MemoryIndex) Update(term string, position int, docID uint32) error {
	p := Posting{DocID: docID, Position: uint32(position)}
	list, exists := m.index[term]
	if exists {
		if last := list[len(list)-1]; p.Less(last) {
			return apperrors.Newf(apperrors.ErrInvariant,
				"posting (%d,%d) for %q after (%d,%d)", p.DocID, p.Position, term, last.DocID, last.Position)
		}
	} else {
		list = make(PostingList, 0, 4)
		m.size += int64(len(term)) + 64
	}
	m.index[term] = append(list, p)
	m.postings++
	m.size += 8
	return nil
}

// Search returns the posting list of term, or nil.
func (m *MemoryIndex) Search(term string) PostingList {
	return m.index[term]
}

// Snapshot returns every term sorted lexicographically with its postings.
// The posting slices are shared with the index.
func (m *MemoryIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Merge appends the fragments' postings into m. Fragments must be passed in
// ascending document-ID order and cover disjoint ID ranges, so each term's
// list stays ordered.
func (m *MemoryIndex) Merge(fragments ...*MemoryIndex) error {
	for _, frag := range fragments {
		for _, entry := range frag.Snapshot() {
			list, exists := m.index[entry.Term]
			if exists && entry.Postings[0].Less(list[len(list)-1]) {
				return apperrors.Newf(apperrors.ErrInvariant,
					"merging %q: fragment starts at doc %d before doc %d", entry.Term, entry.Postings[0].DocID, list[len(list)-1].DocID)
			}
			if !exists {
				m.size += int64(len(entry.Term)) + 64
			}
			m.index[entry.Term] = append(list, entry.Postings...)
			m.postings += len(entry.Postings)
			m.size += int64(len(entry.Postings)) * 8
		}
	}
	return nil
}

// Load replaces the content of m with entries, as read back from a store.
func (m *MemoryIndex) Load(entries []TermEntry) {
	m.Reset()
	for _, e := range entries {
		m.index[e.Term] = e.Postings
		m.postings += len(e.Postings)
		m.size += int64(len(e.Term)) + 64 + int64(len(e.Postings))*8
	}
}

func (m *MemoryIndex) Terms() int {
	return len(m.index)
}

func (m *MemoryIndex) Postings() int {
	return m.postings
}

// Size is a rough estimate of the index's memory footprint in bytes.
func (m *MemoryIndex) Size() int64 {
	return m.size
}

func (m *MemoryIndex) Reset() {
	m.index = make(map[string]PostingList)
	m.postings = 0
	m.size = 0
}
