package index

// Posting is one occurrence of a term: the document it appears in and its
// zero-based offset within that document's term sequence.
type Posting struct {
	DocID    uint32
	Position uint32
}

// Less orders postings by document, then by position.
func (p Posting) Less(o Posting) bool {
	if p.DocID != o.DocID {
		return p.DocID < o.DocID
	}
	return p.Position < o.Position
}

type PostingList []Posting

// DocFreq returns the number of distinct documents in a sorted list.
func (pl PostingList) DocFreq() int {
	n := 0
	for i, p := range pl {
		if i == 0 || p.DocID != pl[i-1].DocID {
			n++
		}
	}
	return n
}

type TermEntry struct {
	Term     string
	Postings PostingList
}
