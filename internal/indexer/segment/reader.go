package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
)

type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	postBase int64
	dec      *zstd.Decoder
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "opening index file")
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading index header")
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, apperrors.Newf(apperrors.ErrIO, "invalid index file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, apperrors.Newf(apperrors.ErrIO, "unsupported index format version %d", header.Version)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading index footer")
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading dictionary")
	}
	if got, want := crc32.ChecksumIEEE(dictBytes), binary.LittleEndian.Uint32(footer[0:4]); got != want {
		return nil, apperrors.Newf(apperrors.ErrIO, "dictionary checksum mismatch: %08x != %08x", got, want)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "parsing dictionary")
	}
	for i := range dict {
		if dict[i].Raw != nil {
			dict[i].Term = string(dict[i].Raw)
			dict[i].Raw = nil
		}
		if i > 0 && dict[i-1].Term >= dict[i].Term {
			return nil, apperrors.Newf(apperrors.ErrIO, "dictionary not sorted at %q", dict[i].Term)
		}
	}
	if len(dict) != int(header.TermCount) {
		return nil, apperrors.Newf(apperrors.ErrIO, "dictionary has %d terms, header says %d", len(dict), header.TermCount)
	}

	r := &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}
	if header.Flags&FlagZstd != 0 {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		r.dec = dec
	}
	return r, nil
}

func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.readPostings(r.dict[idx])
}

// Entries reads back every term and its postings in dictionary order, after
// checking the postings region against the footer checksum.
func (r *Reader) Entries() ([]index.TermEntry, error) {
	if err := r.verifyPostings(); err != nil {
		return nil, err
	}
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, d := range r.dict {
		postings, err := r.readPostings(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Term: d.Term, Postings: postings})
	}
	return entries, nil
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	block := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(block, r.postBase+entry.PostOffset); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "reading postings for %q", entry.Term)
	}
	if r.dec != nil {
		raw, err := r.dec.DecodeAll(block, nil)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrIO, err, "decompressing postings for %q", entry.Term)
		}
		block = raw
	}
	postings, err := decodePostings(block)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, err, "decoding postings for %q", entry.Term)
	}
	if len(postings) != entry.Count {
		return nil, apperrors.Newf(apperrors.ErrIO, "term %q has %d postings, dictionary says %d", entry.Term, len(postings), entry.Count)
	}
	return postings, nil
}

func (r *Reader) verifyPostings() error {
	footer := make([]byte, FooterSize)
	if _, err := r.file.ReadAt(footer, r.header.DictOffset+r.header.DictSize); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "reading index footer")
	}
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, io.NewSectionReader(r.file, r.postBase, r.header.PostSize)); err != nil {
		return apperrors.Wrap(apperrors.ErrIO, err, "checksumming postings")
	}
	if got, want := h.Sum32(), binary.LittleEndian.Uint32(footer[4:8]); got != want {
		return apperrors.Newf(apperrors.ErrIO, "postings checksum mismatch: %08x != %08x", got, want)
	}
	return nil
}

// Dictionary returns the term dictionary in sorted order.
func (r *Reader) Dictionary() []DictEntry {
	return r.dict
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Header() SegmentHeader {
	return r.header
}

func (r *Reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
	}
	return r.file.Close()
}
