package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/srcindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/srcindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/srcindex/pkg/fileutil"
)

// MagicBytes identifies a valid .spdx index file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32

	FileName = "index.spdx"
)

// Header flags.
const (
	FlagZstd uint32 = 1 << iota
)

// SegmentHeader is the 64-byte header written at the start of every index file.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	CreatedAt  int64
	Flags      uint32
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint32(b[56:60], h.Flags)
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(b[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[48:56])),
		Flags:      binary.LittleEndian.Uint32(b[56:60]),
	}
}

// DictEntry maps a term to its postings block offset and length, its
// document frequency and its total occurrence count. A term that is not
// valid UTF-8 is also kept byte-exact in Raw.
type DictEntry struct {
	Term       string `json:"t"`
	Raw        []byte `json:"r,omitempty"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
	Count      int    `json:"c"`
}

// Writer serialises TermEntry slices into an index file.
type Writer struct {
	dataDir  string
	compress bool
	now      func() time.Time
}

type WriterOption func(*Writer)

// WithoutCompression stores postings blocks uncompressed.
func WithoutCompression() WriterOption {
	return func(w *Writer) { w.compress = false }
}

// WithClock fixes the creation time stamped into the header.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a Writer that writes into the given directory.
func NewWriter(dataDir string, opts ...WriterOption) *Writer {
	w := &Writer{dataDir: dataDir, compress: true, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write atomically creates dataDir/index.spdx containing the given term
// entries, replacing any previous file. Entries must be sorted by term. It
// writes to a .tmp file first, syncs, and renames on success.
func (w *Writer) Write(entries []index.TermEntry, docCount uint32) (string, error) {
	finalPath := filepath.Join(w.dataDir, FileName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "creating index directory")
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "creating temp index file")
	}
	defer f.Close()

	var enc *zstd.Encoder
	header := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(len(entries)),
		DocCount:  docCount,
		CreatedAt: w.now().Unix(),
	}
	if w.compress {
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return "", fmt.Errorf("creating zstd encoder: %w", err)
		}
		defer enc.Close()
		header.Flags |= FlagZstd
	}

	if _, err := f.Write(header.encode()); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "writing header")
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	postCRC := crc32.NewIEEE()
	var buf []byte
	for i, entry := range entries {
		if i > 0 && entries[i-1].Term >= entry.Term {
			return "", apperrors.Newf(apperrors.ErrInvariant, "terms not sorted at %q", entry.Term)
		}
		buf = encodePostings(buf[:0], entry.Postings)
		block := buf
		if enc != nil {
			block = enc.EncodeAll(buf, nil)
		}
		if _, err := f.Write(block); err != nil {
			return "", apperrors.Wrap(apperrors.ErrIO, err, "writing postings for term %q", entry.Term)
		}
		postCRC.Write(block)
		de := DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(block),
			DocFreq:    entry.Postings.DocFreq(),
			Count:      len(entry.Postings),
		}
		if !utf8.ValidString(entry.Term) {
			de.Raw = []byte(entry.Term)
		}
		dict = append(dict, de)
		offset += int64(len(block))
	}

	postingsSize := offset - postingsStart
	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "writing dictionary")
	}
	dictSize := int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], postCRC.Sum32())
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "writing footer")
	}

	header.DictOffset = dictStart
	header.DictSize = dictSize
	header.PostOffset = postingsStart
	header.PostSize = postingsSize
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "updating header")
	}
	if err := f.Sync(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "syncing index file")
	}
	if err := f.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "closing index file")
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", apperrors.Wrap(apperrors.ErrIO, err, "renaming index file")
	}
	if err := fileutil.SyncDir(w.dataDir); err != nil {
		return "", err
	}
	return finalPath, nil
}

// encodePostings appends a postings block to dst: the posting count, then
// per posting the document delta and the position, delta-coded against the
// previous position when the document repeats.
func encodePostings(dst []byte, postings index.PostingList) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(postings)))
	var prev index.Posting
	for i, p := range postings {
		if i == 0 {
			dst = binary.AppendUvarint(dst, uint64(p.DocID))
			dst = binary.AppendUvarint(dst, uint64(p.Position))
		} else {
			dDoc := p.DocID - prev.DocID
			dst = binary.AppendUvarint(dst, uint64(dDoc))
			if dDoc == 0 {
				dst = binary.AppendUvarint(dst, uint64(p.Position-prev.Position))
			} else {
				dst = binary.AppendUvarint(dst, uint64(p.Position))
			}
		}
		prev = p
	}
	return dst
}

func decodePostings(src []byte) (index.PostingList, error) {
	n, k := binary.Uvarint(src)
	if k <= 0 {
		return nil, fmt.Errorf("bad posting count")
	}
	src = src[k:]
	if n > uint64(len(src)) {
		return nil, fmt.Errorf("posting count %d exceeds block", n)
	}
	out := make(index.PostingList, 0, n)
	var prev index.Posting
	for i := uint64(0); i < n; i++ {
		d, k := binary.Uvarint(src)
		if k <= 0 {
			return nil, fmt.Errorf("truncated posting %d", i)
		}
		src = src[k:]
		v, k := binary.Uvarint(src)
		if k <= 0 {
			return nil, fmt.Errorf("truncated posting %d", i)
		}
		src = src[k:]
		var p index.Posting
		switch {
		case i == 0:
			p = index.Posting{DocID: uint32(d), Position: uint32(v)}
		case d == 0:
			p = index.Posting{DocID: prev.DocID, Position: prev.Position + uint32(v)}
		default:
			p = index.Posting{DocID: prev.DocID + uint32(d), Position: uint32(v)}
		}
		out = append(out, p)
		prev = p
	}
	if len(src) != 0 {
		return nil, fmt.Errorf("%d trailing bytes in postings block", len(src))
	}
	return out, nil
}
