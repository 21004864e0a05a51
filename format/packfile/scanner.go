package packfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/forgectl/gitcore/hash"
)

// Scanner provides sequential, single-pass access to a pack's entries.
// Each call to Next reads exactly one object header and inflates its
// body, matching the teacher's state-machine scanner but collapsed into
// a conventional "has next" iterator since gitcore resolves deltas in a
// separate pass rather than inline.
type Scanner struct {
	r        *bufio.Reader
	packhash hash.Hasher // running hash over everything read except the trailer
	offset   int64       // logical position in the pack stream

	header  Header
	objSeen uint32
}

// NewScanner wraps r, which must start at the beginning of a pack
// stream (the four-byte "PACK" signature).
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:        bufio.NewReaderSize(r, 32*1024),
		packhash: hash.NewHasher(),
	}
}

// sink feeds bytes consumed at the logical (not buffered-ahead) level
// into the scanner's running position and trailer hash.
func (s *Scanner) sink(p []byte) (int, error) {
	s.offset += int64(len(p))
	return s.packhash.Write(p)
}

// trackingReader wraps s.r so every byte it logically hands out (never
// bytes merely prefetched into bufio's internal buffer) is fed to w.
// Implementing ReadByte directly — rather than relying on io.TeeReader,
// which only has Read — matters here: compress/flate reads its input a
// byte at a time via io.ByteReader when the source provides one, which
// keeps zlib from over-reading past an entry's compressed data into the
// next entry's header.
type trackingReader struct {
	r *bufio.Reader
	w io.Writer
}

func (t trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		_, _ = t.w.Write(p[:n])
	}
	return n, err
}

func (t trackingReader) ReadByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err == nil {
		_, _ = t.w.Write([]byte{b})
	}
	return b, err
}

// ReadHeader parses the pack signature, version and object count. It
// must be called exactly once, before any call to Next.
func (s *Scanner) ReadHeader() (Header, error) {
	tr := trackingReader{r: s.r, w: writerFunc(s.sink)}

	var sig [4]byte
	if _, err := io.ReadFull(tr, sig[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	for i := range sig {
		if sig[i] != Signature[i] {
			return Header{}, ErrBadSignature
		}
	}

	var rest [8]byte
	if _, err := io.ReadFull(tr, rest[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	version := binary.BigEndian.Uint32(rest[0:4])
	if version != VersionSupported {
		return Header{}, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, version)
	}
	count := binary.BigEndian.Uint32(rest[4:8])

	s.header = Header{Version: version, ObjectsQty: count}
	return s.header, nil
}

// writerFunc adapts a plain func([]byte) (int, error) to io.Writer.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// Next reads one entry. It returns io.EOF once every object declared in
// the header has been read (the trailing checksum is handled separately
// by Finish).
func (s *Scanner) Next() (*Entry, error) {
	if s.objSeen >= s.header.ObjectsQty {
		return nil, io.EOF
	}
	s.objSeen++

	offset := s.offset
	crc := crc32.NewIEEE()
	mw := io.MultiWriter(writerFunc(s.sink), crc)
	tr := trackingReader{r: s.r, w: mw}

	typ, size, err := readTypeAndSize(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry header at offset %d: %w", ErrMalformed, offset, err)
	}

	e := &Entry{Offset: offset, Type: typ, Size: size}

	switch typ {
	case TypeOfsDelta:
		back, err := readOffsetDelta(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: reading ofs-delta base: %w", ErrMalformed, err)
		}
		e.OffsetBase = offset - back
	case TypeRefDelta:
		var id hash.ID
		if _, err := io.ReadFull(tr, id[:]); err != nil {
			return nil, fmt.Errorf("%w: reading ref-delta base: %w", ErrMalformed, err)
		}
		e.HashBase = id
	}

	zr, err := zlib.NewReader(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib init at offset %d: %w", ErrMalformed, offset, err)
	}
	content := make([]byte, size)
	if _, err := io.ReadFull(zr, content); err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: inflating entry at offset %d: %w", ErrMalformed, offset, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing zlib stream: %w", ErrMalformed, err)
	}

	e.Content = content
	e.CRC32 = crc.Sum32()
	return e, nil
}

// ReadEntryAt reads a single entry starting at offset, for random-access
// lookup once an id's byte offset is already known (from a pack index).
// Unlike Scanner, it tracks no running hash and has no notion of a
// header or object count: callers resolving objects by offset have
// already had the pack's trailer checksum verified once, at index time.
func ReadEntryAt(r io.ReaderAt, offset int64) (*Entry, error) {
	sr := io.NewSectionReader(r, offset, 1<<40)
	br := bufio.NewReaderSize(sr, 4096)
	crc := crc32.NewIEEE()
	tr := trackingReader{r: br, w: crc}

	typ, size, err := readTypeAndSize(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry header at offset %d: %w", ErrMalformed, offset, err)
	}

	e := &Entry{Offset: offset, Type: typ, Size: size}

	switch typ {
	case TypeOfsDelta:
		back, err := readOffsetDelta(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: reading ofs-delta base: %w", ErrMalformed, err)
		}
		e.OffsetBase = offset - back
	case TypeRefDelta:
		var id hash.ID
		if _, err := io.ReadFull(tr, id[:]); err != nil {
			return nil, fmt.Errorf("%w: reading ref-delta base: %w", ErrMalformed, err)
		}
		e.HashBase = id
	}

	zr, err := zlib.NewReader(tr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib init at offset %d: %w", ErrMalformed, offset, err)
	}
	content := make([]byte, size)
	if _, err := io.ReadFull(zr, content); err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%w: inflating entry at offset %d: %w", ErrMalformed, offset, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing zlib stream: %w", ErrMalformed, err)
	}

	e.Content = content
	e.CRC32 = crc.Sum32()
	return e, nil
}

// Finish reads and verifies the 20-byte trailing pack checksum. It must
// be called after Next has returned io.EOF.
func (s *Scanner) Finish() (hash.ID, error) {
	sum := s.packhash.Sum()

	var trailer hash.ID
	if _, err := io.ReadFull(s.r, trailer[:]); err != nil {
		return hash.Zero, fmt.Errorf("%w: reading trailer: %w", ErrMalformed, err)
	}
	if trailer != sum {
		return hash.Zero, fmt.Errorf("%w: pack trailer %s, computed %s", ErrChecksumMismatch, trailer, sum)
	}
	return trailer, nil
}
