// Package idxfile implements git's pack index v2 format: a 256-entry
// fan-out table over the first byte of each object id, followed by
// sorted id, CRC32 and offset tables, letting a reader locate any
// object in a pack file in O(log n) without scanning the pack itself.
package idxfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/forgectl/gitcore/hash"
)

const (
	HeaderSize = 8
	FanoutSize = 256 * 4
	CRCSize    = 4
	Off32Size  = 4
	Off64Size  = 8

	is64BitsMask = uint64(1) << 31

	// VersionSupported is the only pack index version this package reads
	// or writes.
	VersionSupported = 2
)

// Header is the magic signature at the start of a version 2+ idx file.
// Version 1 files have no magic and are not supported.
var Header = []byte{255, 't', 'O', 'c'}

// ErrInvalidIndex is returned for any structurally malformed idx file.
var ErrInvalidIndex = errors.New("idxfile: invalid index")

// Entry describes one object recorded in the index: its id, the CRC32 of
// its (possibly delta-compressed) on-disk representation, and its byte
// offset within the corresponding pack.
type Entry struct {
	ID     hash.ID
	Offset uint64
	CRC32  uint32
}

// EntryIter iterates index entries, either in id order (as stored) or in
// pack-offset order.
type EntryIter interface {
	Next() (*Entry, error)
}

type sliceIter struct {
	entries []Entry
	pos     int
}

func (it *sliceIter) Next() (*Entry, error) {
	if it.pos >= len(it.entries) {
		return nil, io.EOF
	}
	e := it.entries[it.pos]
	it.pos++
	return &e, nil
}

// MemoryIndex is a fully-decoded, in-memory pack index: every table is
// held as a Go slice, trading memory for simplicity and fast iteration.
// It implements both Index construction (via Builder) and Index lookup.
type MemoryIndex struct {
	entries          []Entry // sorted by ID
	fanout           [256]uint32
	PackfileChecksum hash.ID
	IndexChecksum    hash.ID
}

// Count returns the number of objects recorded in the index.
func (idx *MemoryIndex) Count() int { return len(idx.entries) }

// Contains reports whether id is recorded in the index.
func (idx *MemoryIndex) Contains(id hash.ID) bool {
	_, ok := idx.find(id)
	return ok
}

// FindOffset returns the pack offset of id, or an error if it is not
// present.
func (idx *MemoryIndex) FindOffset(id hash.ID) (uint64, error) {
	pos, ok := idx.find(id)
	if !ok {
		return 0, fmt.Errorf("idxfile: object %s not found", id)
	}
	return idx.entries[pos].Offset, nil
}

// FindCRC32 returns the recorded CRC32 of id's on-disk representation.
func (idx *MemoryIndex) FindCRC32(id hash.ID) (uint32, error) {
	pos, ok := idx.find(id)
	if !ok {
		return 0, fmt.Errorf("idxfile: object %s not found", id)
	}
	return idx.entries[pos].CRC32, nil
}

// FindID performs the reverse lookup: the object id stored at offset, by
// linear scan. Packfile readers that need this repeatedly should build
// their own offset->id map from Entries() once instead of calling this
// in a loop.
func (idx *MemoryIndex) FindID(offset uint64) (hash.ID, error) {
	for _, e := range idx.entries {
		if e.Offset == offset {
			return e.ID, nil
		}
	}
	return hash.Zero, fmt.Errorf("idxfile: no object at offset %d", offset)
}

func (idx *MemoryIndex) find(id hash.ID) (int, bool) {
	first := int(id[0])
	lo := 0
	if first > 0 {
		lo = int(idx.fanout[first-1])
	}
	hi := int(idx.fanout[first])

	pos := lo + sort.Search(hi-lo, func(i int) bool {
		return bytes.Compare(idx.entries[lo+i].ID[:], id[:]) >= 0
	})
	if pos < hi && idx.entries[pos].ID == id {
		return pos, true
	}
	return 0, false
}

// Entries returns an iterator over all entries in id-sorted order.
func (idx *MemoryIndex) Entries() EntryIter {
	return &sliceIter{entries: idx.entries}
}

// EntriesByOffset returns an iterator over all entries sorted by pack
// offset, the order a packfile reader walks to reconstruct objects
// without seeking backwards past already-read delta bases.
func (idx *MemoryIndex) EntriesByOffset() EntryIter {
	byOffset := make([]Entry, len(idx.entries))
	copy(byOffset, idx.entries)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].Offset < byOffset[j].Offset })
	return &sliceIter{entries: byOffset}
}

// Builder accumulates (id, offset, crc32) triples discovered while
// scanning a pack file and produces a MemoryIndex sorted into the
// layout the v2 format requires.
type Builder struct {
	entries          []Entry
	PackfileChecksum hash.ID
}

// Add records one object. Order of calls does not matter; Build sorts.
func (b *Builder) Add(id hash.ID, offset uint64, crc32 uint32) {
	b.entries = append(b.entries, Entry{ID: id, Offset: offset, CRC32: crc32})
}

// Build sorts the accumulated entries by id and computes the fan-out
// table, returning a ready-to-encode MemoryIndex.
func (b *Builder) Build() *MemoryIndex {
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].ID[:], entries[j].ID[:]) < 0
	})

	idx := &MemoryIndex{entries: entries, PackfileChecksum: b.PackfileChecksum}
	last := -1
	for i, e := range entries {
		fan := int(e.ID[0])
		for j := last + 1; j < fan; j++ {
			idx.fanout[j] = uint32(i)
		}
		idx.fanout[fan] = uint32(i + 1)
		last = fan
	}
	for j := last + 1; j < 256; j++ {
		idx.fanout[j] = uint32(len(entries))
	}
	return idx
}

// Decode reads a complete v2 idx file from r into memory.
func Decode(r io.Reader) (*MemoryIndex, error) {
	h := hash.NewHasher()
	tr := io.TeeReader(r, h)

	var magic [4]byte
	if _, err := io.ReadFull(tr, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	if !bytes.Equal(magic[:], Header) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidIndex)
	}

	var versionBuf [4]byte
	if _, err := io.ReadFull(tr, versionBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	if v := binary.BigEndian.Uint32(versionBuf[:]); v != VersionSupported {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidIndex, v)
	}

	var fanoutBuf [FanoutSize]byte
	if _, err := io.ReadFull(tr, fanoutBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIndex, err)
	}
	var fanout [256]uint32
	for i := 0; i < 256; i++ {
		fanout[i] = binary.BigEndian.Uint32(fanoutBuf[i*4 : i*4+4])
	}
	count := int(fanout[255])

	ids := make([]hash.ID, count)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(tr, ids[i][:]); err != nil {
			return nil, fmt.Errorf("%w: reading ids: %w", ErrInvalidIndex, err)
		}
	}

	crcs := make([]uint32, count)
	var crcBuf [CRCSize]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(tr, crcBuf[:]); err != nil {
			return nil, fmt.Errorf("%w: reading crc32: %w", ErrInvalidIndex, err)
		}
		crcs[i] = binary.BigEndian.Uint32(crcBuf[:])
	}

	off32 := make([]uint32, count)
	var off32Buf [Off32Size]byte
	var numLarge int
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(tr, off32Buf[:]); err != nil {
			return nil, fmt.Errorf("%w: reading offsets: %w", ErrInvalidIndex, err)
		}
		off32[i] = binary.BigEndian.Uint32(off32Buf[:])
		if uint64(off32[i])&is64BitsMask != 0 {
			numLarge++
		}
	}

	off64 := make([]uint64, numLarge)
	var off64Buf [Off64Size]byte
	for i := 0; i < numLarge; i++ {
		if _, err := io.ReadFull(tr, off64Buf[:]); err != nil {
			return nil, fmt.Errorf("%w: reading 64-bit offsets: %w", ErrInvalidIndex, err)
		}
		off64[i] = binary.BigEndian.Uint64(off64Buf[:])
	}

	var packChecksum hash.ID
	if _, err := io.ReadFull(tr, packChecksum[:]); err != nil {
		return nil, fmt.Errorf("%w: reading pack checksum: %w", ErrInvalidIndex, err)
	}

	computed := h.Sum()

	var idxChecksum hash.ID
	// The trailing checksum is computed over everything before it, so it
	// must be read directly from r, bypassing the tee.
	if _, err := io.ReadFull(r, idxChecksum[:]); err != nil {
		return nil, fmt.Errorf("%w: reading index checksum: %w", ErrInvalidIndex, err)
	}
	if computed != idxChecksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidIndex)
	}

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		offset := uint64(off32[i])
		if offset&is64BitsMask != 0 {
			offset = off64[offset&^is64BitsMask]
		}
		entries[i] = Entry{ID: ids[i], Offset: offset, CRC32: crcs[i]}
	}

	return &MemoryIndex{entries: entries, fanout: fanout, PackfileChecksum: packChecksum, IndexChecksum: idxChecksum}, nil
}

// Encode writes idx in v2 format to w, returning the number of bytes
// written. The trailing index checksum is computed over everything
// written before it.
func Encode(w io.Writer, idx *MemoryIndex) (int, error) {
	h := hash.NewHasher()
	mw := io.MultiWriter(w, h)

	n := 0
	write := func(p []byte) error {
		wn, err := mw.Write(p)
		n += wn
		return err
	}

	if err := write(Header); err != nil {
		return n, err
	}
	var versionBuf [4]byte
	binary.BigEndian.PutUint32(versionBuf[:], VersionSupported)
	if err := write(versionBuf[:]); err != nil {
		return n, err
	}

	var fanoutBuf [FanoutSize]byte
	for i := 0; i < 256; i++ {
		binary.BigEndian.PutUint32(fanoutBuf[i*4:i*4+4], idx.fanout[i])
	}
	if err := write(fanoutBuf[:]); err != nil {
		return n, err
	}

	for _, e := range idx.entries {
		if err := write(e.ID[:]); err != nil {
			return n, err
		}
	}

	var crcBuf [CRCSize]byte
	for _, e := range idx.entries {
		binary.BigEndian.PutUint32(crcBuf[:], e.CRC32)
		if err := write(crcBuf[:]); err != nil {
			return n, err
		}
	}

	var large []uint64
	var off32Buf [Off32Size]byte
	for _, e := range idx.entries {
		if e.Offset > 0x7fffffff {
			binary.BigEndian.PutUint32(off32Buf[:], uint32(is64BitsMask|uint64(len(large))))
			large = append(large, e.Offset)
		} else {
			binary.BigEndian.PutUint32(off32Buf[:], uint32(e.Offset))
		}
		if err := write(off32Buf[:]); err != nil {
			return n, err
		}
	}

	var off64Buf [Off64Size]byte
	for _, o := range large {
		binary.BigEndian.PutUint64(off64Buf[:], o)
		if err := write(off64Buf[:]); err != nil {
			return n, err
		}
	}

	if err := write(idx.PackfileChecksum[:]); err != nil {
		return n, err
	}

	sum := h.Sum()
	idx.IndexChecksum = sum
	wn, err := w.Write(sum[:])
	n += wn
	return n, err
}
