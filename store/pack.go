package store

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/forgectl/gitcore/format/idxfile"
	"github.com/forgectl/gitcore/format/packfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
)

// Pack is a single pack bundle backend: an idxfile.MemoryIndex for
// id->offset lookup, and the pack data file itself for content,
// resolved lazily (and memoized) through a packfile.Resolver.
type Pack struct {
	fs       billy.Filesystem
	dataPath string
	idx      *idxfile.MemoryIndex

	mu       sync.Mutex
	f        billy.File
	resolver *packfile.Resolver
}

// OpenPack builds a Pack backend from an already-decoded index and the
// path to its matching ".pack" data file. The data file is opened lazily,
// on first Get or Has that needs to read it.
func OpenPack(fs billy.Filesystem, dataPath string, idx *idxfile.MemoryIndex) *Pack {
	return &Pack{fs: fs, dataPath: dataPath, idx: idx}
}

// Has reports whether id is recorded in this pack's index. It never
// opens the pack data file.
func (p *Pack) Has(id hash.ID) (bool, error) {
	return p.idx.Contains(id), nil
}

// IDs returns every object id recorded in this pack's index.
func (p *Pack) IDs() ([]hash.ID, error) {
	ids := make([]hash.ID, 0, p.idx.Count())
	it := p.idx.Entries()
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// Get resolves id to its kind and full inflated content, following
// delta chains as needed. Results are cached for the lifetime of the
// Pack, so resolving the same base twice (a common case: many blobs
// deltified against the same ancestor) costs one inflate.
func (p *Pack) Get(id hash.ID) (object.Kind, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset, err := p.idx.FindOffset(id)
	if err != nil {
		return object.KindInvalid, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r, err := p.resolverLocked()
	if err != nil {
		return object.KindInvalid, nil, err
	}
	return r.Resolve(int64(offset))
}

// resolverLocked returns the pack's Resolver, building it (and opening
// the underlying data file) on first use. Callers must hold p.mu.
func (p *Pack) resolverLocked() (*packfile.Resolver, error) {
	if p.resolver != nil {
		return p.resolver, nil
	}

	f, err := p.fs.Open(p.dataPath)
	if err != nil {
		return nil, fmt.Errorf("store: opening pack %s: %w", p.dataPath, err)
	}
	p.f = f

	ra := &seekingReaderAt{f: f}
	entries, ids, err := p.loadEntries(ra)
	if err != nil {
		return nil, err
	}

	p.resolver = packfile.NewResolver(entries, ids)
	return p.resolver, nil
}

// loadEntries reads every entry (header and inflated body) in the
// index's offset order, and records each non-delta entry's id so
// REF_DELTA bases within this pack can be resolved by hash. Resolver
// itself only ever looks at these in-memory Entry values; ra is only
// needed here, to walk the pack once up front.
func (p *Pack) loadEntries(ra io.ReaderAt) ([]*packfile.Entry, map[int64]hash.ID, error) {
	it := p.idx.EntriesByOffset()
	var entries []*packfile.Entry
	ids := make(map[int64]hash.ID)

	for {
		ie, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		e, err := packfile.ReadEntryAt(ra, int64(ie.Offset))
		if err != nil {
			return nil, nil, fmt.Errorf("store: reading pack entry for %s: %w", ie.ID, err)
		}
		entries = append(entries, e)
		if !e.Type.IsDelta() {
			ids[e.Offset] = ie.ID
		}
	}
	return entries, ids, nil
}

// Close releases the pack data file, if it was ever opened.
func (p *Pack) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	return p.f.Close()
}

// seekingReaderAt adapts a billy.File (an io.ReadWriteSeeker) to
// io.ReaderAt by serializing seek+read pairs under a mutex. billy's
// Filesystem interface has no native pread, so this is the portable
// fallback every backend (osfs, memfs) supports equally.
type seekingReaderAt struct {
	mu sync.Mutex
	f  billy.File
}

func (s *seekingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	n := 0
	for n < len(p) {
		m, err := s.f.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
