package packfile

import (
	"fmt"
	"io"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
)

// Resolver turns the raw entries produced by Scanner into content-
// addressed objects, resolving OFS_DELTA/REF_DELTA chains against
// their bases. It requires the whole pack's entries up front (unlike
// Scanner, which is single-pass) since a delta's base may appear later
// in the pack than the delta itself.
type Resolver struct {
	byOffset map[int64]*Entry
	byHash   map[hash.ID]*Entry

	cache map[int64]resolved // memoizes fully-resolved (kind, content) per offset
}

type resolved struct {
	kind        object.Kind
	content     []byte
	id          hash.ID
	chainLength int // 0 for a non-delta object, else 1 + its base's chainLength
}

// NewResolver indexes entries by both pack offset (for OFS_DELTA) and,
// once each non-delta object's id is known, by id (for REF_DELTA). ids
// maps every entry's offset to its final object id; base resolution
// for REF_DELTA looks up the base's offset via this map.
func NewResolver(entries []*Entry, ids map[int64]hash.ID) *Resolver {
	r := &Resolver{
		byOffset: make(map[int64]*Entry, len(entries)),
		byHash:   make(map[hash.ID]*Entry, len(entries)),
		cache:    make(map[int64]resolved, len(entries)),
	}
	for _, e := range entries {
		r.byOffset[e.Offset] = e
		if id, ok := ids[e.Offset]; ok {
			r.byHash[id] = e
		}
	}
	return r
}

// Resolve returns the fully-materialized kind and content of the entry
// at offset, recursively applying any delta chain.
func (r *Resolver) Resolve(offset int64) (object.Kind, []byte, error) {
	res, err := r.resolve(offset, 0)
	if err != nil {
		return object.KindInvalid, nil, err
	}
	return res.kind, res.content, nil
}

// ResolveID is Resolve plus the computed object id, for callers building
// an index from a pack that doesn't have one yet: every entry's id must
// be known before REF_DELTA bases elsewhere in the same pack can be
// looked up by hash, so an indexing pass resolves in offset order and
// feeds each id back via a fresh Resolver (or, for single-pass use,
// simply calls this once per entry in dependency order).
func (r *Resolver) ResolveID(offset int64) (hash.ID, object.Kind, []byte, error) {
	res, err := r.resolve(offset, 0)
	if err != nil {
		return hash.Zero, object.KindInvalid, nil, err
	}
	return res.id, res.kind, res.content, nil
}

const maxDeltaChainDepth = 50

func (r *Resolver) resolve(offset int64, depth int) (resolved, error) {
	if depth > maxDeltaChainDepth {
		return resolved{}, fmt.Errorf("packfile: delta chain exceeds %d links at offset %d", maxDeltaChainDepth, offset)
	}
	if res, ok := r.cache[offset]; ok {
		return res, nil
	}

	e, ok := r.byOffset[offset]
	if !ok {
		return resolved{}, fmt.Errorf("packfile: no entry at offset %d", offset)
	}

	var res resolved
	switch e.Type {
	case TypeOfsDelta:
		base, err := r.resolve(e.OffsetBase, depth+1)
		if err != nil {
			return resolved{}, err
		}
		content, err := ApplyDelta(base.content, e.Content)
		if err != nil {
			return resolved{}, fmt.Errorf("packfile: resolving ofs-delta at offset %d: %w", offset, err)
		}
		res = resolved{kind: base.kind, content: content, chainLength: base.chainLength + 1}

	case TypeRefDelta:
		baseEntry, ok := r.byHash[e.HashBase]
		if !ok {
			return resolved{}, fmt.Errorf("packfile: ref-delta base %s not found", e.HashBase)
		}
		base, err := r.resolve(baseEntry.Offset, depth+1)
		if err != nil {
			return resolved{}, err
		}
		content, err := ApplyDelta(base.content, e.Content)
		if err != nil {
			return resolved{}, fmt.Errorf("packfile: resolving ref-delta at offset %d: %w", offset, err)
		}
		res = resolved{kind: base.kind, content: content, chainLength: base.chainLength + 1}

	default:
		res = resolved{kind: e.Type.Kind(), content: e.Content}
	}

	res.id = hashObject(res.kind, res.content)

	r.cache[offset] = res
	if _, ok := r.byHash[res.id]; !ok {
		r.byHash[res.id] = e
	}
	return res, nil
}

func hashObject(kind object.Kind, content []byte) hash.ID {
	h := hash.NewHasher()
	h.Write(kind.Bytes())
	h.Write([]byte{' '})
	h.Write([]byte(fmt.Sprintf("%d", len(content))))
	h.Write([]byte{0})
	h.Write(content)
	return h.Sum()
}

// VerifyMode selects the memory/time tradeoff Verify makes when walking
// every object in a pack.
type VerifyMode int

const (
	// VerifyLessMemory discards the decode cache after each top-level
	// object, re-resolving shared delta bases from scratch when multiple
	// objects depend on them. Bounded memory, more CPU.
	VerifyLessMemory VerifyMode = iota
	// VerifyLessTime keeps every resolved object's content in the decode
	// cache for the lifetime of the verify pass. Bounded CPU, more memory.
	VerifyLessTime
)

// VerifyStats summarizes a full walk of a pack's objects.
type VerifyStats struct {
	ObjectCount   int
	CommitCount   int
	TreeCount     int
	BlobCount     int
	TagCount      int
	DeltaCount    int
	TotalInflated int64

	// DeltaChainHistogram maps a chain length (0 for a non-delta object) to
	// the number of objects resolved at that depth.
	DeltaChainHistogram map[int]int
	// LargestObjectSize and LargestObjectID describe the biggest inflated
	// object seen.
	LargestObjectSize int64
	LargestObjectID   hash.ID
	// LargestChainLength and LargestChainID describe the object sitting at
	// the foot of the longest delta chain walked.
	LargestChainLength int
	LargestChainID     hash.ID
}

func (s *VerifyStats) record(e *Entry, res resolved) {
	if e.Type.IsDelta() {
		s.DeltaCount++
	}
	s.TotalInflated += int64(len(res.content))
	s.DeltaChainHistogram[res.chainLength]++

	switch res.kind {
	case object.KindCommit:
		s.CommitCount++
	case object.KindTree:
		s.TreeCount++
	case object.KindBlob:
		s.BlobCount++
	case object.KindTag:
		s.TagCount++
	}

	if size := int64(len(res.content)); size > s.LargestObjectSize {
		s.LargestObjectSize = size
		s.LargestObjectID = res.id
	}
	if res.chainLength > s.LargestChainLength {
		s.LargestChainLength = res.chainLength
		s.LargestChainID = res.id
	}
}

// Verify scans every entry in r (a fresh pack stream), resolves every
// delta chain, and returns aggregate statistics. It's the structural
// analogue of `git index-pack --verify`: every base reference must
// resolve and every entry's computed id must be internally consistent.
//
// VerifyLessMemory walks entries in pack order, clearing the decode cache
// as soon as each object is recorded, re-decoding a shared base from
// scratch for every object that depends on it.
// VerifyLessTime instead builds the delta tree implied by the pack (every
// OFS_DELTA/REF_DELTA entry linked under the base it names) and walks it
// depth-first from each non-delta root, so each base is decoded once; every
// resolved object stays in the cache until the pass ends. Both
// algorithms resolve through the same Resolver.resolve, so they produce
// identical (id, kind, chain-length) triples for every entry regardless
// of traversal order.
func Verify(r io.Reader, mode VerifyMode) (VerifyStats, error) {
	s := NewScanner(r)
	if _, err := s.ReadHeader(); err != nil {
		return VerifyStats{}, err
	}

	var entries []*Entry
	for {
		e, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return VerifyStats{}, err
		}
		entries = append(entries, e)
	}
	if _, err := s.Finish(); err != nil {
		return VerifyStats{}, err
	}

	resolver := NewResolver(entries, nil)
	stats := VerifyStats{
		ObjectCount:         len(entries),
		DeltaChainHistogram: make(map[int]int),
	}

	switch mode {
	case VerifyLessTime:
		if err := verifyDepthFirst(resolver, entries, &stats); err != nil {
			return stats, err
		}
	default:
		for _, e := range entries {
			res, err := resolver.resolve(e.Offset, 0)
			if err != nil {
				return stats, err
			}
			stats.record(e, res)
			clear(resolver.cache)
		}
	}

	return stats, nil
}

// verifyDepthFirst implements VerifyLessTime: it groups every delta entry
// under the base it names (OFS_DELTA by offset, immediately known;
// REF_DELTA by hash, known only once the base itself has been resolved),
// then walks each non-delta root and its descendants depth-first,
// resolving a base exactly once before visiting every entry delta-encoded
// against it.
func verifyDepthFirst(resolver *Resolver, entries []*Entry, stats *VerifyStats) error {
	offsetChildren := make(map[int64][]*Entry)
	hashChildren := make(map[hash.ID][]*Entry)
	var roots []*Entry

	for _, e := range entries {
		switch e.Type {
		case TypeOfsDelta:
			offsetChildren[e.OffsetBase] = append(offsetChildren[e.OffsetBase], e)
		case TypeRefDelta:
			hashChildren[e.HashBase] = append(hashChildren[e.HashBase], e)
		default:
			roots = append(roots, e)
		}
	}

	var visit func(e *Entry) error
	visit = func(e *Entry) error {
		res, err := resolver.resolve(e.Offset, 0)
		if err != nil {
			return err
		}
		stats.record(e, res)

		for _, child := range offsetChildren[e.Offset] {
			if err := visit(child); err != nil {
				return err
			}
		}
		for _, child := range hashChildren[res.id] {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return err
		}
	}

	if len(resolver.cache) != len(entries) {
		return fmt.Errorf("packfile: %d entries unreachable from any non-delta root", len(entries)-len(resolver.cache))
	}
	return nil
}
