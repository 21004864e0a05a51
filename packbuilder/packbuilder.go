package packbuilder

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/forgectl/gitcore/format/packfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
	"github.com/forgectl/gitcore/store"
)

// ChunkID identifies one contiguous slice of the count list handed to a
// single worker, letting the serializer emit chunks in the order the
// input was given even though workers finish out of order.
type ChunkID int

// Options configures the worker pool. A zero Options is valid and
// chooses sane defaults via optimizeChunkSizeAndThreadLimit.
type Options struct {
	// ChunkSize is the desired number of objects per worker chunk
	// before accounting for ThreadLimit and the total object count.
	ChunkSize int
	// ThreadLimit caps the number of concurrent workers; 0 means use
	// every available core.
	ThreadLimit int
}

// Outcome tallies how each object in the pack was produced.
type Outcome struct {
	DecodedAndRecompressedObjects int
	ObjectsCopiedFromPack         int
}

func (o *Outcome) aggregate(other Outcome) {
	o.DecodedAndRecompressedObjects += other.DecodedAndRecompressedObjects
	o.ObjectsCopiedFromPack += other.ObjectsCopiedFromPack
}

// optimizeChunkSizeAndThreadLimit derives a chunk size and thread count
// from the total item count, the same two-bucket heuristic gitoxide's
// parallel::optimize_chunk_size_and_thread_limit uses: aim for at least
// two chunks per thread, clamped to [1, 1000] items per chunk. The
// caller's desired chunk size is only consulted when numItems is 0 (the
// count is unknown up front); otherwise it's fully derived from the
// total, same as the original.
func optimizeChunkSizeAndThreadLimit(numItems, desiredChunkSize, threadLimit int) (chunkSize, threads int) {
	const (
		desiredChunksPerThread = 2
		lowerChunkSize         = 50
		upperChunkSize         = 1000
	)
	available := threadLimit
	if available <= 0 {
		available = runtime.GOMAXPROCS(0)
	}
	if available < 1 {
		available = 1
	}
	if numItems == 0 {
		switch {
		case available == 1:
			chunkSize = desiredChunkSize
		case desiredChunkSize < lowerChunkSize:
			chunkSize = lowerChunkSize
		default:
			chunkSize = desiredChunkSize
			if chunkSize > upperChunkSize {
				chunkSize = upperChunkSize
			}
		}
		return chunkSize, available
	}

	chunkSize = numItems / (available * desiredChunksPerThread)
	if chunkSize < 1 {
		chunkSize = 1
	}
	if chunkSize > upperChunkSize {
		chunkSize = upperChunkSize
	}

	numChunks := numItems / chunkSize
	if numChunks <= available {
		threads = numChunks / desiredChunksPerThread
		if threads < 1 {
			threads = 1
		}
	} else {
		threads = available
	}
	return chunkSize, threads
}

// entryChunk is one worker's output: the objects it produced, in the
// same order as the counts it was given, tagged with the ChunkID that
// orders it against every other worker's output.
type entryChunk struct {
	id      ChunkID
	objects []packfile.ObjectToWrite
	stats   Outcome
}

// Build runs the count -> entry -> bytes pipeline: counts is split into
// chunks, each chunk is turned into pack entries by a bounded pool of
// concurrent workers (reading object content from src), and a single
// serializer goroutine drains completed chunks off a bounded result
// channel, writing each one into w as soon as it's next in input order.
// Workers block pushing onto that channel once it's full, so a slow
// writer applies ordinary channel back pressure to the whole pool the
// same way gitoxide's Stepwise iterator does — at no point does the
// whole pack's decoded content sit in memory at once.
func Build(ctx context.Context, w io.Writer, src store.Store, counts []Count, opts Options) (hash.ID, Outcome, error) {
	chunkSize, threads := optimizeChunkSizeAndThreadLimit(len(counts), opts.ChunkSize, opts.ThreadLimit)

	var chunks [][]Count
	for start := 0; start < len(counts); start += chunkSize {
		end := start + chunkSize
		if end > len(counts) {
			end = len(counts)
		}
		chunks = append(chunks, counts[start:end])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(threads))

	// resultsCh is the only buffering between decoding and serializing:
	// one slot per worker thread. A worker that finishes a chunk blocks
	// on this send until the serializer loop below has drained room for
	// it, rather than every worker racing ahead to fill an unbounded
	// slice before a single byte reaches w.
	resultsCh := make(chan entryChunk, threads)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			out, stats, err := buildChunk(src, chunk)
			if err != nil {
				return err
			}
			select {
			case resultsCh <- entryChunk{id: ChunkID(i), objects: out, stats: stats}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	go func() {
		_ = g.Wait()
		close(resultsCh)
	}()

	enc := packfile.NewEncoder(w)
	if err := enc.WriteHeader(uint32(len(counts))); err != nil {
		cancel()
		drain(resultsCh)
		return hash.Zero, Outcome{}, err
	}

	// The serializer blocks on the next expected ChunkId: a chunk that
	// arrives out of order waits in pending until every chunk before it
	// has been written, so entries reach w in the same order counts were
	// given regardless of which worker finished first.
	var total Outcome
	pending := make(map[ChunkID]entryChunk, threads)
	next := ChunkID(0)
	var writeErr error

	for r := range resultsCh {
		pending[r.id] = r
		if writeErr != nil {
			continue
		}
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			total.aggregate(ready.stats)
			for _, o := range ready.objects {
				if _, err := enc.WriteObject(o); err != nil {
					writeErr = err
					cancel()
					break
				}
			}
			next++
			if writeErr != nil {
				break
			}
		}
	}

	if err := g.Wait(); err != nil {
		return hash.Zero, Outcome{}, err
	}
	if writeErr != nil {
		return hash.Zero, Outcome{}, writeErr
	}

	id, err := enc.Finish()
	if err != nil {
		return hash.Zero, Outcome{}, err
	}
	return id, total, nil
}

// drain unblocks any worker still waiting to send on ch after an early
// return; cancel must already have been called so gctx.Done() lets every
// blocked send return instead of waiting for a reader that no longer comes.
func drain(ch <-chan entryChunk) {
	for range ch {
	}
}

// buildChunk converts one chunk of counts into pack entries. Every
// object is currently written whole (delta selection against candidate
// bases is future work; see DESIGN.md); the stats still distinguish
// "would have been copied from an existing pack entry" bookkeeping so a
// future delta-aware pass can slot in without changing Build's shape.
func buildChunk(src store.Store, chunk []Count) ([]packfile.ObjectToWrite, Outcome, error) {
	out := make([]packfile.ObjectToWrite, 0, len(chunk))
	var stats Outcome
	for _, c := range chunk {
		kind, content, err := src.Get(c.ID)
		if err != nil {
			return nil, Outcome{}, fmt.Errorf("packbuilder: reading %s: %w", c.ID, err)
		}
		out = append(out, packfile.ObjectToWrite{Type: typeForKind(kind), Content: content})
		stats.DecodedAndRecompressedObjects++
	}
	return out, stats, nil
}

func typeForKind(k object.Kind) packfile.Type {
	switch k {
	case object.KindCommit:
		return packfile.TypeCommit
	case object.KindTree:
		return packfile.TypeTree
	case object.KindBlob:
		return packfile.TypeBlob
	case object.KindTag:
		return packfile.TypeTag
	default:
		panic("packbuilder: unknown object kind")
	}
}
