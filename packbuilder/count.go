// Package packbuilder implements the count -> entry -> bytes pipeline
// that turns a set of tip object ids into a pack: walking reachable
// history and trees to build the object list, converting each object
// into a packfile.ObjectToWrite (deciding delta vs whole-object output),
// and serializing the result in chunk order from a parallel worker pool.
package packbuilder

import (
	"fmt"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
	"github.com/forgectl/gitcore/store"
)

// Count is one object destined for the pack: just enough information
// (its id and kind) to schedule the entry stage, mirroring gitoxide's
// output::Count, which defers reading object content until a worker
// actually needs it.
type Count struct {
	ID   hash.ID
	Kind object.Kind
}

// WalkTips performs a full reachability walk from tips (commits,
// annotated tags, or trees/blobs named directly) and returns one Count
// per distinct object reached: commits via their parents, trees
// (recursively) and the blobs/trees they reference, and tags via their
// target. haves, if non-empty, is a set of ids assumed already present
// on the receiving end (a `git fetch`-style "have" set): every object
// reachable from a have is excluded, even when a tip reaches it too,
// matching how a thin pack's object list is derived.
func WalkTips(src store.Store, tips []hash.ID, haves []hash.ID) ([]Count, error) {
	w := &walker{src: src, seen: make(map[hash.ID]bool)}

	// Mark everything reachable from haves as seen, but not recorded: a
	// walk from the real tips then stops as soon as it reaches anything
	// already reachable from a have, the same boundary `git pack-objects`
	// draws between wants and haves.
	for _, h := range haves {
		if err := w.walkRecording(h, false); err != nil {
			return nil, err
		}
	}

	for _, tip := range tips {
		if err := w.walkRecording(tip, true); err != nil {
			return nil, err
		}
	}
	return w.counts, nil
}

type walker struct {
	src    store.Store
	seen   map[hash.ID]bool
	counts []Count
}

func (w *walker) walkRecording(id hash.ID, record bool) error {
	if id.IsZero() || w.seen[id] {
		return nil
	}
	w.seen[id] = true

	kind, content, err := w.src.Get(id)
	if err != nil {
		return fmt.Errorf("packbuilder: walking %s: %w", id, err)
	}
	if record {
		w.counts = append(w.counts, Count{ID: id, Kind: kind})
	}

	switch kind {
	case object.KindCommit:
		c, err := object.ParseCommit(content)
		if err != nil {
			return fmt.Errorf("packbuilder: parsing commit %s: %w", id, err)
		}
		if err := w.walkRecording(c.Tree, record); err != nil {
			return err
		}
		for _, p := range c.Parents {
			if err := w.walkRecording(p, record); err != nil {
				return err
			}
		}

	case object.KindTree:
		t, err := object.ParseTree(content)
		if err != nil {
			return fmt.Errorf("packbuilder: parsing tree %s: %w", id, err)
		}
		for _, e := range t.Entries {
			if e.Mode == object.ModeSubmodule {
				continue // gitlink: points into a different repository's object set
			}
			if err := w.walkRecording(e.ID, record); err != nil {
				return err
			}
		}

	case object.KindTag:
		t, err := object.ParseTag(content)
		if err != nil {
			return fmt.Errorf("packbuilder: parsing tag %s: %w", id, err)
		}
		if err := w.walkRecording(t.Target, record); err != nil {
			return err
		}

	case object.KindBlob:
		// leaf: nothing further to walk
	}
	return nil
}
