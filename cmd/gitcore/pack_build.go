package main

import (
	"context"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/forgectl/gitcore/format/idxfile"
	"github.com/forgectl/gitcore/format/packfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/packbuilder"
	"github.com/forgectl/gitcore/store"
)

// buildPackFiles runs the packbuilder pipeline over counts and writes
// both "<objectsDir>/pack/<name>.pack" and its matching ".idx", shared
// by "organize" and "pack create". It returns the pack's trailer id.
func buildPackFiles(fs billy.Filesystem, objectsDir, name string, db store.Store, counts []packbuilder.Count) (hash.ID, error) {
	packDir := fs.Join(objectsDir, "pack")
	if err := fs.MkdirAll(packDir, 0o755); err != nil {
		return hash.Zero, err
	}

	packPath := fs.Join(packDir, name+".pack")
	idxPath := fs.Join(packDir, name+".idx")

	f, err := fs.Create(packPath)
	if err != nil {
		return hash.Zero, err
	}
	packID, _, buildErr := packbuilder.Build(context.Background(), f, db, counts, packbuilder.Options{})
	if closeErr := f.Close(); buildErr == nil {
		buildErr = closeErr
	}
	if buildErr != nil {
		return hash.Zero, fmt.Errorf("gitcore: writing %s: %w", packPath, buildErr)
	}

	if err := indexPackFile(fs, packPath, idxPath, packID); err != nil {
		return hash.Zero, err
	}
	return packID, nil
}

// indexPackFile scans a complete pack file and writes its v2 index,
// resolving every entry (including deltas) to learn its id.
func indexPackFile(fs billy.Filesystem, packPath, idxPath string, packChecksum hash.ID) error {
	pf, err := fs.Open(packPath)
	if err != nil {
		return err
	}
	defer pf.Close()

	s := packfile.NewScanner(pf)
	if _, err := s.ReadHeader(); err != nil {
		return fmt.Errorf("gitcore: reading %s: %w", packPath, err)
	}

	var entries []*packfile.Entry
	for {
		e, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("gitcore: scanning %s: %w", packPath, err)
		}
		entries = append(entries, e)
	}
	if _, err := s.Finish(); err != nil {
		return fmt.Errorf("gitcore: verifying trailer of %s: %w", packPath, err)
	}

	resolver := packfile.NewResolver(entries, nil)
	builder := &idxfile.Builder{PackfileChecksum: packChecksum}
	for _, e := range entries {
		id, _, _, err := resolver.ResolveID(e.Offset)
		if err != nil {
			return fmt.Errorf("gitcore: resolving entry at offset %d in %s: %w", e.Offset, packPath, err)
		}
		builder.Add(id, uint64(e.Offset), e.CRC32)
	}

	idx := builder.Build()

	out, err := fs.Create(idxPath)
	if err != nil {
		return err
	}
	_, err = idxfile.Encode(out, idx)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
