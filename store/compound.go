package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/forgectl/gitcore/format/idxfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
)

// Compound layers one loose backend, any number of pack backends, and
// (recursively) any alternate object directories listed in
// objects/info/alternates, the way git itself answers "do I have
// object X": loose first (cheapest to check and most likely to hold
// anything recently written), then packs in the order they were found,
// then alternates in the order listed.
type Compound struct {
	loose      *Loose
	packs      []*Pack
	alternates []*Compound
}

// Open builds a Compound rooted at objectsDir (conventionally
// ".git/objects"): a Loose backend over objectsDir itself, a Pack
// backend for every objectsDir/pack/*.idx found, and one Compound per
// alternate directory listed in objectsDir/info/alternates.
func Open(fs billy.Filesystem, objectsDir string) (*Compound, error) {
	return open(fs, objectsDir, map[string]bool{})
}

func open(fs billy.Filesystem, objectsDir string, visited map[string]bool) (*Compound, error) {
	key := canonicalKey(fs, objectsDir)
	if visited[key] {
		return nil, fmt.Errorf("store: alternates cycle at %s", objectsDir)
	}
	visited[key] = true

	c := &Compound{loose: NewLoose(fs, objectsDir)}

	packs, err := loadPacks(fs, fs.Join(objectsDir, "pack"))
	if err != nil {
		return nil, err
	}
	c.packs = packs

	alts, err := readAlternates(fs, objectsDir)
	if err != nil {
		return nil, err
	}
	for _, altDir := range alts {
		altKey := canonicalKey(fs, altDir)
		if visited[altKey] {
			continue // already-visited alternate is a harmless dupe, not an error
		}
		alt, err := open(fs, altDir, visited)
		if err != nil {
			return nil, err
		}
		c.alternates = append(c.alternates, alt)
	}
	return c, nil
}

// canonicalKey gives alternates cycle detection something stable to
// compare even though billy.Filesystem has no realpath: Join already
// normalizes "..", and combining it with the filesystem's own Root
// distinguishes two filesystems that happen to share a relative path.
func canonicalKey(fs billy.Filesystem, dir string) string {
	return fs.Root() + "\x00" + filepath.Clean(dir)
}

// loadPacks decodes every pack/*.idx under packDir and pairs it with its
// matching *.pack data file. A *.idx with no matching *.pack (or vice
// versa) is skipped rather than treated as an error: a pack transfer
// interrupted mid-write is expected to leave exactly this kind of debris.
func loadPacks(fs billy.Filesystem, packDir string) ([]*Pack, error) {
	entries, err := fs.ReadDir(packDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var packs []*Pack
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".idx") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".idx")
		idxPath := fs.Join(packDir, e.Name())
		dataPath := fs.Join(packDir, base+".pack")

		if _, err := fs.Stat(dataPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		idx, err := decodeIdx(fs, idxPath)
		if err != nil {
			return nil, fmt.Errorf("store: decoding %s: %w", idxPath, err)
		}
		packs = append(packs, OpenPack(fs, dataPath, idx))
	}
	return packs, nil
}

func decodeIdx(fs billy.Filesystem, path string) (*idxfile.MemoryIndex, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return idxfile.Decode(f)
}

// readAlternates parses objects/info/alternates: one path per line,
// either absolute or relative to objectsDir, matching git's own format
// (and, like git, ignoring blank lines and leading "#" comments).
func readAlternates(fs billy.Filesystem, objectsDir string) ([]string, error) {
	f, err := fs.Open(fs.Join(objectsDir, "info", "alternates"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var dirs []string
	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dir := line
		if !filepath.IsAbs(dir) {
			dir = fs.Join(objectsDir, dir)
		}
		dir = filepath.Clean(dir)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return dirs, nil
}

// Has reports whether any backend in the compound (loose, packs, then
// alternates, in that order) has id.
func (c *Compound) Has(id hash.ID) (bool, error) {
	if ok, err := c.loose.Has(id); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	for _, p := range c.packs {
		if ok, err := p.Has(id); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	for _, a := range c.alternates {
		if ok, err := a.Has(id); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	return false, nil
}

// Get resolves id against loose, then packs, then alternates, in that
// order, returning ErrNotFound if no backend has it.
func (c *Compound) Get(id hash.ID) (object.Kind, []byte, error) {
	if ok, err := c.loose.Has(id); err != nil {
		return object.KindInvalid, nil, err
	} else if ok {
		return c.loose.Get(id)
	}
	for _, p := range c.packs {
		if ok, err := p.Has(id); err != nil {
			return object.KindInvalid, nil, err
		} else if ok {
			return p.Get(id)
		}
	}
	for _, a := range c.alternates {
		kind, content, err := a.Get(id)
		if err == nil {
			return kind, content, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return object.KindInvalid, nil, err
		}
	}
	return object.KindInvalid, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// IDs returns the union of every id known to loose, every pack, and
// every alternate, de-duplicated.
func (c *Compound) IDs() ([]hash.ID, error) {
	seen := map[hash.ID]bool{}
	var all []hash.ID

	collect := func(ids []hash.ID, err error) error {
		if err != nil {
			return err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
		return nil
	}

	if err := collect(c.loose.IDs()); err != nil {
		return nil, err
	}
	for _, p := range c.packs {
		if err := collect(p.IDs()); err != nil {
			return nil, err
		}
	}
	for _, a := range c.alternates {
		if err := collect(a.IDs()); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// Put writes content to the compound's own loose backend. Writes never
// go to alternates, matching git's read-only treatment of them.
func (c *Compound) Put(kind object.Kind, content []byte) (hash.ID, error) {
	return c.loose.Put(kind, content)
}

var _ io.Closer = (*Compound)(nil)

// Close closes every pack backend opened by this compound and its
// alternates.
func (c *Compound) Close() error {
	var firstErr error
	for _, p := range c.packs {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, a := range c.alternates {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
