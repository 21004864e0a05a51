package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/go-git/go-billy/v5"

	"github.com/forgectl/gitcore/format/objfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/internal/trace"
	"github.com/forgectl/gitcore/object"
)

// Loose is the objects/xx/yyyy...-file-per-object backend. Writes go to
// a temp file first and are atomically renamed into place, so a reader
// never observes a partially written object.
type Loose struct {
	fs   billy.Filesystem
	root string // directory containing the fan-out folders, e.g. ".git/objects"
}

// NewLoose opens (without yet requiring the existence of) the loose
// object directory root under fs.
func NewLoose(fs billy.Filesystem, root string) *Loose {
	return &Loose{fs: fs, root: root}
}

func (l *Loose) path(id hash.ID) string {
	s := id.String()
	return l.fs.Join(l.root, s[0:2], s[2:])
}

// Has reports whether id's loose object file exists.
func (l *Loose) Has(id hash.ID) (bool, error) {
	_, err := l.fs.Stat(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get reads and inflates the loose object for id.
func (l *Loose) Get(id hash.ID) (object.Kind, []byte, error) {
	f, err := l.fs.Open(l.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return object.KindInvalid, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return object.KindInvalid, nil, err
	}
	defer f.Close()

	r, err := objfile.NewReader(f)
	if err != nil {
		return object.KindInvalid, nil, fmt.Errorf("store: loose object %s: %w", id, err)
	}
	defer r.Close()

	kind, size, err := r.Header()
	if err != nil {
		return object.KindInvalid, nil, err
	}

	content := make([]byte, size)
	if _, err := io.ReadFull(r, content); err != nil {
		return object.KindInvalid, nil, fmt.Errorf("store: reading loose object %s: %w", id, err)
	}

	if got := r.Hash(); got != id {
		return object.KindInvalid, nil, fmt.Errorf("store: loose object %s has content hashing to %s", id, got)
	}

	k, err := object.ParseKind(kind)
	if err != nil {
		return object.KindInvalid, nil, err
	}
	return k, content, nil
}

// Put writes content as a new loose object, computing its id from
// "<kind> <size>\0<content>" the same way every other git object store
// does. Writing an id that already exists is a no-op.
func (l *Loose) Put(kind object.Kind, content []byte) (hash.ID, error) {
	var buf bytes.Buffer
	w := objfile.NewWriter(&buf)
	if err := w.WriteHeader(kind, int64(len(content))); err != nil {
		return hash.Zero, err
	}
	if _, err := w.Write(content); err != nil {
		return hash.Zero, err
	}
	if err := w.Close(); err != nil {
		return hash.Zero, err
	}
	id := w.Hash()

	if ok, err := l.Has(id); err != nil {
		return hash.Zero, err
	} else if ok {
		return id, nil
	}

	dir := l.fs.Join(l.root, id.String()[0:2])
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return hash.Zero, err
	}

	tmp, err := l.fs.TempFile(dir, "tmp_obj_")
	if err != nil {
		return hash.Zero, err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = l.fs.Remove(tmp.Name())
		return hash.Zero, err
	}
	if err := tmp.Close(); err != nil {
		_ = l.fs.Remove(tmp.Name())
		return hash.Zero, err
	}

	if err := l.fs.Rename(tmp.Name(), l.path(id)); err != nil {
		_ = l.fs.Remove(tmp.Name())
		return hash.Zero, err
	}
	l.fixPermissions(l.path(id))

	trace.General.Printf("store: wrote loose object %s (%s, %d bytes)", id, kind, len(content))
	return id, nil
}

func (l *Loose) fixPermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	if chmodFS, ok := l.fs.(interface{ Chmod(string, os.FileMode) error }); ok {
		if err := chmodFS.Chmod(path, 0o444); err != nil {
			trace.General.Printf("store: chmod %s failed: %v", path, err)
		}
	}
}

// Remove deletes id's loose object file, if present. Removing an id that
// isn't present is a no-op success, the same idempotence Put provides for
// writes.
func (l *Loose) Remove(id hash.ID) error {
	if err := l.fs.Remove(l.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IDs walks every fan-out directory and returns the id of every loose object found.
func (l *Loose) IDs() ([]hash.ID, error) {
	dirs, err := l.fs.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []hash.ID
	for _, d := range dirs {
		if !d.IsDir() || len(d.Name()) != 2 {
			continue
		}
		files, err := l.fs.ReadDir(l.fs.Join(l.root, d.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || len(f.Name()) != hash.HexSize-2 {
				continue
			}
			id, err := hash.FromHex(d.Name() + f.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
