// Package store implements gitcore's object database: a loose-object
// backend, a pack backend, and a compound store that composes one
// loose backend with any number of pack bundles and alternate object
// directories, mirroring how git itself layers these to answer "does
// this repository have object X".
package store

import (
	"errors"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
)

// ErrNotFound is returned when no backend in a store has the requested object.
var ErrNotFound = errors.New("store: object not found")

// Store is the read interface every backend (and the compound store)
// implements.
type Store interface {
	// Has reports whether id is present, without necessarily reading it.
	Has(id hash.ID) (bool, error)
	// Get returns the kind and inflated content of id.
	Get(id hash.ID) (object.Kind, []byte, error)
	// IDs returns every object id the backend currently holds. Order is
	// backend-specific; callers that need determinism should sort.
	IDs() ([]hash.ID, error)
}

// Writer is implemented by backends that accept new objects directly
// (the loose backend; pack backends are written via packbuilder
// instead).
type Writer interface {
	// Put stores content under its computed id, returning the id. Writing
	// the same id twice is a no-op success, matching git's loose object
	// semantics (content-addressed storage is naturally idempotent).
	Put(kind object.Kind, content []byte) (hash.ID, error)
}
