package object

import (
	"bytes"
	"sort"

	"github.com/forgectl/gitcore/hash"
)

// TreeEntry is one (mode, name, id) record in a tree object.
type TreeEntry struct {
	Mode FileMode
	Name string
	ID   hash.ID
}

// sortKey returns the name used for git's tree-entry ordering: directory
// entries sort as though their name ended in "/", so that a file "foo"
// sorts before "foo.c" while a directory "foo" (sorting as "foo/") comes
// after it.
func (e TreeEntry) sortKey() string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// Tree is the immutable, zero-copy view of a tree object: an ordered list
// of entries referencing the input buffer's entry names.
type Tree struct {
	raw     []byte
	Entries []TreeEntry
}

// ParseTree parses git's binary tree format: a sequence of
// "<mode-octal> <name>\0<20-byte-id>" records with no separator between
// records.
func ParseTree(b []byte) (Tree, error) {
	t := Tree{raw: b}
	rest := b
	for len(rest) > 0 {
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return Tree{}, errUnexpectedEOF("tree entry mode")
		}
		mode, err := ParseMode(rest[:sp])
		if err != nil {
			return Tree{}, err
		}
		rest = rest[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return Tree{}, errUnexpectedEOF("tree entry name")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < hash.Size {
			return Tree{}, errUnexpectedEOF("tree entry id")
		}
		id := hash.FromBytes(rest[:hash.Size])
		rest = rest[hash.Size:]

		t.Entries = append(t.Entries, TreeEntry{Mode: mode, Name: name, ID: id})
	}
	return t, nil
}

// ToMutable copies t into an owned MutableTree.
func (t Tree) ToMutable() MutableTree {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	return MutableTree{Entries: entries}
}

// MutableTree is the owned, buildable form of a tree object.
type MutableTree struct {
	Entries []TreeEntry
}

// Sort reorders Entries into git's canonical tree-entry order. Serialize
// does not do this implicitly: callers that build a tree from scratch must
// call Sort (or supply already-sorted entries) themselves, matching the
// teacher's separation of construction from canonicalization.
func (m *MutableTree) Sort() {
	sort.Slice(m.Entries, func(i, j int) bool {
		return m.Entries[i].sortKey() < m.Entries[j].sortKey()
	})
}

// Serialize renders m in git's binary tree format. Entries are written in
// the order they appear in m.Entries; for a byte-exact round-trip of a
// well-formed input, entries must already be in canonical order (see Sort).
func (m MutableTree) Serialize() []byte {
	var buf bytes.Buffer
	for _, e := range m.Entries {
		buf.WriteString(e.Mode.String())
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID.Bytes())
	}
	return buf.Bytes()
}

// Immutable re-parses m's serialized form into a zero-copy Tree view.
func (m MutableTree) Immutable() (Tree, error) {
	return ParseTree(m.Serialize())
}
