// Package ref implements the on-disk reference store: peeled and
// symbolic reference encode/decode, a reflog line grammar, and the
// multi-edit reference transaction engine (symbolic-ref splitting,
// locking, two-pass commit).
package ref

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/forgectl/gitcore/hash"
)

// Name is a fully-qualified reference name, e.g. "refs/heads/main" or
// "HEAD".
type Name string

func (n Name) String() string { return string(n) }

// Kind distinguishes a peeled (object-id) reference from a symbolic
// (points-at-another-ref) one.
type Kind int

const (
	KindInvalid Kind = iota
	KindPeeled
	KindSymbolic
)

const symbolicPrefix = "ref: "

// Reference is the decoded content of one ref file: either a peeled
// object id or a target ref name, never both.
type Reference struct {
	name   Name
	kind   Kind
	target hash.ID
	symRef Name
}

// NewPeeled returns a peeled reference from name to target.
func NewPeeled(name Name, target hash.ID) Reference {
	return Reference{name: name, kind: KindPeeled, target: target}
}

// NewSymbolic returns a symbolic reference from name to target.
func NewSymbolic(name Name, target Name) Reference {
	return Reference{name: name, kind: KindSymbolic, symRef: target}
}

func (r Reference) Name() Name { return r.name }
func (r Reference) Kind() Kind { return r.kind }

// Target returns the peeled object id. It is hash.Zero for a symbolic
// reference.
func (r Reference) Target() hash.ID { return r.target }

// SymbolicTarget returns the name this reference points at. It is empty
// for a peeled reference.
func (r Reference) SymbolicTarget() Name { return r.symRef }

// Encode renders the on-disk file content for the reference: "<hex-id>\n"
// for a peeled ref, "ref: <name>\n" for a symbolic one.
func (r Reference) Encode() []byte {
	switch r.kind {
	case KindSymbolic:
		return []byte(symbolicPrefix + string(r.symRef) + "\n")
	default:
		return []byte(r.target.String() + "\n")
	}
}

// Decode parses a ref file's raw content for the reference named name.
// A malformed or unrecognized body is reported as an error; callers in
// the transaction engine treat any decode failure as "ref is absent"
// per 4.8's prepare step 3, rather than propagating it.
func Decode(name Name, content []byte) (Reference, error) {
	line := strings.TrimRight(string(bytes.TrimSpace(content)), "\r\n")
	if strings.HasPrefix(line, symbolicPrefix) {
		target := strings.TrimSpace(strings.TrimPrefix(line, symbolicPrefix))
		if target == "" {
			return Reference{}, fmt.Errorf("ref: empty symbolic target for %s", name)
		}
		return NewSymbolic(name, Name(target)), nil
	}

	id, err := hash.FromHex(line)
	if err != nil {
		return Reference{}, fmt.Errorf("ref: %s: not a hex id or symbolic ref: %q", name, line)
	}
	return NewPeeled(name, id), nil
}
