package object

import (
	"bytes"

	"github.com/forgectl/gitcore/hash"
)

// ExtraHeader is a (name, value) pair appearing after the well-known commit
// headers, in original order of appearance (e.g. "gpgsig", "mergetag").
type ExtraHeader struct {
	Name  string
	Value []byte
}

// Commit is the immutable, zero-copy view of a commit object.
type Commit struct {
	raw        []byte
	Tree       hash.ID
	Parents    []hash.ID
	Author     Signature
	Committer  Signature
	Encoding   string // empty if absent
	Extra      []ExtraHeader
	Message    []byte // aliases raw
}

// headerLine splits the next "name value...\n" header off of b, handling
// continuation lines (each subsequent physical line of a multi-line value
// is prefixed by a single space in the wire format). It returns the
// header's name, its decoded value, and the remainder of the buffer.
func headerLine(b []byte) (name string, value []byte, rest []byte, ok bool) {
	if len(b) == 0 || b[0] == '\n' {
		return "", nil, b, false
	}
	sp := bytes.IndexByte(b, ' ')
	nl := bytes.IndexByte(b, '\n')
	if sp < 0 || (nl >= 0 && nl < sp) {
		return "", nil, b, false
	}
	name = string(b[:sp])
	rest = b[sp+1:]

	var val bytes.Buffer
	for {
		eol := bytes.IndexByte(rest, '\n')
		if eol < 0 {
			val.Write(rest)
			rest = nil
			break
		}
		val.Write(rest[:eol])
		rest = rest[eol+1:]
		if len(rest) > 0 && rest[0] == ' ' {
			val.WriteByte('\n')
			rest = rest[1:]
			continue
		}
		break
	}
	return name, val.Bytes(), rest, true
}

// ParseCommit parses git's commit object format: "tree", zero or more
// "parent", "author", "committer", an optional "encoding", any number of
// extra headers in original order, a blank line, then the message.
func ParseCommit(b []byte) (Commit, error) {
	c := Commit{raw: b}
	rest := b

	name, val, next, ok := headerLine(rest)
	if !ok || name != "tree" {
		return Commit{}, &DecodeError{Context: "commit", Input: rest, Reason: "expected tree header"}
	}
	id, err := hash.FromHex(string(val))
	if err != nil {
		return Commit{}, &DecodeError{Context: "commit tree", Input: val, Reason: "invalid id"}
	}
	c.Tree = id
	rest = next

	for {
		name, val, next, ok = headerLine(rest)
		if !ok || name != "parent" {
			break
		}
		id, err := hash.FromHex(string(val))
		if err != nil {
			return Commit{}, &DecodeError{Context: "commit parent", Input: val, Reason: "invalid id"}
		}
		c.Parents = append(c.Parents, id)
		rest = next
	}

	name, val, next, ok = headerLine(rest)
	if !ok || name != "author" {
		return Commit{}, &DecodeError{Context: "commit", Input: rest, Reason: "expected author header"}
	}
	c.Author, err = ParseSignature(val)
	if err != nil {
		return Commit{}, err
	}
	rest = next

	name, val, next, ok = headerLine(rest)
	if !ok || name != "committer" {
		return Commit{}, &DecodeError{Context: "commit", Input: rest, Reason: "expected committer header"}
	}
	c.Committer, err = ParseSignature(val)
	if err != nil {
		return Commit{}, err
	}
	rest = next

	for {
		name, val, next, ok = headerLine(rest)
		if !ok {
			break
		}
		if name == "encoding" {
			c.Encoding = string(val)
		} else {
			c.Extra = append(c.Extra, ExtraHeader{Name: name, Value: val})
		}
		rest = next
	}

	// rest now begins with the blank line separating headers from message,
	// unless the object has no message at all.
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	}
	c.Message = rest
	return c, nil
}

// ToMutable copies c into an owned MutableCommit.
func (c Commit) ToMutable() MutableCommit {
	extra := make([]ExtraHeader, len(c.Extra))
	for i, e := range c.Extra {
		v := make([]byte, len(e.Value))
		copy(v, e.Value)
		extra[i] = ExtraHeader{Name: e.Name, Value: v}
	}
	parents := make([]hash.ID, len(c.Parents))
	copy(parents, c.Parents)
	msg := make([]byte, len(c.Message))
	copy(msg, c.Message)
	return MutableCommit{
		Tree:      c.Tree,
		Parents:   parents,
		Author:    c.Author,
		Committer: c.Committer,
		Encoding:  c.Encoding,
		Extra:     extra,
		Message:   msg,
	}
}

// MutableCommit is the owned, buildable form of a commit object.
type MutableCommit struct {
	Tree      hash.ID
	Parents   []hash.ID
	Author    Signature
	Committer Signature
	Encoding  string
	Extra     []ExtraHeader
	Message   []byte
}

// writeHeaderValue writes "name value\n", continuation-encoding embedded
// newlines in value by prefixing every subsequent physical line with a
// single space, so the result re-parses as one logical header.
func writeHeaderValue(buf *bytes.Buffer, name string, value []byte) {
	buf.WriteString(name)
	buf.WriteByte(' ')
	lines := bytes.Split(value, []byte{'\n'})
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte('\n')
			buf.WriteByte(' ')
		}
		buf.Write(line)
	}
	buf.WriteByte('\n')
}

// Serialize renders m in canonical field order: tree, each parent, author,
// committer, optional encoding, extra headers in original order, a blank
// line, then the message.
func (m MutableCommit) Serialize() ([]byte, error) {
	if err := m.Author.Validate(); err != nil {
		return nil, err
	}
	if err := m.Committer.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeHeaderValue(&buf, "tree", []byte(m.Tree.String()))
	for _, p := range m.Parents {
		writeHeaderValue(&buf, "parent", []byte(p.String()))
	}
	writeHeaderValue(&buf, "author", []byte(m.Author.String()))
	writeHeaderValue(&buf, "committer", []byte(m.Committer.String()))
	if m.Encoding != "" {
		writeHeaderValue(&buf, "encoding", []byte(m.Encoding))
	}
	for _, e := range m.Extra {
		writeHeaderValue(&buf, e.Name, e.Value)
	}
	buf.WriteByte('\n')
	buf.Write(m.Message)
	return buf.Bytes(), nil
}

// Immutable re-parses m's serialized form into a zero-copy Commit view.
func (m MutableCommit) Immutable() (Commit, error) {
	b, err := m.Serialize()
	if err != nil {
		return Commit{}, err
	}
	return ParseCommit(b)
}
