package object

import (
	"bytes"

	"github.com/forgectl/gitcore/hash"
)

// Tag is the immutable, zero-copy view of an annotated tag object.
type Tag struct {
	raw       []byte
	Target    hash.ID
	TargetKind Kind
	Name      string
	Tagger    *Signature // nil if absent
	Message   []byte
	PGPSignature []byte // nil if absent
}

// ParseTag parses git's tag object format: object, type, tag, optional
// tagger, a blank line, the message, and an optional embedded PGP
// signature block appended to the message.
func ParseTag(b []byte) (Tag, error) {
	t := Tag{raw: b}
	rest := b

	name, val, next, ok := headerLine(rest)
	if !ok || name != "object" {
		return Tag{}, &DecodeError{Context: "tag", Input: rest, Reason: "expected object header"}
	}
	id, err := hash.FromHex(string(val))
	if err != nil {
		return Tag{}, &DecodeError{Context: "tag object", Input: val, Reason: "invalid id"}
	}
	t.Target = id
	rest = next

	name, val, next, ok = headerLine(rest)
	if !ok || name != "type" {
		return Tag{}, &DecodeError{Context: "tag", Input: rest, Reason: "expected type header"}
	}
	kind, err := ParseKind(val)
	if err != nil {
		return Tag{}, err
	}
	t.TargetKind = kind
	rest = next

	name, val, next, ok = headerLine(rest)
	if !ok || name != "tag" {
		return Tag{}, &DecodeError{Context: "tag", Input: rest, Reason: "expected tag header"}
	}
	t.Name = string(val)
	rest = next

	name, val, next, ok = headerLine(rest)
	if ok && name == "tagger" {
		sig, err := ParseSignature(val)
		if err != nil {
			return Tag{}, err
		}
		t.Tagger = &sig
		rest = next
	}

	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	}

	if pos := bytes.Index(rest, pgpSignatureBegin); pos >= 0 {
		t.Message = rest[:pos]
		t.PGPSignature = rest[pos:]
	} else {
		t.Message = rest
	}
	return t, nil
}

var pgpSignatureBegin = []byte("-----BEGIN PGP SIGNATURE-----")

// ToMutable copies t into an owned MutableTag.
func (t Tag) ToMutable() MutableTag {
	var tagger *Signature
	if t.Tagger != nil {
		s := *t.Tagger
		tagger = &s
	}
	msg := make([]byte, len(t.Message))
	copy(msg, t.Message)
	var sig []byte
	if t.PGPSignature != nil {
		sig = make([]byte, len(t.PGPSignature))
		copy(sig, t.PGPSignature)
	}
	return MutableTag{
		Target:       t.Target,
		TargetKind:   t.TargetKind,
		Name:         t.Name,
		Tagger:       tagger,
		Message:      msg,
		PGPSignature: sig,
	}
}

// MutableTag is the owned, buildable form of a tag object.
type MutableTag struct {
	Target       hash.ID
	TargetKind   Kind
	Name         string
	Tagger       *Signature
	Message      []byte
	PGPSignature []byte
}

// Serialize renders m in canonical field order: object, type, tag,
// optional tagger, a blank line, the message, then any PGP signature.
func (m MutableTag) Serialize() ([]byte, error) {
	if m.Tagger != nil {
		if err := m.Tagger.Validate(); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	writeHeaderValue(&buf, "object", []byte(m.Target.String()))
	writeHeaderValue(&buf, "type", m.TargetKind.Bytes())
	writeHeaderValue(&buf, "tag", []byte(m.Name))
	if m.Tagger != nil {
		writeHeaderValue(&buf, "tagger", []byte(m.Tagger.String()))
	}
	buf.WriteByte('\n')
	buf.Write(m.Message)
	buf.Write(m.PGPSignature)
	return buf.Bytes(), nil
}

// Immutable re-parses m's serialized form into a zero-copy Tag view.
func (m MutableTag) Immutable() (Tag, error) {
	b, err := m.Serialize()
	if err != nil {
		return Tag{}, err
	}
	return ParseTag(b)
}
