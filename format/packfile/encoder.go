package packfile

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/forgectl/gitcore/hash"
)

// Encoder writes a complete pack stream: header, entries, trailer. It is
// deliberately simple — gitcore's pack generator (see package
// packbuilder) decides up front which objects to store whole and which
// as deltas; Encoder just serializes whatever it's handed.
type Encoder struct {
	w       io.Writer
	hash    hash.Hasher
	written int64
}

// NewEncoder wraps w. Every byte written through the returned Encoder
// also feeds the running trailer hash.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, hash: hash.NewHasher()}
}

func (e *Encoder) write(p []byte) error {
	if _, err := e.hash.Write(p); err != nil {
		return err
	}
	n, err := e.w.Write(p)
	e.written += int64(n)
	return err
}

// WriteHeader writes the pack signature, version and object count. It
// must be called exactly once, before any call to WriteObject.
func (e *Encoder) WriteHeader(objectCount uint32) error {
	var buf bytes.Buffer
	buf.Write(Signature)
	var rest [8]byte
	binary.BigEndian.PutUint32(rest[0:4], VersionSupported)
	binary.BigEndian.PutUint32(rest[4:8], objectCount)
	buf.Write(rest[:])
	return e.write(buf.Bytes())
}

// ObjectToWrite describes one object to append to the pack: either a
// whole object (Type is a non-delta Type and Content is the object's
// full inflated content) or a delta (Type is TypeOfsDelta/TypeRefDelta
// and Content is the raw delta instruction stream already encoded by
// the caller, e.g. via EncodeDelta).
type ObjectToWrite struct {
	Type    Type
	Content []byte

	// OffsetBase is required for TypeOfsDelta: this entry's pack offset
	// minus the base's pack offset (a non-negative distance backwards).
	OffsetBase int64
	// HashBase is required for TypeRefDelta.
	HashBase hash.ID
}

// WriteObject appends one entry, returning the pack offset it was
// written at (for later OFS_DELTA references by subsequent objects).
func (e *Encoder) WriteObject(o ObjectToWrite) (int64, error) {
	offset := e.written

	var hdr bytes.Buffer
	if err := writeTypeAndSize(&hdr, o.Type, int64(len(o.Content))); err != nil {
		return 0, err
	}
	if err := e.write(hdr.Bytes()); err != nil {
		return 0, err
	}

	switch o.Type {
	case TypeOfsDelta:
		var ofs bytes.Buffer
		if err := writeOffsetDelta(&ofs, o.OffsetBase); err != nil {
			return 0, err
		}
		if err := e.write(ofs.Bytes()); err != nil {
			return 0, err
		}
	case TypeRefDelta:
		if err := e.write(o.HashBase[:]); err != nil {
			return 0, err
		}
	}

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	if _, err := zw.Write(o.Content); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	if err := e.write(zbuf.Bytes()); err != nil {
		return 0, err
	}

	return offset, nil
}

// EncodeDelta produces the raw delta instruction stream (source size,
// target size, then copy/insert opcodes) git's pack format expects for
// an OFS_DELTA/REF_DELTA entry. It only ever emits literal inserts
// covering the whole target: a correct but unoptimized encoding,
// matching what a correct decoder must still accept regardless of how
// cleverly a smarter encoder found copy opportunities.
func EncodeDelta(base, target []byte) []byte {
	var buf bytes.Buffer
	encodeLEB128(&buf, uint64(len(base)))
	encodeLEB128(&buf, uint64(len(target)))

	rest := target
	for len(rest) > 0 {
		n := len(rest)
		if n > 0x7f {
			n = 0x7f
		}
		buf.WriteByte(byte(n))
		buf.Write(rest[:n])
		rest = rest[n:]
	}
	return buf.Bytes()
}

// Finish writes the trailing pack checksum (the running hash over
// everything written so far) and returns it.
func (e *Encoder) Finish() (hash.ID, error) {
	sum := e.hash.Sum()
	if _, err := e.w.Write(sum[:]); err != nil {
		return hash.Zero, err
	}
	e.written += int64(len(sum))
	return sum, nil
}
