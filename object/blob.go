package object

// Blob is the immutable, zero-copy view of a blob object: the raw payload
// bytes, unparsed, exactly as stored.
type Blob struct {
	data []byte
}

// ParseBlob wraps b as a Blob. Blobs have no internal structure, so this
// never fails; it exists for symmetry with the other object parsers and to
// make the zero-copy contract explicit (the returned Blob aliases b).
func ParseBlob(b []byte) Blob {
	return Blob{data: b}
}

// Data returns the blob payload. The returned slice aliases the buffer the
// Blob was parsed from.
func (b Blob) Data() []byte { return b.data }

// Size returns the payload length.
func (b Blob) Size() int64 { return int64(len(b.data)) }

// MutableBlob is the owned counterpart to Blob: callers that want to build
// a blob from scratch or mutate one use this instead.
type MutableBlob struct {
	Data []byte
}

// Immutable copies m into a zero-copy Blob view.
func (m MutableBlob) Immutable() Blob {
	return Blob{data: m.Data}
}

// Serialize returns the blob's payload bytes — a blob's wire form inside
// the "<kind> <size>\0" envelope is simply its content.
func (m MutableBlob) Serialize() []byte {
	return m.Data
}

// ToMutable copies b into an owned MutableBlob.
func (b Blob) ToMutable() MutableBlob {
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return MutableBlob{Data: cp}
}
