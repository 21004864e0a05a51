// Package objfile implements the loose-object file codec: a zlib-wrapped
// "<kind> <size>\0<data>" envelope, one file per object.
package objfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
)

// ErrInvalidHeader is returned when the "<kind> <size>\0" envelope cannot
// be parsed from the start of the decompressed stream.
var ErrInvalidHeader = errors.New("objfile: invalid header")

// Reader reads a loose object's envelope and content. It also accumulates
// the SHA-1 of "<kind> <size>\0<data>" as it is read, so Hash() after a
// full Read returns the object's id without a second pass.
type Reader struct {
	zr     io.ReadCloser
	br     *bufio.Reader
	hasher hash.Hasher

	kind object.Kind
	size int64
	read int64

	headerRead bool
}

// NewReader wraps r, opening the zlib stream. It returns ErrInvalidHeader
// (wrapping the zlib error) if r does not begin with a valid zlib stream.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	return &Reader{zr: zr, br: bufio.NewReader(zr), hasher: hash.NewHasher()}, nil
}

// Header reads and validates the "<kind> <size>\0" envelope, returning the
// object kind and declared size. It is idempotent: calling it more than
// once returns the same values without consuming more input.
func (r *Reader) Header() (object.Kind, int64, error) {
	if r.headerRead {
		return r.kind, r.size, nil
	}

	kindWord, err := r.br.ReadString(' ')
	if err != nil {
		return 0, 0, fmt.Errorf("%w: reading kind: %v", ErrInvalidHeader, err)
	}
	kindWord = kindWord[:len(kindWord)-1]
	kind, err := object.ParseKind([]byte(kindWord))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	sizeWord, err := r.br.ReadString(0)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: reading size: %v", ErrInvalidHeader, err)
	}
	sizeWord = sizeWord[:len(sizeWord)-1]

	var size int64
	for _, c := range []byte(sizeWord) {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("%w: non-numeric size %q", ErrInvalidHeader, sizeWord)
		}
		size = size*10 + int64(c-'0')
	}

	r.kind = kind
	r.size = size
	r.headerRead = true

	r.hasher.Write([]byte(kindWord))
	r.hasher.Write([]byte{' '})
	r.hasher.Write([]byte(sizeWord))
	r.hasher.Write([]byte{0})
	return kind, size, nil
}

// Read implements io.Reader over the object's content, after Header has
// been called. It enforces that exactly size bytes are produced; a short
// or long read is an error.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.headerRead {
		if _, _, err := r.Header(); err != nil {
			return 0, err
		}
	}
	if r.read >= r.size {
		if _, err := r.br.ReadByte(); err == nil {
			return 0, fmt.Errorf("objfile: content exceeds declared size %d", r.size)
		} else if err != io.EOF {
			return 0, err
		}
		return 0, io.EOF
	}
	max := r.size - r.read
	if int64(len(p)) > max {
		p = p[:max]
	}
	n, err := r.br.Read(p)
	r.read += int64(n)
	r.hasher.Write(p[:n])
	if err == io.EOF && r.read < r.size {
		return n, fmt.Errorf("objfile: short read: got %d of %d bytes", r.read, r.size)
	}
	return n, err
}

// Hash returns the object id computed over everything read so far
// (header plus content). Call it only after fully draining Read.
func (r *Reader) Hash() hash.ID {
	return r.hasher.Sum()
}

// Close releases the underlying zlib reader.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Writer writes a loose object's zlib-wrapped envelope and tracks the
// resulting object id the same way Reader does on decode.
type Writer struct {
	w      io.Writer
	zw     *zlib.Writer
	hasher hash.Hasher

	size       int64
	written    int64
	headerDone bool
}

// NewWriter wraps w; call WriteHeader before Write.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, hasher: hash.NewHasher()}
}

// WriteHeader writes "<kind> <size>\0" into the zlib stream. It must be
// called exactly once, before any call to Write.
func (w *Writer) WriteHeader(kind object.Kind, size int64) error {
	if w.headerDone {
		return errors.New("objfile: header already written")
	}
	w.zw = zlib.NewWriter(w.w)
	w.size = size
	w.headerDone = true

	var hdr bytes.Buffer
	hdr.Write(kind.Bytes())
	hdr.WriteByte(' ')
	fmt.Fprintf(&hdr, "%d", size)
	hdr.WriteByte(0)

	w.hasher.Write(hdr.Bytes())
	_, err := w.zw.Write(hdr.Bytes())
	return err
}

// Write writes object content. Writing more than the declared size is an
// error, matching the loose backend's "size mismatch is fatal" contract.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.headerDone {
		return 0, errors.New("objfile: WriteHeader not called")
	}
	if w.written+int64(len(p)) > w.size {
		return 0, fmt.Errorf("objfile: write exceeds declared size %d", w.size)
	}
	n, err := w.zw.Write(p)
	w.written += int64(n)
	w.hasher.Write(p[:n])
	return n, err
}

// Hash returns the object id for everything written so far.
func (w *Writer) Hash() hash.ID {
	return w.hasher.Sum()
}

// Close flushes and closes the zlib stream. It is an error to Close before
// writing exactly the declared size.
func (w *Writer) Close() error {
	if w.headerDone && w.written != w.size {
		return fmt.Errorf("objfile: wrote %d bytes, declared %d", w.written, w.size)
	}
	if w.zw == nil {
		return nil
	}
	return w.zw.Close()
}
