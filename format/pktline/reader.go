package pktline

import (
	"io"
)

// Sentinel identifies which reserved frame a reader should stop on. Once a
// stop-on sentinel is seen, subsequent reads return io.EOF until Reset.
type Sentinel int

const (
	StopNever Sentinel = iota
	StopOnFlush
	StopOnDelim
	StopOnResponseEnd
)

// Reader is a peekable pktline reader: PeekLine inspects the next frame
// without consuming it, ReadLine consumes it. Buffer reuse is by design —
// the slice PeekLine/ReadLine return is only valid until the next call.
type Reader struct {
	r        io.Reader
	buf      []byte
	stopOn   Sentinel
	stopped  bool
}

// NewReader wraps r. stopOn configures which sentinel, once seen, causes
// subsequent reads to report EOF (typically StopOnFlush, so callers don't
// need to special-case flush themselves when reading one logical
// message).
func NewReader(r io.Reader, stopOn Sentinel) *Reader {
	return &Reader{r: r, stopOn: stopOn}
}

// Reset clears the stopped state, allowing the reader to continue past a
// previously observed stop-on sentinel (used between successive messages
// on a stateful connection).
func (r *Reader) Reset() {
	r.stopped = false
}

// fill reads only the bytes still missing from the first n, so nothing
// past the current frame is taken from the underlying reader.
func (r *Reader) fill(n int) error {
	for len(r.buf) < n {
		tmp := make([]byte, n-len(r.buf))
		rn, err := r.r.Read(tmp)
		r.buf = append(r.buf, tmp[:rn]...)
		if err != nil {
			return err
		}
	}
	return nil
}

// peekFrame reads (without consuming) the next full frame into r.buf,
// returning its status and data slice (aliasing r.buf).
func (r *Reader) peekFrame() (Status, []byte, error) {
	if r.stopped {
		return Err, nil, io.EOF
	}
	if err := r.fill(lenSize); err != nil {
		return Err, nil, err
	}
	status, n, err := ParseLength(r.buf[:lenSize])
	if err != nil {
		return Err, nil, err
	}
	if status != dataStatus {
		return status, nil, nil
	}
	if err := r.fill(lenSize + n); err != nil {
		return Err, nil, err
	}
	return Status(n), r.buf[lenSize : lenSize+n], nil
}

// PeekLine returns the next frame without consuming it.
func (r *Reader) PeekLine() (Status, []byte, error) {
	return r.peekFrame()
}

// ReadLine reads and consumes the next frame. If the configured stop-on
// sentinel is seen, the sentinel is still returned once, and every
// subsequent call returns io.EOF.
func (r *Reader) ReadLine() (Status, []byte, error) {
	status, data, err := r.peekFrame()
	if err != nil {
		return status, data, err
	}

	var consumed int
	if status == Flush || status == Delim || status == ResponseEnd {
		consumed = lenSize
	} else {
		consumed = lenSize + len(data)
	}
	out := make([]byte, len(data))
	copy(out, data)
	r.buf = r.buf[consumed:]

	if r.stopOn == StopOnFlush && status == Flush ||
		r.stopOn == StopOnDelim && status == Delim ||
		r.stopOn == StopOnResponseEnd && status == ResponseEnd {
		r.stopped = true
	}
	return status, out, nil
}

// Read implements io.Reader directly over the framed content, stripping
// pktline headers and stopping at the configured sentinel (returning
// io.EOF). Useful for handing the reader to code that expects a plain
// byte stream, such as a side-band demuxer.
func (r *Reader) Read(p []byte) (int, error) {
	status, data, err := r.ReadLine()
	if err != nil {
		return 0, err
	}
	if status == Flush || status == Delim || status == ResponseEnd {
		return 0, io.EOF
	}
	if errLine := errorFromData(data); errLine != nil {
		return 0, errLine
	}
	n := copy(p, data)
	return n, nil
}

// AsPlainReader returns an io.Reader that strips pktline framing but does
// not interpret side-band tags — the inverse of side-band decoding, for
// transports that negotiated no side-band capability.
func (r *Reader) AsPlainReader() io.Reader {
	return plainReader{r}
}

type plainReader struct{ r *Reader }

func (p plainReader) Read(b []byte) (int, error) { return p.r.Read(b) }
