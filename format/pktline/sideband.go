package pktline

import (
	"errors"
	"fmt"
	"io"
)

// Band identifies a side-band channel.
type Band byte

const (
	BandData     Band = 1
	BandProgress Band = 2
	BandError    Band = 3
)

// Type selects how large a demuxed payload is allowed to be per frame,
// matching git's two side-band capabilities.
type Type int

const (
	// Sideband allows up to MaxPackedSize (999) byte payloads, a 1000-byte
	// frame body with the band byte (legacy "side-band").
	Sideband Type = iota
	// Sideband64k allows up to MaxDataLen-1 byte payloads ("side-band-64k").
	Sideband64k
)

// MaxPackedSize is the largest payload a single side-band frame may carry
// under the legacy Sideband type.
const MaxPackedSize = 999

// ErrMaxPackedExceeded is returned by Demuxer.Read when a frame exceeds
// MaxPackedSize under the legacy Sideband type.
var ErrMaxPackedExceeded = errors.New("pktline: side-band packet exceeds maximum size")

// Demuxer reads band-tagged pkt-line frames from an underlying pkt-line
// stream (already stripped of framing — e.g. a *Reader in StopOnFlush
// mode) and exposes BandData payloads as a plain byte stream. Progress
// and error bands are routed to callbacks/fields instead of being
// interleaved into the Read output.
type Demuxer struct {
	typ Type
	src *Reader

	// Progress, if non-nil, receives BandProgress payloads.
	Progress io.Writer
	// FailOnErr converts a BandError frame into a returned error instead
	// of silently discarding it.
	FailOnErr bool

	pending []byte
	err     error
}

// NewDemuxer wraps a framed stream. A *Reader src is used as is; any other
// src is wrapped in a StopOnFlush *Reader so the demuxer can read one
// pkt-line frame at a time.
func NewDemuxer(typ Type, src io.Reader) *Demuxer {
	r, ok := src.(*Reader)
	if !ok {
		r = NewReader(src, StopOnFlush)
	}
	return &Demuxer{typ: typ, src: r, FailOnErr: true}
}

// Read implements io.Reader, demultiplexing BandData frames into p and
// routing progress/error bands out of band.
func (d *Demuxer) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		status, data, err := d.src.ReadLine()
		if err != nil {
			d.err = err
			return 0, err
		}
		if status == Flush || status == Delim || status == ResponseEnd {
			d.err = io.EOF
			return 0, io.EOF
		}
		if len(data) == 0 {
			continue
		}

		max := MaxDataLen - 1
		if d.typ == Sideband {
			max = MaxPackedSize
		}
		if len(data)-1 > max {
			d.err = ErrMaxPackedExceeded
			return 0, ErrMaxPackedExceeded
		}

		switch Band(data[0]) {
		case BandData:
			// The "ERR " fatal-error convention is independent of band
			// tagging: a server that hasn't negotiated the error band (or
			// is reporting an error mid-stream on the data band itself)
			// may still terminate with an ERR-prefixed line instead of a
			// BandError frame.
			if errLine := errorFromData(data[1:]); errLine != nil {
				d.err = errLine
				return 0, errLine
			}
			d.pending = data[1:]
		case BandProgress:
			if d.Progress != nil {
				_, _ = d.Progress.Write(data[1:])
			}
		case BandError:
			if d.FailOnErr {
				d.err = &ErrorLine{Text: string(data[1:])}
				return 0, d.err
			}
		default:
			d.err = fmt.Errorf("unknown channel %s", data)
			return 0, d.err
		}
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Muxer writes BandData frames to an underlying stream. WriteChannel lets
// a caller also emit progress/error frames on the same connection.
type Muxer struct {
	w   io.Writer
	typ Type
}

// NewMuxer wraps w for writing side-band frames of the given Type.
func NewMuxer(typ Type, w io.Writer) *Muxer {
	return &Muxer{w: w, typ: typ}
}

func (m *Muxer) maxPayload() int {
	if m.typ == Sideband {
		return MaxPackedSize
	}
	return MaxDataLen - 1
}

// Write splits p into BandData frames no larger than the side-band type's
// maximum, returning the number of payload bytes written (not counting
// the band-tag byte or framing overhead).
func (m *Muxer) Write(p []byte) (int, error) {
	total := 0
	max := m.maxPayload()
	for len(p) > 0 {
		chunk := p
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		n, err := m.WriteChannel(BandData, chunk)
		total += n
		if err != nil {
			return total, err
		}
		p = p[len(chunk):]
	}
	return total, nil
}

// WriteChannel writes one frame tagged with band, carrying payload.
func (m *Muxer) WriteChannel(band Band, payload []byte) (int, error) {
	framed := make([]byte, len(payload)+1)
	framed[0] = byte(band)
	copy(framed[1:], payload)
	if _, err := WritePacket(m.w, framed); err != nil {
		return 0, err
	}
	return len(payload), nil
}
