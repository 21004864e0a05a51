package transport

import (
	"io"

	"github.com/forgectl/gitcore/format/pktline"
)

// RequestWriter writes one outgoing request's body to the connection as
// pktline frames and, once the caller is done writing, turns the same
// connection around into a side-band-aware reader for the response. It
// does not buffer: each frame reaches the connection during the Write
// call that produces it.
type RequestWriter struct {
	w        *pktline.Writer
	r        io.Reader
	progress io.Writer

	closed bool
}

// Write frames p and writes it to the connection according to the
// writer's configured Mode (see
// pktline.Writer): Binary frames raw bytes, OneLFTerminatedLinePerWriteCall
// treats p as one line per call.
func (rw *RequestWriter) Write(p []byte) (int, error) {
	return rw.w.Write(p)
}

// IntoRead emits term (the request's terminator: flush for a fully
// framed command, delimiter for a V2 command section boundary, or none
// when the caller already wrote its own terminal line) and returns a
// reader over the response: side-band frames are demultiplexed
// automatically, with band-2 (progress) payloads routed to the Writer
// given to Transport.Request and band-3 (error) payloads converted into
// a returned error from the reader's first failing Read.
func (rw *RequestWriter) IntoRead(term pktline.Terminator, sideband pktline.Type) (io.Reader, error) {
	if err := rw.w.Terminate(term); err != nil {
		return nil, err
	}
	rw.closed = true

	src := pktline.NewReader(rw.r, pktline.StopOnFlush)
	d := pktline.NewDemuxer(sideband, src)
	d.Progress = rw.progress
	return d, nil
}

// IntoReadPlain is IntoRead's counterpart for a connection that didn't
// negotiate any side-band capability: the response is framed pktline
// data with no band tag.
func (rw *RequestWriter) IntoReadPlain(term pktline.Terminator) (io.Reader, error) {
	if err := rw.w.Terminate(term); err != nil {
		return nil, err
	}
	rw.closed = true

	src := pktline.NewReader(rw.r, pktline.StopOnFlush)
	return src.AsPlainReader(), nil
}
