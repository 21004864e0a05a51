// Package transport implements the git pack protocol wire format: V1/V2
// capability detection, the Daemon/Process connection framings, and the
// request/response lifecycle (including side-band demultiplexing) on top
// of the pktline package. It does not dial connections itself — callers
// hand it an already-open io.ReadWriteCloser (a TCP socket, a spawned
// process's stdio, an HTTP body pair), the same separation of concerns
// the teacher draws between its Commander/Command abstraction and the
// protocol session built on top of it.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/forgectl/gitcore/format/pktline"
	"github.com/forgectl/gitcore/internal/trace"
)

// Mode selects how a connection's leading request line, if any, is
// framed.
type Mode int

const (
	// Daemon sends a leading "<service> <path>\0host=<host>[:port]\0..."
	// line before anything else, as git's anonymous daemon protocol and
	// the ssh/git-over-tcp transports do.
	Daemon Mode = iota
	// Process sends nothing: the remote process was already launched
	// with the desired service selected by its arguments (the local and
	// ssh-exec transports).
	Process
)

// Endpoint names the remote repository a Transport talks to. ToURL()
// renders it for diagnostics, and in Daemon mode its Path, Host and Port
// fill the leading connection line.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// ErrUnsupportedVersion is returned by Handshake when the remote speaks
// neither V1 nor V2 in a way this package understands.
var ErrUnsupportedVersion = errors.New("transport: unsupported protocol version")

// ErrNotConnected is returned by Request when Handshake has not yet
// started reading the remote's reply.
var ErrNotConnected = errors.New("transport: not connected")

// Transport is one logical session against a single remote endpoint.
// conn is closed by Close; it may be a stateful duplex connection (raw
// TCP/ssh) or a one-shot stateless round trip (an HTTP request/response
// pair adapted to io.ReadWriteCloser) — IsStateful reports which.
type Transport struct {
	conn     io.ReadWriteCloser
	mode     Mode
	endpoint Endpoint
	desired  Version
	stateful bool

	r        *bufio.Reader
	version  Version
	caps     *Capabilities
}

// New wraps an already-established connection. desired is the protocol
// version the client would prefer to speak (V2 unless the caller has a
// reason to pin V1); stateful marks whether conn supports more than one
// request/response round trip without being re-opened.
func New(conn io.ReadWriteCloser, mode Mode, ep Endpoint, desired Version, stateful bool) *Transport {
	return &Transport{conn: conn, mode: mode, endpoint: ep, desired: desired, stateful: stateful}
}

// ToURL renders the endpoint as a display string, not a literal
// reconnect URL (Transport doesn't own dialing).
func (t *Transport) ToURL() string {
	host := t.endpoint.Host
	if t.endpoint.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, t.endpoint.Port)
	}
	return fmt.Sprintf("%s://%s%s", t.endpoint.Scheme, host, t.endpoint.Path)
}

// DesiredProtocolVersion reports the version this Transport asked the
// remote to speak.
func (t *Transport) DesiredProtocolVersion() Version { return t.desired }

// IsStateful reports whether the underlying connection supports more
// than one Handshake/Request cycle.
func (t *Transport) IsStateful() bool { return t.stateful }

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// daemonLine renders the leading Daemon-mode request line for service
// against path, optionally requesting a protocol version.
func daemonLine(service, path, host string, port int, desired Version) []byte {
	hostPart := host
	if port != 0 {
		hostPart = fmt.Sprintf("%s:%d", host, port)
	}
	line := fmt.Sprintf("%s %s\x00host=%s\x00", service, path, hostPart)
	if desired > VersionV0 {
		line += "\x00" + desired.Parameter() + "\x00"
	}
	return []byte(line)
}

// Handshake performs the version/capability detection described in
// 4.7: in Daemon mode it first writes the connection line; it then
// peeks the first line of the reply to decide V1 vs V2, and parses
// capabilities (and, for V1/V0, the ref advertisement) accordingly.
// refs is nil under V2 (capability-only advertisement; refs are
// obtained via a later ls-refs command, out of scope for this package).
func (t *Transport) Handshake(ctx context.Context, service string) (Version, *Capabilities, [][]byte, error) {
	if t.mode == Daemon {
		line := daemonLine(service, t.endpoint.Path, t.endpoint.Host, t.endpoint.Port, t.desired)
		if _, err := t.conn.Write(line); err != nil {
			return VersionUnknown, nil, nil, fmt.Errorf("transport: writing daemon line: %w", err)
		}
		trace.Transport.Printf("daemon: wrote %q", line)
	}

	if t.r == nil {
		t.r = bufio.NewReader(t.conn)
	}
	pr := pktline.NewReader(t.r, pktline.StopOnFlush)

	status, first, err := pr.PeekLine()
	if err != nil {
		return VersionUnknown, nil, nil, fmt.Errorf("transport: reading first line: %w", err)
	}
	if status == pktline.Flush {
		return VersionUnknown, nil, nil, fmt.Errorf("%w: empty advertisement", ErrUnsupportedVersion)
	}

	version := sniffVersion(string(first))
	trace.Transport.Printf("handshake: detected %s", version)

	switch version {
	case VersionV2:
		return t.handshakeV2(pr)
	default:
		return t.handshakeV1(pr)
	}
}

func (t *Transport) handshakeV2(pr *pktline.Reader) (Version, *Capabilities, [][]byte, error) {
	// consume the "version 2" line already peeked
	if _, _, err := pr.ReadLine(); err != nil {
		return VersionUnknown, nil, nil, err
	}

	caps := NewCapabilities()
	for {
		status, line, err := pr.ReadLine()
		if err != nil {
			return VersionUnknown, nil, nil, fmt.Errorf("transport: reading v2 capabilities: %w", err)
		}
		if status == pktline.Flush {
			break
		}
		ParseV2Line(caps, line)
	}

	t.version = VersionV2
	t.caps = caps
	return VersionV2, caps, nil, nil
}

func (t *Transport) handshakeV1(pr *pktline.Reader) (Version, *Capabilities, [][]byte, error) {
	var refs [][]byte
	var caps *Capabilities

	status, line, err := pr.ReadLine()
	if err != nil {
		return VersionUnknown, nil, nil, fmt.Errorf("transport: reading v1 first ref: %w", err)
	}
	if status != pktline.Flush {
		c, ref, err := ParseV1(line)
		if err != nil {
			return VersionUnknown, nil, nil, fmt.Errorf("transport: parsing v1 capabilities: %w", err)
		}
		caps = c
		if len(ref) > 0 {
			refs = append(refs, ref)
		}
	}
	if caps == nil {
		caps = NewCapabilities()
	}

	for status != pktline.Flush {
		status, line, err = pr.ReadLine()
		if err != nil {
			return VersionUnknown, nil, nil, fmt.Errorf("transport: reading v1 refs: %w", err)
		}
		if status == pktline.Flush {
			break
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		refs = append(refs, cp)
	}

	t.version = VersionV1
	t.caps = caps
	return VersionV1, caps, refs, nil
}

// Request opens a new request on this connection. writeMode selects how
// the caller's Write calls are framed (Binary for pack data,
// OneLFTerminatedLinePerWriteCall for command/argument lines). progress,
// if non-nil, receives band-2 payloads once IntoRead's returned reader
// is read from; band-3 payloads always surface as a returned error.
func (t *Transport) Request(writeMode pktline.Mode, progress io.Writer) (*RequestWriter, error) {
	if t.r == nil {
		return nil, ErrNotConnected
	}
	return &RequestWriter{
		w:        pktline.NewWriter(t.conn, writeMode),
		r:        t.r,
		progress: progress,
	}, nil
}
