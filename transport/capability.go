package transport

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrNoService is returned when a V1 advertisement's first ref line has
// no NUL byte separating the ref from its capability tail.
var ErrNoService = errors.New("transport: missing capability separator")

// Capabilities holds the set of capabilities a server advertised, in
// either their V1 (null-byte, tail-of-first-ref-line) or V2
// (newline-delimited until flush) encodings. Order is preserved so a
// client can re-emit capabilities the same way it read them.
type Capabilities struct {
	names  []string
	values map[string][]string
}

func newCapabilities() *Capabilities {
	return &Capabilities{values: make(map[string][]string)}
}

func (c *Capabilities) add(entry string) {
	name, value, hasValue := strings.Cut(entry, "=")
	if _, ok := c.values[name]; !ok {
		c.names = append(c.names, name)
	}
	if hasValue {
		c.values[name] = append(c.values[name], strings.Fields(value)...)
	} else if _, ok := c.values[name]; !ok {
		c.values[name] = nil
	}
}

// Supports reports whether name was advertised at all.
func (c *Capabilities) Supports(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Values returns every value associated with name (nil, not an error, if
// name was advertised with no value or not advertised at all).
func (c *Capabilities) Values(name string) []string {
	return c.values[name]
}

// Names returns every advertised capability name, in advertisement order.
func (c *Capabilities) Names() []string {
	return c.names
}

// ParseV1 parses a V1/V0 advertisement's first ref line: "<hex-id> SP
// <ref>\0<cap> <cap>...". It returns the capabilities and the ref line
// with the NUL and capability tail stripped.
func ParseV1(line []byte) (*Capabilities, []byte, error) {
	i := bytes.IndexByte(line, 0)
	if i < 0 {
		return nil, nil, ErrNoService
	}
	ref := line[:i]
	tail := string(line[i+1:])

	caps := newCapabilities()
	for _, entry := range strings.Fields(tail) {
		caps.add(entry)
	}
	return caps, ref, nil
}

// ParseV2Line folds one capability-advertisement line (as read until
// flush by the caller) into caps.
func ParseV2Line(caps *Capabilities, line []byte) {
	caps.add(strings.TrimRight(string(line), "\n"))
}

// NewCapabilities returns an empty capability set, for callers building
// one up line by line (e.g. ParseV2Line) or from scratch for a request.
func NewCapabilities() *Capabilities {
	return newCapabilities()
}

// Encode renders the capability set back into its V1 tail-of-ref-line
// form (space-separated "name" or "name=value1 value2" tokens, in
// advertisement order), for re-advertising or request construction.
func (c *Capabilities) Encode() string {
	var b strings.Builder
	for i, name := range c.names {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
		if vals := c.values[name]; len(vals) > 0 {
			fmt.Fprintf(&b, "=%s", strings.Join(vals, " "))
		}
	}
	return b.String()
}
