package ref

import (
	"bytes"
	"fmt"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
)

// LogLine is one decoded reflog entry: "<old-hex> <new-hex> <signature>\t<message>\n".
// A present-but-empty message (a trailing tab with nothing after it, with
// or without a following newline) decodes to an empty Message in both
// forms — the tab separator is what's required, not the newline.
type LogLine struct {
	Previous  hash.ID
	New       hash.ID
	Signature object.Signature
	Message   string
}

// FormatLine renders l as one reflog line, including its trailing
// newline.
func FormatLine(l LogLine) string {
	return fmt.Sprintf("%s %s %s\t%s\n", l.Previous, l.New, l.Signature, l.Message)
}

// ParseLine decodes a single reflog line (with or without its trailing
// newline already stripped). The grammar is
// "<old-hexsha> <new-hexsha> <name> <<email>> <timestamp> <tz>\t<message>";
// the tab and everything after it is optional only when there is no
// message at all.
func ParseLine(b []byte) (LogLine, error) {
	b = bytes.TrimSuffix(b, []byte("\n"))

	fields := bytes.SplitN(b, []byte(" "), 3)
	if len(fields) != 3 {
		return LogLine{}, fmt.Errorf("ref: malformed reflog line: %q", b)
	}

	prev, err := hash.FromHex(string(fields[0]))
	if err != nil {
		return LogLine{}, fmt.Errorf("ref: reflog previous id: %w", err)
	}
	next, err := hash.FromHex(string(fields[1]))
	if err != nil {
		return LogLine{}, fmt.Errorf("ref: reflog new id: %w", err)
	}

	rest := fields[2]
	var sigPart, message []byte
	if tab := bytes.IndexByte(rest, '\t'); tab >= 0 {
		sigPart, message = rest[:tab], rest[tab+1:]
	} else {
		sigPart = rest
	}

	sig, err := object.ParseSignature(sigPart)
	if err != nil {
		return LogLine{}, fmt.Errorf("ref: reflog signature: %w", err)
	}

	return LogLine{Previous: prev, New: next, Signature: sig, Message: string(message)}, nil
}
