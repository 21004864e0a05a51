package object

import (
	"bytes"
	"fmt"
	"strconv"
)

// Sign is the explicit sign of a signature's UTC offset. It is tracked
// separately from the numeric offset so that "-0000" (zero offset, minus
// sign) survives a parse/format round-trip, which a plain signed integer
// cannot represent.
type Sign int8

const (
	Plus Sign = iota
	Minus
)

// Signature is a commit or tag author/committer/tagger line: a name, an
// email, and a time expressed as seconds since the epoch plus a signed
// zone offset in seconds.
type Signature struct {
	Name    string
	Email   string
	Seconds int64 // seconds since the Unix epoch
	Offset  int   // offset from UTC, in seconds, unsigned magnitude
	Sign    Sign
}

// illegal characters that would break the "Name <Email> seconds tz" grammar
// if allowed to appear in Name or Email.
const illegalSigChars = "<>\n"

// Validate reports whether s can be serialized: Name and Email must not
// contain '<', '>' or '\n'.
func (s Signature) Validate() error {
	if bytes.ContainsAny([]byte(s.Name), illegalSigChars) {
		return &DecodeError{Context: "signature", Input: []byte(s.Name), Reason: "name contains illegal character"}
	}
	if bytes.ContainsAny([]byte(s.Email), illegalSigChars) {
		return &DecodeError{Context: "signature", Input: []byte(s.Email), Reason: "email contains illegal character"}
	}
	return nil
}

// FormatTime renders the "<seconds> (+|-)HHMM" suffix of a signature line.
// HH and MM are always two digits; the sign is taken from sign, not from
// the sign of offset, so a zero offset with sign=Minus renders "-0000".
func FormatTime(seconds int64, offset int, sign Sign) string {
	if offset < 0 {
		offset = -offset
	}
	hh := offset / 3600
	mm := (offset % 3600) / 60
	sc := '+'
	if sign == Minus {
		sc = '-'
	}
	return fmt.Sprintf("%d %c%02d%02d", seconds, sc, hh, mm)
}

// String renders the full "Name <Email> seconds tz" signature line.
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %s", s.Name, s.Email, FormatTime(s.Seconds, s.Offset, s.Sign))
}

// ParseSignature parses a "Name <Email> seconds (+|-)HHMM" line. It is
// tolerant of a missing timestamp or timezone, but a timestamp or timezone
// that is present and malformed is an error, as is a broken Name/Email/
// angle bracket structure.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature

	lt := bytes.IndexByte(b, '<')
	if lt < 0 {
		return sig, &DecodeError{Context: "signature", Input: b, Reason: "missing '<'"}
	}
	gt := bytes.IndexByte(b[lt:], '>')
	if gt < 0 {
		return sig, &DecodeError{Context: "signature", Input: b, Reason: "missing '>'"}
	}
	gt += lt

	sig.Name = string(bytes.TrimSpace(b[:lt]))
	sig.Email = string(b[lt+1 : gt])

	rest := bytes.TrimSpace(b[gt+1:])
	if len(rest) == 0 {
		return sig, nil
	}

	fields := bytes.Fields(rest)
	if len(fields) >= 1 {
		secs, err := strconv.ParseInt(string(fields[0]), 10, 64)
		if err != nil {
			return sig, &DecodeError{Context: "signature", Input: fields[0], Reason: "invalid timestamp"}
		}
		sig.Seconds = secs
	}
	if len(fields) >= 2 {
		tz := fields[1]
		if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
			return sig, &DecodeError{Context: "signature", Input: tz, Reason: "invalid timezone"}
		}
		if tz[0] == '-' {
			sig.Sign = Minus
		} else {
			sig.Sign = Plus
		}
		hh, err1 := strconv.Atoi(string(tz[1:3]))
		mm, err2 := strconv.Atoi(string(tz[3:5]))
		if err1 != nil || err2 != nil {
			return sig, &DecodeError{Context: "signature", Input: tz, Reason: "invalid timezone digits"}
		}
		sig.Offset = hh*3600 + mm*60
	}

	return sig, nil
}
