package transport

import "strings"

// Version identifies which wire protocol a connection is speaking.
type Version int

const (
	VersionUnknown Version = iota - 1
	VersionV0
	VersionV1
	VersionV2
)

func (v Version) String() string {
	switch v {
	case VersionV0:
		return "version 0"
	case VersionV1:
		return "version 1"
	case VersionV2:
		return "version 2"
	default:
		return "unknown"
	}
}

// Parameter renders v as the "version=N" token sent in a Daemon
// connection line or a GIT_PROTOCOL-style environment string.
func (v Version) Parameter() string {
	if v < VersionV0 {
		return ""
	}
	return "version=" + string(rune('0'+int(v)))
}

// sniffVersion applies the first-line detection rule: a line that both
// begins with "version " and ends with " 2" selects V2; every other
// case, including an explicit "version 1" line and the absence of any
// version line at all, selects V1. A client that asked for V2 and sees
// V1 here downgrades transparently rather than failing. A trailing
// newline on the line is ignored.
func sniffVersion(firstLine string) Version {
	firstLine = strings.TrimSuffix(firstLine, "\n")
	if strings.HasPrefix(firstLine, "version ") && strings.HasSuffix(firstLine, " 2") {
		return VersionV2
	}
	return VersionV1
}
