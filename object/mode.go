package object

import "fmt"

// FileMode is a tree entry's mode, one of the fixed set git recognizes.
type FileMode uint32

const (
	ModeDir        FileMode = 0o040000
	ModeRegular    FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeSubmodule  FileMode = 0o160000
)

// IsDir reports whether m is the tree (directory) mode.
func (m FileMode) IsDir() bool { return m == ModeDir }

// String renders the mode the way git's tree format does: plain octal,
// with no leading zero (so the directory mode 040000 is written "40000").
func (m FileMode) String() string {
	return fmt.Sprintf("%o", uint32(m))
}

// validModes is the fixed set of modes a tree entry may carry.
var validModes = map[FileMode]bool{
	ModeDir:        true,
	ModeRegular:    true,
	ModeExecutable: true,
	ModeSymlink:    true,
	ModeSubmodule:  true,
}

// ParseMode parses a tree entry's octal mode text, rejecting anything
// outside the fixed mode set.
func ParseMode(b []byte) (FileMode, error) {
	var m uint32
	for _, c := range b {
		if c < '0' || c > '7' {
			return 0, &DecodeError{Context: "tree mode", Input: b, Reason: "not octal"}
		}
		m = m*8 + uint32(c-'0')
	}
	fm := FileMode(m)
	if !validModes[fm] {
		return 0, &DecodeError{Context: "tree mode", Input: b, Reason: "unrecognized mode"}
	}
	return fm, nil
}
