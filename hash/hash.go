// Package hash provides the 20-byte object identifier used throughout
// gitcore: hex codec, ordering, and the hasher that backs every object,
// pack and index checksum.
package hash

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/pjbgf/sha1cd"
)

// Size is the length in bytes of a SHA-1 digest.
const Size = 20

// HexSize is the length of the hexadecimal representation of a digest.
const HexSize = Size * 2

// ErrInvalidHex is returned when decoding a string that isn't exactly
// HexSize characters long.
var ErrInvalidHex = errors.New("hash: invalid hex length")

// Zero is the all-zero digest, git's sentinel "null" object id.
var Zero ID

// ID is a fixed-width object identifier. The zero value is the null hash.
type ID [Size]byte

// FromHex decodes a 40 hex-digit string into an ID. The input must be
// exactly HexSize characters; anything else is rejected (unlike git's
// porcelain, gitcore never accepts abbreviated hashes at this layer).
func FromHex(s string) (ID, error) {
	var id ID
	if len(s) != HexSize {
		return id, fmt.Errorf("%w: got %d", ErrInvalidHex, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("hash: decode hex: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// FromBytes copies a raw 20-byte digest into an ID. It panics if b isn't
// exactly Size bytes long, mirroring the teacher's array-backed hash type.
func FromBytes(b []byte) ID {
	if len(b) != Size {
		panic(fmt.Sprintf("hash: FromBytes: want %d bytes, got %d", Size, len(b)))
	}
	var id ID
	copy(id[:], b)
	return id
}

// String returns the lower-case hexadecimal representation of id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw digest bytes.
func (id ID) Bytes() []byte {
	return id[:]
}

// IsZero reports whether id is the all-zero sentinel.
func (id ID) IsZero() bool {
	return id == Zero
}

// Compare orders id against another raw digest, bytewise.
func (id ID) Compare(b []byte) int {
	return bytes.Compare(id[:], b)
}

// Less reports whether id sorts before other.
func (id ID) Less(other ID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// HasPrefix reports whether id's raw bytes start with prefix.
func (id ID) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(id[:], prefix)
}

// Sort sorts a slice of IDs in increasing order.
func Sort(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Hasher wraps the collision-detecting SHA-1 implementation used for every
// object id, pack trailer and index trailer computed by gitcore.
type Hasher struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	}
}

// NewHasher returns a ready-to-use Hasher.
func NewHasher() Hasher {
	return Hasher{h: sha1cd.New()}
}

// New returns a stdlib hash.Hash compatible SHA-1 implementation, for
// callers that need the hash.Hash interface directly rather than the
// ID-returning Hasher.
func New() interface {
	Write([]byte) (int, error)
	Sum([]byte) []byte
	Reset()
	Size() int
	BlockSize() int
} {
	return sha1cd.New()
}

// Write feeds more bytes into the running hash.
func (h Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Reset clears the running hash so the Hasher can be reused.
func (h Hasher) Reset() { h.h.Reset() }

// Sum returns the ID for everything written so far, without resetting.
func (h Hasher) Sum() ID {
	return FromBytes(h.h.Sum(nil))
}

// CryptoType identifies the hash algorithm gitcore objects are keyed by.
const CryptoType = crypto.SHA1
