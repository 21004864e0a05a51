package packfile

import "errors"

// ErrInvalidDelta is returned when a delta instruction stream is
// malformed or its recorded sizes don't match the base/target actually
// supplied.
var ErrInvalidDelta = errors.New("packfile: invalid delta")

// maxCopySize is the copy-size implied when a copy instruction's size
// bits are all zero: git special-cases this as 0x10000 rather than 0,
// since a zero-length copy is never useful.
const maxCopySize = 0x10000

// ApplyDelta reconstructs a target object's content by applying delta's
// copy/insert instructions against base. delta is the raw instruction
// stream recorded in a TypeOfsDelta/TypeRefDelta entry's Content.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	srcSz, rest := decodeLEB128(delta)
	if rest == nil {
		return nil, ErrInvalidDelta
	}
	if srcSz != uint64(len(base)) {
		return nil, ErrInvalidDelta
	}

	targetSz, rest := decodeLEB128(rest)

	dst := make([]byte, 0, targetSz)
	for len(rest) > 0 {
		cmd := rest[0]
		rest = rest[1:]

		switch {
		case cmd&0x80 != 0:
			// Copy instruction: bits 0-3 select which offset bytes follow,
			// bits 4-6 select which size bytes follow, least significant first.
			var offset, size uint64
			for i, bit := range []byte{0x01, 0x02, 0x04, 0x08} {
				if cmd&bit != 0 {
					if len(rest) == 0 {
						return nil, ErrInvalidDelta
					}
					offset |= uint64(rest[0]) << (8 * i)
					rest = rest[1:]
				}
			}
			for i, bit := range []byte{0x10, 0x20, 0x40} {
				if cmd&bit != 0 {
					if len(rest) == 0 {
						return nil, ErrInvalidDelta
					}
					size |= uint64(rest[0]) << (8 * i)
					rest = rest[1:]
				}
			}
			if size == 0 {
				size = maxCopySize
			}
			if offset+size < offset || offset+size > srcSz {
				return nil, ErrInvalidDelta
			}
			dst = append(dst, base[offset:offset+size]...)

		case cmd != 0:
			// Insert instruction: cmd itself is the literal byte count.
			n := int(cmd)
			if n > len(rest) {
				return nil, ErrInvalidDelta
			}
			dst = append(dst, rest[:n]...)
			rest = rest[n:]

		default:
			return nil, ErrDeltaCmd
		}
	}

	if uint64(len(dst)) != targetSz {
		return nil, ErrInvalidDelta
	}
	return dst, nil
}

// ErrDeltaCmd is returned when a delta instruction byte is the reserved
// value 0x00, which git never emits.
var ErrDeltaCmd = errors.New("packfile: invalid delta command byte")
