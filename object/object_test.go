package object_test

import (
	"testing"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, s string) hash.ID {
	t.Helper()
	id, err := hash.FromHex(s)
	require.NoError(t, err)
	return id
}

func TestTreeRoundTrip(t *testing.T) {
	mt := object.MutableTree{
		Entries: []object.TreeEntry{
			{Mode: object.ModeRegular, Name: "README.md", ID: mustID(t, "8ab686eafeb1f44702738c8b0f24f2567c36da6d")},
			{Mode: object.ModeDir, Name: "cmd", ID: mustID(t, "0000000000000000000000000000000000000001")},
			{Mode: object.ModeExecutable, Name: "build.sh", ID: mustID(t, "0000000000000000000000000000000000000002")},
		},
	}
	mt.Sort()

	serialized := mt.Serialize()
	parsed, err := object.ParseTree(serialized)
	require.NoError(t, err)

	again := parsed.ToMutable()
	assert.Equal(t, serialized, again.Serialize())
	assert.Equal(t, mt.Entries, parsed.Entries)
}

func TestTreeSortOrder(t *testing.T) {
	// "foo" (file) sorts before "foo.c", but "foo" (dir) sorts after
	// "foo.c" because directory entries compare as though suffixed "/".
	mt := object.MutableTree{
		Entries: []object.TreeEntry{
			{Mode: object.ModeDir, Name: "foo", ID: mustID(t, "0000000000000000000000000000000000000001")},
			{Mode: object.ModeRegular, Name: "foo.c", ID: mustID(t, "0000000000000000000000000000000000000002")},
		},
	}
	mt.Sort()
	assert.Equal(t, "foo.c", mt.Entries[0].Name)
	assert.Equal(t, "foo", mt.Entries[1].Name)
}

func TestCommitRoundTripMultiParentAndExtraHeaders(t *testing.T) {
	mc := object.MutableCommit{
		Tree:    mustID(t, "8ab686eafeb1f44702738c8b0f24f2567c36da6d"),
		Parents: []hash.ID{mustID(t, "0000000000000000000000000000000000000001"), mustID(t, "0000000000000000000000000000000000000002")},
		Author: object.Signature{
			Name: "Ada Lovelace", Email: "ada@example.com",
			Seconds: 1618030561, Offset: 8 * 3600, Sign: object.Plus,
		},
		Committer: object.Signature{
			Name: "Ada Lovelace", Email: "ada@example.com",
			Seconds: 1618030561, Offset: 8 * 3600, Sign: object.Plus,
		},
		Extra: []object.ExtraHeader{
			{Name: "mergetag", Value: []byte("object deadbeef\ntype commit\ntag v1.0\n")},
		},
		Message: []byte("Merge branch 'release'\n"),
	}

	b, err := mc.Serialize()
	require.NoError(t, err)

	parsed, err := object.ParseCommit(b)
	require.NoError(t, err)

	again := parsed.ToMutable()
	b2, err := again.Serialize()
	require.NoError(t, err)
	assert.Equal(t, b, b2)

	assert.Len(t, parsed.Parents, 2)
	require.Len(t, parsed.Extra, 1)
	assert.Equal(t, "mergetag", parsed.Extra[0].Name)
	assert.Equal(t, []byte("object deadbeef\ntype commit\ntag v1.0\n"), parsed.Extra[0].Value)
}

func TestSignatureNegativeZeroOffsetRoundTrips(t *testing.T) {
	s := object.Signature{Name: "A", Email: "a@b.com", Seconds: 100, Offset: 0, Sign: object.Minus}
	line := s.String()
	assert.Contains(t, line, "-0000")

	parsed, err := object.ParseSignature([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, object.Minus, parsed.Sign)
	assert.Equal(t, 0, parsed.Offset)
}

func TestSignatureRejectsIllegalCharacters(t *testing.T) {
	mc := object.MutableCommit{
		Author:    object.Signature{Name: "evil <name", Email: "a@b.com"},
		Committer: object.Signature{Name: "ok", Email: "a@b.com"},
	}
	_, err := mc.Serialize()
	assert.Error(t, err)
}

func TestTagRoundTripWithPGPSignature(t *testing.T) {
	tagger := object.Signature{Name: "R", Email: "r@example.com", Seconds: 1, Offset: 0, Sign: object.Plus}
	mt := object.MutableTag{
		Target:     mustID(t, "8ab686eafeb1f44702738c8b0f24f2567c36da6d"),
		TargetKind: object.KindCommit,
		Name:       "v1.0.0",
		Tagger:     &tagger,
		Message:    []byte("release\n"),
		PGPSignature: []byte("-----BEGIN PGP SIGNATURE-----\nAAAA\n-----END PGP SIGNATURE-----\n"),
	}

	b, err := mt.Serialize()
	require.NoError(t, err)

	parsed, err := object.ParseTag(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("release\n"), parsed.Message)
	assert.NotNil(t, parsed.PGPSignature)

	again := parsed.ToMutable()
	b2, err := again.Serialize()
	require.NoError(t, err)
	assert.Equal(t, b, b2)
}
