package hash_test

import (
	"testing"

	"github.com/forgectl/gitcore/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHex(t *testing.T) {
	const hex = "8ab686eafeb1f44702738c8b0f24f2567c36da6d"
	id, err := hash.FromHex(hex)
	require.NoError(t, err)
	assert.Equal(t, hex, id.String())
	assert.False(t, id.IsZero())
}

func TestFromHexInvalidLength(t *testing.T) {
	_, err := hash.FromHex("abcd")
	assert.ErrorIs(t, err, hash.ErrInvalidHex)
}

func TestZeroIsSentinel(t *testing.T) {
	assert.True(t, hash.Zero.IsZero())
	assert.Equal(t, "0000000000000000000000000000000000000000", hash.Zero.String())
}

func TestSort(t *testing.T) {
	a, _ := hash.FromHex("ffffffffffffffffffffffffffffffffffffffff")
	b, _ := hash.FromHex("0000000000000000000000000000000000000001")
	c := hash.Zero

	ids := []hash.ID{a, b, c}
	hash.Sort(ids)
	assert.Equal(t, []hash.ID{c, b, a}, ids)
}

func TestHasher(t *testing.T) {
	h := hash.NewHasher()
	_, err := h.Write([]byte("blob 0\x00"))
	require.NoError(t, err)
	sum := h.Sum()
	assert.False(t, sum.IsZero())

	// Known git hash for an empty blob.
	want, _ := hash.FromHex("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")
	assert.Equal(t, want, sum)
}
