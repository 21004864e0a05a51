package idxfile_test

import (
	"bytes"
	"testing"

	"github.com/forgectl/gitcore/format/idxfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustID(s string) hash.ID {
	id, err := hash.FromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

func TestBuildEncodeDecodeRoundTrip(t *testing.T) {
	var b idxfile.Builder
	b.Add(mustID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), 12, 0x1111)
	b.Add(mustID("000000000000000000000000000000000000000a"), 4, 0x2222)
	b.Add(mustID("ffffffffffffffffffffffffffffffffffffffff"), 900, 0x3333)
	b.PackfileChecksum = mustID("1234567812345678123456781234567812345678")

	idx := b.Build()
	assert.Equal(t, 3, idx.Count())

	var buf bytes.Buffer
	_, err := idxfile.Encode(&buf, idx)
	require.NoError(t, err)

	decoded, err := idxfile.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Count())
	assert.Equal(t, idx.PackfileChecksum, decoded.PackfileChecksum)

	off, err := decoded.FindOffset(mustID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
	assert.EqualValues(t, 12, off)

	crc, err := decoded.FindCRC32(mustID("ffffffffffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	assert.EqualValues(t, 0x3333, crc)

	assert.True(t, decoded.Contains(mustID("000000000000000000000000000000000000000a")))
	assert.False(t, decoded.Contains(mustID("9999999999999999999999999999999999999999")))
}

func TestFindOffsetNotFound(t *testing.T) {
	var b idxfile.Builder
	b.Add(mustID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), 1, 0)
	idx := b.Build()

	_, err := idx.FindOffset(mustID("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
	assert.Error(t, err)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := idxfile.Decode(bytes.NewReader([]byte("not an index file at all, padded out long enough to pass the size check maybe")))
	assert.ErrorIs(t, err, idxfile.ErrInvalidIndex)
}

func TestLargeOffsetsUse64Bit(t *testing.T) {
	var b idxfile.Builder
	b.Add(mustID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), 0x1_0000_0000, 1)
	idx := b.Build()

	var buf bytes.Buffer
	_, err := idxfile.Encode(&buf, idx)
	require.NoError(t, err)

	decoded, err := idxfile.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	off, err := decoded.FindOffset(mustID("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
	assert.EqualValues(t, 0x1_0000_0000, off)
}

func TestEntriesByOffsetOrder(t *testing.T) {
	var b idxfile.Builder
	b.Add(mustID("ffffffffffffffffffffffffffffffffffffffff"), 100, 0)
	b.Add(mustID("000000000000000000000000000000000000000a"), 10, 0)
	idx := b.Build()

	it := idx.EntriesByOffset()
	first, err := it.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 10, first.Offset)

	second, err := it.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 100, second.Offset)
}
