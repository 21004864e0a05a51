package packfile_test

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/forgectl/gitcore/format/packfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPack(t *testing.T, objects []packfile.ObjectToWrite) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := packfile.NewEncoder(&buf)
	require.NoError(t, enc.WriteHeader(uint32(len(objects))))
	for _, o := range objects {
		_, err := enc.WriteObject(o)
		require.NoError(t, err)
	}
	_, err := enc.Finish()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestScannerRoundTripWholeObjects(t *testing.T) {
	blob := []byte("hello, pack file\n")
	tree := []byte("100644 file.txt\x00" + "aaaaaaaaaaaaaaaaaaaa")

	data := buildPack(t, []packfile.ObjectToWrite{
		{Type: packfile.TypeBlob, Content: blob},
		{Type: packfile.TypeTree, Content: []byte(tree)},
	})

	s := packfile.NewScanner(bytes.NewReader(data))
	hdr, err := s.ReadHeader()
	require.NoError(t, err)
	assert.EqualValues(t, 2, hdr.ObjectsQty)

	e1, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, packfile.TypeBlob, e1.Type)
	assert.Equal(t, blob, e1.Content)
	assert.EqualValues(t, len(packfile.Signature)+8, e1.Offset) // first entry follows the 12-byte header

	e2, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, packfile.TypeTree, e2.Type)
	assert.True(t, e2.Offset > e1.Offset)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)

	_, err = s.Finish()
	require.NoError(t, err)
}

func TestScannerRejectsBadSignature(t *testing.T) {
	s := packfile.NewScanner(bytes.NewReader([]byte("NOPE0000")))
	_, err := s.ReadHeader()
	assert.ErrorIs(t, err, packfile.ErrBadSignature)
}

func TestResolverAppliesOfsDeltaChain(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog")
	target := []byte("the quick brown fox leaps over the lazy dog")
	delta := packfile.EncodeDelta(base, target)

	entries := []*packfile.Entry{
		{Offset: 0, Type: packfile.TypeBlob, Content: base},
		{Offset: 100, Type: packfile.TypeOfsDelta, Content: delta, OffsetBase: 0},
	}
	r := packfile.NewResolver(entries, nil)
	kind, content, err := r.Resolve(100)
	require.NoError(t, err)
	assert.Equal(t, object.KindBlob, kind)
	assert.Equal(t, target, content)
}

func TestEncoderOfsDeltaRoundTripsThroughScanner(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog")
	target := []byte("the quick brown fox leaps over the lazy dog")
	delta := packfile.EncodeDelta(base, target)

	var buf bytes.Buffer
	enc := packfile.NewEncoder(&buf)
	require.NoError(t, enc.WriteHeader(2))
	baseOffset, err := enc.WriteObject(packfile.ObjectToWrite{Type: packfile.TypeBlob, Content: base})
	require.NoError(t, err)

	// A second pass is needed in practice to learn the delta entry's own
	// offset before computing OffsetBase; here the base is the very first
	// entry, right after the 12-byte header, so the delta entry starts at
	// the header size plus the base entry's encoded size.
	deltaOffset := int64(len(packfile.Signature)) + 8 // header size
	deltaOffset += encodedObjectSize(t, packfile.TypeBlob, base)

	_, err = enc.WriteObject(packfile.ObjectToWrite{
		Type:       packfile.TypeOfsDelta,
		Content:    delta,
		OffsetBase: deltaOffset - baseOffset,
	})
	require.NoError(t, err)
	_, err = enc.Finish()
	require.NoError(t, err)

	s := packfile.NewScanner(bytes.NewReader(buf.Bytes()))
	_, err = s.ReadHeader()
	require.NoError(t, err)
	first, err := s.Next()
	require.NoError(t, err)
	second, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	assert.Equal(t, io.EOF, err)

	r := packfile.NewResolver([]*packfile.Entry{first, second}, nil)
	kind, content, err := r.Resolve(second.Offset)
	require.NoError(t, err)
	assert.Equal(t, object.KindBlob, kind)
	assert.Equal(t, target, content)
}

// encodedObjectSize measures how many bytes WriteObject will emit for a
// whole object, by encoding it in isolation.
func encodedObjectSize(t *testing.T, typ packfile.Type, content []byte) int64 {
	t.Helper()
	var buf bytes.Buffer
	enc := packfile.NewEncoder(&buf)
	_, err := enc.WriteObject(packfile.ObjectToWrite{Type: typ, Content: content})
	require.NoError(t, err)
	return int64(buf.Len())
}

func TestResolverAppliesRefDelta(t *testing.T) {
	base := []byte("base content for ref-delta test")
	target := []byte("completely different target bytes")
	delta := packfile.EncodeDelta(base, target)

	baseID := hash.FromBytes(bytes.Repeat([]byte{0xaa}, 20))

	entries := []*packfile.Entry{
		{Offset: 0, Type: packfile.TypeCommit, Content: base},
		{Offset: 50, Type: packfile.TypeRefDelta, Content: delta, HashBase: baseID},
	}
	ids := map[int64]hash.ID{0: baseID}

	r := packfile.NewResolver(entries, ids)
	kind, content, err := r.Resolve(50)
	require.NoError(t, err)
	assert.Equal(t, object.KindCommit, kind)
	assert.Equal(t, target, content)
}

func TestApplyDeltaRejectsBadSourceSize(t *testing.T) {
	_, err := packfile.ApplyDelta([]byte("short"), packfile.EncodeDelta([]byte("a longer base"), []byte("target")))
	assert.ErrorIs(t, err, packfile.ErrInvalidDelta)
}

func TestVerifyWholeObjectPack(t *testing.T) {
	data := buildPack(t, []packfile.ObjectToWrite{
		{Type: packfile.TypeBlob, Content: []byte("one")},
		{Type: packfile.TypeBlob, Content: []byte("two")},
		{Type: packfile.TypeCommit, Content: []byte("tree xyz\nauthor a\ncommitter a\n\nmsg\n")},
	})

	stats, err := packfile.Verify(bytes.NewReader(data), packfile.VerifyLessTime)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ObjectCount)
	assert.Equal(t, 2, stats.BlobCount)
	assert.Equal(t, 1, stats.CommitCount)
	assert.Equal(t, 0, stats.DeltaCount)
}

func TestVerifyTracksDeltaChainHistogramAndLargestChain(t *testing.T) {
	base := []byte("base content for a chain of two deltas")
	mid := []byte("base content for a chain of two deltas, now extended once")
	leaf := []byte("base content for a chain of two deltas, now extended once and then twice")

	baseID := gitObjectID(t, object.KindBlob, base)
	midID := gitObjectID(t, object.KindBlob, mid)

	var buf bytes.Buffer
	enc := packfile.NewEncoder(&buf)
	require.NoError(t, enc.WriteHeader(3))

	_, err := enc.WriteObject(packfile.ObjectToWrite{Type: packfile.TypeBlob, Content: base})
	require.NoError(t, err)
	_, err = enc.WriteObject(packfile.ObjectToWrite{
		Type:     packfile.TypeRefDelta,
		Content:  packfile.EncodeDelta(base, mid),
		HashBase: baseID,
	})
	require.NoError(t, err)
	_, err = enc.WriteObject(packfile.ObjectToWrite{
		Type:     packfile.TypeRefDelta,
		Content:  packfile.EncodeDelta(mid, leaf),
		HashBase: midID,
	})
	require.NoError(t, err)

	_, err = enc.Finish()
	require.NoError(t, err)
	data := buf.Bytes()

	lessTime, err := packfile.Verify(bytes.NewReader(data), packfile.VerifyLessTime)
	require.NoError(t, err)
	lessMemory, err := packfile.Verify(bytes.NewReader(data), packfile.VerifyLessMemory)
	require.NoError(t, err)

	for _, stats := range []packfile.VerifyStats{lessTime, lessMemory} {
		assert.Equal(t, 3, stats.ObjectCount)
		assert.Equal(t, 2, stats.DeltaCount)
		assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, stats.DeltaChainHistogram)
		assert.Equal(t, 2, stats.LargestChainLength)
		assert.Equal(t, int64(len(leaf)), stats.LargestObjectSize)
	}
}

// gitObjectID replicates the "<kind> <size>\0<content>" SHA-1 every
// object store in this module computes, so a test can predict a
// REF_DELTA's HashBase before the object has actually been stored
// anywhere.
func gitObjectID(t *testing.T, kind object.Kind, content []byte) hash.ID {
	t.Helper()
	h := hash.NewHasher()
	_, err := h.Write(kind.Bytes())
	require.NoError(t, err)
	_, err = h.Write([]byte{' '})
	require.NoError(t, err)
	_, err = h.Write([]byte(fmt.Sprintf("%d", len(content))))
	require.NoError(t, err)
	_, err = h.Write([]byte{0})
	require.NoError(t, err)
	_, err = h.Write(content)
	require.NoError(t, err)
	return h.Sum()
}

func TestVerifyDetectsChecksumMismatch(t *testing.T) {
	data := buildPack(t, []packfile.ObjectToWrite{
		{Type: packfile.TypeBlob, Content: []byte("x")},
	})
	data[len(data)-1] ^= 0xff

	_, err := packfile.Verify(bytes.NewReader(data), packfile.VerifyLessMemory)
	assert.Error(t, err)
}
