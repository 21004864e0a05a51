package store_test

import (
	"bytes"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgectl/gitcore/format/idxfile"
	"github.com/forgectl/gitcore/format/packfile"
	"github.com/forgectl/gitcore/object"
	"github.com/forgectl/gitcore/store"
)

func TestCompoundFindsLooseObject(t *testing.T) {
	fs := memfs.New()
	c, err := store.Open(fs, "objects")
	require.NoError(t, err)
	defer c.Close()

	content := []byte("loose via compound\n")
	id, err := c.Put(object.KindBlob, content)
	require.NoError(t, err)

	ok, err := c.Has(id)
	require.NoError(t, err)
	assert.True(t, ok)

	kind, got, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, object.KindBlob, kind)
	assert.Equal(t, content, got)
}

func TestCompoundFindsPackedObject(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("objects/pack", 0o755))

	content := []byte("packed via compound\n")

	var buf bytes.Buffer
	enc := packfile.NewEncoder(&buf)
	require.NoError(t, enc.WriteHeader(1))
	_, err := enc.WriteObject(packfile.ObjectToWrite{Type: packfile.TypeBlob, Content: content})
	require.NoError(t, err)
	_, err = enc.Finish()
	require.NoError(t, err)

	s := packfile.NewScanner(bytes.NewReader(buf.Bytes()))
	_, err = s.ReadHeader()
	require.NoError(t, err)
	entry, err := s.Next()
	require.NoError(t, err)

	id := computeObjectID(t, object.KindBlob, content)

	var b idxfile.Builder
	b.Add(id, uint64(entry.Offset), entry.CRC32)
	idx := b.Build()

	var idxBuf bytes.Buffer
	_, err = idxfile.Encode(&idxBuf, idx)
	require.NoError(t, err)

	f, err := fs.Create("objects/pack/pack-0001.pack")
	require.NoError(t, err)
	_, err = f.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := fs.Create("objects/pack/pack-0001.idx")
	require.NoError(t, err)
	_, err = fi.Write(idxBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, fi.Close())

	c, err := store.Open(fs, "objects")
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.Has(id)
	require.NoError(t, err)
	assert.True(t, ok)

	kind, got, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, object.KindBlob, kind)
	assert.Equal(t, content, got)
}

func TestCompoundResolvesAlternates(t *testing.T) {
	fs := memfs.New()

	altObjects := "alt-repo/objects"
	require.NoError(t, fs.MkdirAll(altObjects, 0o755))
	altLoose := store.NewLoose(fs, altObjects)
	content := []byte("object only in the alternate\n")
	id, err := altLoose.Put(object.KindBlob, content)
	require.NoError(t, err)

	require.NoError(t, fs.MkdirAll("objects/info", 0o755))
	af, err := fs.Create("objects/info/alternates")
	require.NoError(t, err)
	_, err = af.Write([]byte("../alt-repo/objects\n"))
	require.NoError(t, err)
	require.NoError(t, af.Close())

	c, err := store.Open(fs, "objects")
	require.NoError(t, err)
	defer c.Close()

	ok, err := c.Has(id)
	require.NoError(t, err)
	assert.True(t, ok)

	kind, got, err := c.Get(id)
	require.NoError(t, err)
	assert.Equal(t, object.KindBlob, kind)
	assert.Equal(t, content, got)
}

func TestCompoundGetMissingReturnsErrNotFound(t *testing.T) {
	fs := memfs.New()
	c, err := store.Open(fs, "objects")
	require.NoError(t, err)
	defer c.Close()

	var missing [20]byte
	_, _, err = c.Get(missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
