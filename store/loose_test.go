package store_test

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgectl/gitcore/object"
	"github.com/forgectl/gitcore/store"
)

func TestLoosePutGetRoundTrip(t *testing.T) {
	fs := memfs.New()
	l := store.NewLoose(fs, "objects")

	content := []byte("blob content\n")
	id, err := l.Put(object.KindBlob, content)
	require.NoError(t, err)

	ok, err := l.Has(id)
	require.NoError(t, err)
	assert.True(t, ok)

	kind, got, err := l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, object.KindBlob, kind)
	assert.Equal(t, content, got)
}

func TestLoosePutIsIdempotent(t *testing.T) {
	fs := memfs.New()
	l := store.NewLoose(fs, "objects")

	content := []byte("same content twice")
	id1, err := l.Put(object.KindBlob, content)
	require.NoError(t, err)
	id2, err := l.Put(object.KindBlob, content)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestLooseHasMissing(t *testing.T) {
	fs := memfs.New()
	l := store.NewLoose(fs, "objects")

	var missing [20]byte
	for i := range missing {
		missing[i] = 0xab
	}
	ok, err := l.Has(missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLooseGetMissingReturnsErrNotFound(t *testing.T) {
	fs := memfs.New()
	l := store.NewLoose(fs, "objects")

	var missing [20]byte
	_, _, err := l.Get(missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLooseIDsListsEverythingWritten(t *testing.T) {
	fs := memfs.New()
	l := store.NewLoose(fs, "objects")

	id1, err := l.Put(object.KindBlob, []byte("one"))
	require.NoError(t, err)
	id2, err := l.Put(object.KindTree, []byte("100644 a\x00"+string(make([]byte, 20))))
	require.NoError(t, err)

	ids, err := l.IDs()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, id1)
	assert.Contains(t, ids, id2)
}

func TestLooseIDsEmptyBeforeAnyWrite(t *testing.T) {
	fs := memfs.New()
	l := store.NewLoose(fs, "objects")

	ids, err := l.IDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
