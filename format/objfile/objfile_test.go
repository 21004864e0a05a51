package objfile_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/forgectl/gitcore/format/objfile"
	"github.com/forgectl/gitcore/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	content := []byte("hello world\n")

	var buf bytes.Buffer
	w := objfile.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(object.KindBlob, int64(len(content))))
	_, err := w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	wantHash := w.Hash()

	r, err := objfile.NewReader(&buf)
	require.NoError(t, err)
	kind, size, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, object.KindBlob, kind)
	assert.Equal(t, int64(len(content)), size)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, wantHash, r.Hash())
	require.NoError(t, r.Close())
}

func TestReadEmptyIsError(t *testing.T) {
	_, err := objfile.NewReader(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestReadGarbageIsError(t *testing.T) {
	_, err := objfile.NewReader(bytes.NewReader([]byte("not zlib at all")))
	assert.Error(t, err)
}

func TestWriteRejectsOversizedContent(t *testing.T) {
	var buf bytes.Buffer
	w := objfile.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(object.KindBlob, 3))
	_, err := w.Write([]byte("toolong"))
	assert.Error(t, err)
}
