package ref

import (
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockCreatesLockFile(t *testing.T) {
	fs := memfs.New()

	lk, err := acquireLock(fs, "refs/heads/main", Immediate)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main.lock", lk.path)

	_, err = fs.Stat("refs/heads/main.lock")
	require.NoError(t, err)
}

func TestAcquireLockImmediateFailsWhenHeld(t *testing.T) {
	fs := memfs.New()

	_, err := acquireLock(fs, "refs/heads/main", Immediate)
	require.NoError(t, err)

	_, err = acquireLock(fs, "refs/heads/main", Immediate)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestAcquireLockRetriesThenFails(t *testing.T) {
	fs := memfs.New()

	_, err := acquireLock(fs, "refs/heads/main", Immediate)
	require.NoError(t, err)

	start := time.Now()
	_, err = acquireLock(fs, "refs/heads/main", Retry(2, 5*time.Millisecond))
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestLockCommitRenamesIntoPlace(t *testing.T) {
	fs := memfs.New()

	lk, err := acquireLock(fs, "refs/heads/main", Immediate)
	require.NoError(t, err)
	require.NoError(t, lk.writeAndClose([]byte("da39a3ee5e6b4b0d3255bfef95601890afd80709\n")))

	require.NoError(t, lk.commit("refs/heads/main"))

	_, err = fs.Stat("refs/heads/main.lock")
	assert.True(t, os.IsNotExist(err))

	f, err := fs.Open("refs/heads/main")
	require.NoError(t, err)
	defer f.Close()
}

func TestLockReleaseRemovesLockFileOnly(t *testing.T) {
	fs := memfs.New()

	lk, err := acquireLock(fs, "refs/heads/main", Immediate)
	require.NoError(t, err)
	require.NoError(t, lk.release())

	_, err = fs.Stat("refs/heads/main.lock")
	assert.True(t, os.IsNotExist(err))
	_, err = fs.Stat("refs/heads/main")
	assert.True(t, os.IsNotExist(err))
}
