package ref

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"
)

// LockFailMode controls what happens when a ref's ".lock" file already
// exists: fail immediately, or retry a fixed number of times with a
// fixed backoff between attempts.
type LockFailMode struct {
	Retries int
	Backoff time.Duration
}

// Immediate fails on the first sign of contention.
var Immediate = LockFailMode{}

// Retry waits backoff between up to n additional attempts before giving up.
func Retry(n int, backoff time.Duration) LockFailMode {
	return LockFailMode{Retries: n, Backoff: backoff}
}

// ErrLockHeld is returned when a ref's lock file could not be acquired
// within the configured LockFailMode.
var ErrLockHeld = errors.New("ref: lock held by another writer")

// lockFile is a ref's "<path>.lock" staging file: created with O_EXCL so
// two writers can never both hold it, written to (for updates) while
// held, and either renamed into place (commit) or removed (release) once
// the transaction knows its fate.
type lockFile struct {
	fs   billy.Filesystem
	path string
	f    billy.File
}

func lockPath(refPath string) string { return refPath + ".lock" }

// acquireLock creates refPath's lock file, retrying per mode if it's
// already held.
func acquireLock(fs billy.Filesystem, refPath string, mode LockFailMode) (*lockFile, error) {
	if dir := path.Dir(refPath); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ref: creating %s: %w", dir, err)
		}
	}

	lp := lockPath(refPath)
	attempts := mode.Retries + 1
	for i := 0; i < attempts; i++ {
		f, err := fs.OpenFile(lp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err == nil {
			return &lockFile{fs: fs, path: lp, f: f}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if i == attempts-1 {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, refPath)
		}
		time.Sleep(mode.Backoff)
	}
	return nil, fmt.Errorf("%w: %s", ErrLockHeld, refPath)
}

// writeAndClose writes content to the lock's staging file and closes the
// handle. The lock file itself (and therefore the lock) remains on disk
// until commit or release.
func (l *lockFile) writeAndClose(content []byte) error {
	if _, err := l.f.Write(content); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

// commit renames the lock file into place as refPath, making the write
// visible and releasing the lock in one atomic step.
func (l *lockFile) commit(refPath string) error {
	return l.fs.Rename(l.path, refPath)
}

// release discards the lock without publishing any content — used for
// deletes (the lock only ever existed to block concurrent writers) and
// for rollback after a failed prepare.
func (l *lockFile) release() error {
	_ = l.f.Close()
	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
