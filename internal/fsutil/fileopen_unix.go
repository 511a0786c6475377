//go:build !windows

package fsutil

import (
	"context"
	stderrors "errors"
	"os"
	"syscall"
	"time"

	"github.com/hpungsan/salawat/internal/errors"
)

// lockPollInterval is how often a contended file lock is retried.
const lockPollInterval = 10 * time.Millisecond

// OpenNoFollow opens a file with O_NOFOLLOW so a planted symlink at the
// temp path is never written through. O_CLOEXEC prevents FD leaks across exec.
func OpenNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}

// LockExclusive takes an advisory flock on f, polling until deadline.
// op names the operation reported when ctx ends first.
func LockExclusive(ctx context.Context, f *os.File, op string, deadline time.Time, timeout time.Duration) error {
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, syscall.EWOULDBLOCK) && !stderrors.Is(err, syscall.EINTR) {
			return errors.NewPersistenceFailure("lock file", &os.PathError{Op: "flock", Path: f.Name(), Err: err})
		}
		if !time.Now().Before(deadline) {
			return errors.NewBusy(timeout.String())
		}

		select {
		case <-ctx.Done():
			return errors.NewCancelled(op, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

func Unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// SyncDir fsyncs a directory so a rename inside it survives power loss.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
