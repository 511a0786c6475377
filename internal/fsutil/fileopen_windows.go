//go:build windows

package fsutil

import (
	"context"
	"os"
	"time"
)

// OpenNoFollow opens a file for writing.
// On Windows, O_NOFOLLOW is not available. Symlink creation requires
// privileges there, and WriteAtomic still refuses a symlinked destination.
func OpenNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// LockExclusive is a no-op on Windows; callers serialize in-process only.
func LockExclusive(_ context.Context, _ *os.File, _ string, _ time.Time, _ time.Duration) error {
	return nil
}

func Unlock(_ *os.File) error {
	return nil
}

// SyncDir is a no-op: Windows cannot open a directory for fsync.
func SyncDir(_ string) error {
	return nil
}
