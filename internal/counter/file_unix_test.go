//go:build !windows

package counter

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/salawat/internal/errors"
)

func TestFileStore_BusyWhileAnotherProcessHoldsLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	s := openFileStore(t, path, WithLockTimeout(50*time.Millisecond))

	// A second descriptor stands in for another process.
	other, err := os.OpenFile(path+".lock", os.O_RDWR, 0600)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, syscall.Flock(int(other.Fd()), syscall.LOCK_EX))

	_, err = s.Apply(context.Background(), 1)
	require.True(t, errors.Is(err, errors.ErrBusy), "got %v", err)

	require.NoError(t, syscall.Flock(int(other.Fd()), syscall.LOCK_UN))

	got, err := s.Apply(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
}

func TestFileStore_TwoHandlesShareTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	a := openFileStore(t, path)
	b := openFileStore(t, path)

	_, err := a.Apply(context.Background(), 10)
	require.NoError(t, err)
	got, err := b.Apply(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, int64(15), got)
}
