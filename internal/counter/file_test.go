package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/salawat/internal/errors"
)

func openFileStore(t *testing.T, path string, opts ...Option) *FileStore {
	t.Helper()
	s, err := OpenFile(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenFile_PersistsInitialRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "counter.json")
	openFileStore(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err, "state must exist before the first read")

	var st map[string]any
	require.NoError(t, json.Unmarshal(data, &st))
	require.Equal(t, map[string]any{"total": float64(0)}, st)
}

func TestOpenFile_KeepsExistingRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"total": 250}`), 0600))

	s := openFileStore(t, path)
	total, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(250), total)
}

func TestFileStore_RecordIsHumanReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	s := openFileStore(t, path)

	_, err := s.Apply(context.Background(), -9007199254740993) // not representable as float64
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\n  \"total\": -9007199254740993\n}\n", string(data))
}

func TestFileStore_CorruptRecord(t *testing.T) {
	cases := map[string]string{
		"not json":       "total=5",
		"truncated":      `{"total": 1`,
		"missing total":  `{}`,
		"null total":     `{"total": null}`,
		"string total":   `{"total": "5"}`,
		"float total":    `{"total": 1.5}`,
		"exponent total": `{"total": 1e3}`,
		"out of range":   `{"total": 9223372036854775808}`,
		"trailing data":  `{"total": 1} {"total": 2}`,
		"empty file":     ``,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "counter.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
			s := openFileStore(t, path)

			_, err := s.Read(context.Background())
			require.True(t, errors.Is(err, errors.ErrCorruptState), "Read: got %v", err)

			_, err = s.Apply(context.Background(), 1)
			require.True(t, errors.Is(err, errors.ErrCorruptState), "Apply: got %v", err)

			// The corrupt record is left for an operator, not reset.
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Equal(t, content, string(data))
		})
	}
}

func TestFileStore_MissingRecordAfterOpenIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	s := openFileStore(t, path)
	require.NoError(t, os.Remove(path))

	_, err := s.Read(context.Background())
	require.True(t, errors.Is(err, errors.ErrCorruptState), "got %v", err)

	_, err = s.Apply(context.Background(), 1)
	require.True(t, errors.Is(err, errors.ErrCorruptState), "got %v", err)
}

func TestFileStore_FailedCommitKeepsPreviousRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counter.json")
	s := openFileStore(t, path)

	_, err := s.Apply(context.Background(), 40)
	require.NoError(t, err)

	s.rename = func(oldpath, newpath string) error {
		return fmt.Errorf("disk full")
	}

	_, err = s.Apply(context.Background(), 2)
	require.True(t, errors.Is(err, errors.ErrPersistenceFailure), "got %v", err)

	total, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(40), total)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file %s left behind", e.Name())
	}

	// Store recovers once storage does
	s.rename = os.Rename
	got, err := s.Apply(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, int64(42), got)
}

func TestFileStore_RefusesSymlinkedRecord(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "elsewhere.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"total": 3}`), 0600))
	path := filepath.Join(dir, "counter.json")
	if err := os.Symlink(target, path); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	s := openFileStore(t, path)
	_, err := s.Apply(context.Background(), 1)
	require.True(t, errors.Is(err, errors.ErrPersistenceFailure), "got %v", err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, `{"total": 3}`, string(data))
}
