package counter

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/salawat/internal/errors"
	"github.com/hpungsan/salawat/internal/fsutil"
)

// fileState is the on-disk record. Total is a pointer so a record without
// the field is detected instead of decoding as zero.
type fileState struct {
	Total *int64 `json:"total"`
}

// FileStore keeps the total in a small JSON file.
//
// Commits write a fresh temp file next to the state file, fsync it and rename
// it over the old one, so readers observe either the previous or the new
// record and an interrupted commit leaves the previous record intact.
// An advisory lock on <path>.lock serializes writers across processes.
type FileStore struct {
	path     string
	lockFile *os.File
	slot     slot
	opts     options

	// rename is os.Rename outside of tests.
	rename func(oldpath, newpath string) error
}

var _ Store = (*FileStore)(nil)

// OpenFile opens the state file at path, creating it with total 0 if it does not exist.
// An existing record is not decoded here; Read and Apply report corruption.
func OpenFile(path string, opts ...Option) (*FileStore, error) {
	o := applyOptions(opts)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewPersistenceFailure("create state directory", err)
	}

	lockFile, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.NewPersistenceFailure("open lock file", err)
	}

	s := &FileStore{
		path:     path,
		lockFile: lockFile,
		slot:     newSlot(),
		opts:     o,
		rename:   os.Rename,
	}

	if err := s.initialize(); err != nil {
		lockFile.Close()
		return nil, err
	}
	return s, nil
}

// initialize persists total 0 when no record exists yet.
func (s *FileStore) initialize() error {
	ctx := context.Background()
	if err := fsutil.LockExclusive(ctx, s.lockFile, "initialize", time.Now().Add(s.opts.lockTimeout), s.opts.lockTimeout); err != nil {
		return err
	}
	defer s.unlock()

	_, err := os.Lstat(s.path)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewPersistenceFailure("stat state file", err)
	}

	if err := s.commit(0); err != nil {
		return err
	}
	s.opts.logger.Info("initialized counter state", zap.String("path", s.path))
	return nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Read returns the committed total. It never waits for writers.
func (s *FileStore) Read(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelled("read", err)
	}
	return s.load()
}

// Apply adds delta under both the in-process slot and the cross-process file lock.
func (s *FileStore) Apply(ctx context.Context, delta int64) (int64, error) {
	deadline := time.Now().Add(s.opts.lockTimeout)

	if err := s.slot.acquire(ctx, s.opts.lockTimeout); err != nil {
		return 0, err
	}
	defer s.slot.release()

	if err := fsutil.LockExclusive(ctx, s.lockFile, "apply", deadline, s.opts.lockTimeout); err != nil {
		return 0, err
	}
	defer s.unlock()

	// From here on the commit completes regardless of ctx.
	total, err := s.load()
	if err != nil {
		return 0, err
	}
	next, err := addChecked(total, delta)
	if err != nil {
		return 0, err
	}
	if err := s.commit(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Close releases the lock file handle.
func (s *FileStore) Close() error {
	return s.lockFile.Close()
}

func (s *FileStore) unlock() {
	if err := fsutil.Unlock(s.lockFile); err != nil {
		s.opts.logger.Warn("failed to release state lock", zap.String("path", s.path), zap.Error(err))
	}
}

// load reads and decodes the durable record.
func (s *FileStore) load() (int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return 0, errors.NewCorruptState(s.path, fmt.Errorf("state file missing"))
		}
		return 0, errors.NewPersistenceFailure("read state", err)
	}
	return decodeState(s.path, data)
}

func decodeState(location string, data []byte) (int64, error) {
	var st fileState
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&st); err != nil {
		return 0, errors.NewCorruptState(location, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return 0, errors.NewCorruptState(location, fmt.Errorf("trailing data after record"))
	}
	if st.Total == nil {
		return 0, errors.NewCorruptState(location, fmt.Errorf("record has no total"))
	}
	return *st.Total, nil
}

func encodeState(total int64) ([]byte, error) {
	data, err := json.MarshalIndent(fileState{Total: &total}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// commit atomically replaces the durable record with total.
func (s *FileStore) commit(total int64) error {
	data, err := encodeState(total)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := fsutil.WriteAtomic(s.path, data, s.rename); err != nil {
		return err
	}

	// The rename is visible; a failed directory sync only weakens durability
	// across power loss, so it is logged rather than reported.
	if err := fsutil.SyncDir(filepath.Dir(s.path)); err != nil {
		s.opts.logger.Warn("failed to sync state directory", zap.String("path", s.path), zap.Error(err))
	}
	return nil
}
