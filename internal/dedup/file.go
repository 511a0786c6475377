package dedup

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/hpungsan/salawat/internal/errors"
	"github.com/hpungsan/salawat/internal/fsutil"
)

// eventLog is the on-disk form of a FileMarker: key to expiry in Unix nanoseconds.
type eventLog struct {
	Events map[string]int64 `json:"events"`
}

var _ Marker = (*FileMarker)(nil)

// FileMarker records processed keys in a JSON file next to the file-backed
// counter, so duplicates are detected across restarts and across processes
// sharing the state directory.
//
// Every call reloads the log under an advisory lock on <path>.lock, updates it
// through a LocalMarker and writes it back with a temp file and rename.
type FileMarker struct {
	path        string
	lockFile    *os.File
	ttl         time.Duration
	lockTimeout time.Duration
	logger      *zap.Logger
	slot        chan struct{}

	// rename is os.Rename outside of tests.
	rename func(oldpath, newpath string) error
}

// OpenFileMarker opens the event log at path. The log itself is created on
// the first acquired key.
func OpenFileMarker(path string, ttl, lockTimeout time.Duration, logger *zap.Logger) (*FileMarker, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewPersistenceFailure("create event log directory", err)
	}
	lockFile, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, errors.NewPersistenceFailure("open event log lock", err)
	}

	return &FileMarker{
		path:        path,
		lockFile:    lockFile,
		ttl:         ttl,
		lockTimeout: lockTimeout,
		logger:      logger,
		slot:        make(chan struct{}, 1),
		rename:      os.Rename,
	}, nil
}

func (m *FileMarker) Acquire(ctx context.Context, key string) (bool, error) {
	unlock, err := m.lock(ctx, "mark event")
	if err != nil {
		return false, err
	}
	defer unlock()

	local, err := m.load()
	if err != nil {
		return false, err
	}
	if ok, _ := local.Acquire(ctx, key); !ok {
		return false, nil
	}
	if err := m.save(local); err != nil {
		return false, err
	}
	return true, nil
}

func (m *FileMarker) Release(ctx context.Context, key string) error {
	unlock, err := m.lock(ctx, "release event")
	if err != nil {
		return err
	}
	defer unlock()

	local, err := m.load()
	if err != nil {
		return err
	}
	if _, found := local.cache.Get(key); !found {
		return nil
	}
	_ = local.Release(ctx, key)
	return m.save(local)
}

// Close releases the lock file handle.
func (m *FileMarker) Close() error {
	return m.lockFile.Close()
}

// lock serializes callers in this process and then across processes.
func (m *FileMarker) lock(ctx context.Context, op string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled(op, err)
	}
	deadline := time.Now().Add(m.lockTimeout)

	timer := time.NewTimer(m.lockTimeout)
	defer timer.Stop()
	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.NewCancelled(op, ctx.Err())
	case <-timer.C:
		return nil, errors.NewBusy(m.lockTimeout.String())
	}

	if err := fsutil.LockExclusive(ctx, m.lockFile, op, deadline, m.lockTimeout); err != nil {
		<-m.slot
		return nil, err
	}
	return func() {
		if err := fsutil.Unlock(m.lockFile); err != nil {
			m.logger.Warn("failed to release event log lock", zap.String("path", m.path), zap.Error(err))
		}
		<-m.slot
	}, nil
}

// load reads the event log into a LocalMarker. A missing log is empty.
func (m *FileMarker) load() (*LocalMarker, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return newLocalMarkerFrom(m.ttl, nil), nil
		}
		return nil, errors.NewPersistenceFailure("read event log", err)
	}

	var log eventLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, errors.NewCorruptState(m.path, err)
	}
	items := make(map[string]cache.Item, len(log.Events))
	for key, exp := range log.Events {
		items[key] = cache.Item{Object: struct{}{}, Expiration: exp}
	}
	return newLocalMarkerFrom(m.ttl, items), nil
}

// save writes the unexpired keys of local back to the event log.
func (m *FileMarker) save(local *LocalMarker) error {
	items := local.cache.Items()
	log := eventLog{Events: make(map[string]int64, len(items))}
	for key, item := range items {
		log.Events[key] = item.Expiration
	}
	data, err := json.Marshal(log)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := fsutil.WriteAtomic(m.path, data, m.rename); err != nil {
		return err
	}
	if err := fsutil.SyncDir(filepath.Dir(m.path)); err != nil {
		m.logger.Warn("failed to sync event log directory", zap.String("path", m.path), zap.Error(err))
	}
	return nil
}
