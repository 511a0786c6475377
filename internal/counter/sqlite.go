package counter

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/salawat/internal/db"
	"github.com/hpungsan/salawat/internal/errors"
)

// SQLiteStore keeps the total in the single-row counter table.
// Apply runs in an immediate transaction, so writers in other processes
// sharing the database file are serialized by SQLite's write lock.
type SQLiteStore struct {
	db   *sql.DB
	slot slot
	opts options
	now  func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps a database opened with db.Init.
// The caller keeps ownership of database; Close does not close it.
func NewSQLiteStore(database *sql.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{
		db:   database,
		slot: newSlot(),
		opts: applyOptions(opts),
		now:  time.Now,
	}
}

// Read returns the committed total.
func (s *SQLiteStore) Read(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelled("read", err)
	}
	return db.ReadTotal(ctx, s.db)
}

// Apply adds delta inside one transaction.
func (s *SQLiteStore) Apply(ctx context.Context, delta int64) (int64, error) {
	if err := s.slot.acquire(ctx, s.opts.lockTimeout); err != nil {
		return 0, err
	}
	defer s.slot.release()

	// Cancelling mid-commit could leave the outcome unknown to the caller.
	wctx := context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(wctx, nil)
	if err != nil {
		return 0, errors.NewPersistenceFailure("begin transaction", err)
	}
	defer tx.Rollback()

	total, err := db.ReadTotal(wctx, tx)
	if err != nil {
		return 0, err
	}
	next, err := addChecked(total, delta)
	if err != nil {
		return 0, err
	}
	if err := db.WriteTotal(wctx, tx, next, s.now().Unix()); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewPersistenceFailure("commit", err)
	}
	return next, nil
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteStore) Close() error {
	return nil
}
