package dedup

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/salawat/internal/db"
)

var _ Marker = (*SQLiteMarker)(nil)

// SQLiteMarker records keys in the processed_events table, so duplicates are
// detected across restarts and across processes sharing the database.
type SQLiteMarker struct {
	db     *sql.DB
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

// NewSQLiteMarker wraps a database opened with db.Init. Keys older than ttl
// are pruned at most once per ttl/24.
func NewSQLiteMarker(database *sql.DB, ttl time.Duration, logger *zap.Logger) *SQLiteMarker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteMarker{db: database, ttl: ttl, logger: logger, now: time.Now}
}

func (m *SQLiteMarker) Acquire(ctx context.Context, key string) (bool, error) {
	m.maybePrune(ctx)
	return db.InsertProcessedEvent(ctx, m.db, key, m.now().Unix())
}

func (m *SQLiteMarker) Release(ctx context.Context, key string) error {
	return db.DeleteProcessedEvent(ctx, m.db, key)
}

// maybePrune drops expired keys. Failures only delay pruning.
func (m *SQLiteMarker) maybePrune(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	if now.Sub(m.lastPrune) < m.ttl/24 {
		m.mu.Unlock()
		return
	}
	m.lastPrune = now
	m.mu.Unlock()

	n, err := db.PruneProcessedEvents(ctx, m.db, now.Add(-m.ttl).Unix())
	if err != nil {
		m.logger.Warn("failed to prune processed events", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Debug("pruned processed events", zap.Int64("count", n))
	}
}
