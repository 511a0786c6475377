package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/salawat/internal/errors"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// counterLocation identifies the counter row in corruption reports.
const counterLocation = "sqlite:counter(id=1)"

// ReadTotal returns the stored total.
// A missing row or a non-integer value is reported as CORRUPT_STATE.
func ReadTotal(ctx context.Context, q Querier) (int64, error) {
	var (
		typ string
		raw any
	)
	err := q.QueryRowContext(ctx, `SELECT typeof(total), total FROM counter WHERE id = 1`).Scan(&typ, &raw)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return 0, errors.NewCorruptState(counterLocation, fmt.Errorf("counter row missing"))
		}
		return 0, errors.NewPersistenceFailure("read total", err)
	}
	if typ != "integer" {
		return 0, errors.NewCorruptState(counterLocation, fmt.Errorf("total has type %s", typ))
	}
	total, ok := raw.(int64)
	if !ok {
		return 0, errors.NewCorruptState(counterLocation, fmt.Errorf("total scanned as %T", raw))
	}
	return total, nil
}

// WriteTotal overwrites the stored total.
func WriteTotal(ctx context.Context, q Querier, total, updatedAt int64) error {
	res, err := q.ExecContext(ctx, `UPDATE counter SET total = ?, updated_at = ? WHERE id = 1`, total, updatedAt)
	if err != nil {
		return errors.NewPersistenceFailure("write total", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewPersistenceFailure("write total", err)
	}
	if n != 1 {
		return errors.NewCorruptState(counterLocation, fmt.Errorf("counter row missing"))
	}
	return nil
}

// InsertProcessedEvent records key as processed.
// Returns false if key was already recorded.
func InsertProcessedEvent(ctx context.Context, q Querier, key string, processedAt int64) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO processed_events (event_key, processed_at) VALUES (?, ?) ON CONFLICT(event_key) DO NOTHING`,
		key, processedAt,
	)
	if err != nil {
		return false, errors.NewPersistenceFailure("record event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewPersistenceFailure("record event", err)
	}
	return n == 1, nil
}

// DeleteProcessedEvent forgets key.
func DeleteProcessedEvent(ctx context.Context, q Querier, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM processed_events WHERE event_key = ?`, key); err != nil {
		return errors.NewPersistenceFailure("forget event", err)
	}
	return nil
}

// PruneProcessedEvents deletes records processed before cutoff and returns how many were removed.
func PruneProcessedEvents(ctx context.Context, q Querier, cutoff int64) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM processed_events WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, errors.NewPersistenceFailure("prune events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewPersistenceFailure("prune events", err)
	}
	return n, nil
}
