// Package counter owns the durable running total.
//
// Every Store serializes Apply so that concurrent read-modify-write sequences
// can never drop an update. Waiting for the writer slot is bounded by the
// caller's context and by the configured lock timeout; once the slot is held
// the commit runs to completion even if the caller gives up, so a durable
// update is never reported as failed.
package counter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/salawat/internal/errors"
)

// DefaultLockTimeout bounds the wait for the writer slot when no option is given.
const DefaultLockTimeout = 5 * time.Second

// Store is a durable, linearizable integer accumulator.
type Store interface {
	// Read returns the current durable total.
	Read(ctx context.Context) (int64, error)
	// Apply atomically adds delta to the total, persists it and returns the new total.
	Apply(ctx context.Context, delta int64) (int64, error)
	// Close releases resources held by the store.
	Close() error
}

type options struct {
	lockTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a Store.
type Option func(o *options)

// WithLockTimeout bounds how long Apply waits for the writer slot.
func WithLockTimeout(d time.Duration) Option {
	return Option(func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	})
}

// WithLogger sets the logger used for operational warnings.
func WithLogger(l *zap.Logger) Option {
	return Option(func(o *options) {
		if l != nil {
			o.logger = l
		}
	})
}

func applyOptions(opts []Option) options {
	o := options{
		lockTimeout: DefaultLockTimeout,
		logger:      zap.NewNop(),
	}
	for _, e := range opts {
		e(&o)
	}
	return o
}

// slot is a single-writer semaphore whose acquisition can be abandoned.
type slot chan struct{}

func newSlot() slot {
	return make(slot, 1)
}

// acquire takes the slot, giving up when ctx ends or timeout elapses.
func (s slot) acquire(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("apply", err)
	}

	select {
	case s <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.NewCancelled("apply", ctx.Err())
	case <-timer.C:
		return errors.NewBusy(timeout.String())
	}
}

func (s slot) release() {
	<-s
}

// addChecked returns total+delta, refusing to wrap around the int64 range.
func addChecked(total, delta int64) (int64, error) {
	sum := total + delta
	if (delta > 0 && sum < total) || (delta < 0 && sum > total) {
		return 0, errors.NewOverflow(total, delta)
	}
	return sum, nil
}
