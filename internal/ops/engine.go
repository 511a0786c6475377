// Package ops turns inbound events into durable counter mutations.
package ops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/salawat/internal/config"
	"github.com/hpungsan/salawat/internal/counter"
	"github.com/hpungsan/salawat/internal/dedup"
	"github.com/hpungsan/salawat/internal/errors"
	"github.com/hpungsan/salawat/internal/metrics"
)

// Engine owns the path from an event to an applied contribution.
// It is safe for concurrent use; all serialization happens in the Store.
type Engine struct {
	store   counter.Store
	marker  dedup.Marker
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Option func(e *Engine)

func WithLogger(l *zap.Logger) Option {
	return Option(func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	})
}

func WithMetrics(m *metrics.Metrics) Option {
	return Option(func(e *Engine) {
		e.metrics = m
	})
}

// NewEngine builds an Engine. A nil cfg means config.DefaultConfig().
func NewEngine(store counter.Store, marker dedup.Marker, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		store:  store,
		marker: marker,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e
}

// CurrentTotal returns the durable total. It has no side effects besides metrics.
func (e *Engine) CurrentTotal(ctx context.Context) (int64, error) {
	total, err := e.store.Read(ctx)
	if err != nil {
		return 0, err
	}
	e.metrics.Observed(total)
	return total, nil
}

// apply runs amount through the marker and the store.
// duplicate is true when key was already accounted for; nothing is applied then.
// An empty key skips idempotency tracking.
func (e *Engine) apply(ctx context.Context, key string, amount int64) (total int64, duplicate bool, err error) {
	if key != "" {
		ok, err := e.marker.Acquire(ctx, key)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, true, nil
		}
	}

	start := time.Now()
	total, err = e.store.Apply(ctx, amount)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		e.metrics.Failed(string(errors.CodeOf(err)), elapsed)
		if key != "" {
			// The caller may have given up; the marker must still be released
			// or a redelivery would be dropped as a duplicate.
			if rerr := e.marker.Release(context.WithoutCancel(ctx), key); rerr != nil {
				e.logger.Warn("failed to release event marker", zap.String("key", key), zap.Error(rerr))
			}
		}
		return 0, false, err
	}
	e.metrics.Applied(total, elapsed)
	return total, false, nil
}
