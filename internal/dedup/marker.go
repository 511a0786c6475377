// Package dedup remembers which events have already been accounted for, so a
// redelivered event is never applied twice.
package dedup

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a processed key is remembered when no TTL is given.
const DefaultTTL = 24 * time.Hour

// Marker grants the right to process a key once.
type Marker interface {
	// Acquire returns true if the caller owns the first processing of key.
	Acquire(ctx context.Context, key string) (bool, error)
	// Release forgets key so a later redelivery can retry it.
	Release(ctx context.Context, key string) error
}

var _ Marker = (*LocalMarker)(nil)

// LocalMarker keeps recent keys in memory. On its own it forgets everything
// on restart; FileMarker persists one between calls.
type LocalMarker struct {
	cache *cache.Cache
}

// NewLocalMarker returns a marker remembering keys for ttl.
func NewLocalMarker(ttl time.Duration) *LocalMarker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalMarker{cache: cache.New(ttl, ttl)}
}

// newLocalMarkerFrom restores a marker from saved items. It runs no janitor;
// expired items are ignored by Add and dropped by Items.
func newLocalMarkerFrom(ttl time.Duration, items map[string]cache.Item) *LocalMarker {
	if items == nil {
		items = make(map[string]cache.Item)
	}
	return &LocalMarker{cache: cache.NewFrom(ttl, 0, items)}
}

func (m *LocalMarker) Acquire(_ context.Context, key string) (bool, error) {
	err := m.cache.Add(key, struct{}{}, cache.DefaultExpiration)
	return err == nil, nil
}

func (m *LocalMarker) Release(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}
