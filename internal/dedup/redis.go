package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/salawat/internal/errors"
)

// RedisKeyPrefix namespaces processed event keys.
const RedisKeyPrefix = "salawat:event:"

var _ Marker = (*RedisMarker)(nil)

// RedisMarker uses SETNX with a TTL.
type RedisMarker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisMarker(client redis.UniversalClient, ttl time.Duration) *RedisMarker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisMarker{client: client, ttl: ttl}
}

func (m *RedisMarker) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := m.client.SetNX(ctx, RedisKeyPrefix+key, "v", m.ttl).Result()
	if err != nil {
		return false, errors.NewPersistenceFailure("record event", err)
	}
	return ok, nil
}

func (m *RedisMarker) Release(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		return errors.NewPersistenceFailure("forget event", err)
	}
	return nil
}
