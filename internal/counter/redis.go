package counter

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/salawat/internal/errors"
)

// missingMarker is returned by applyScript when the key vanished after initialization.
const missingMarker = "SALAWAT_MISSING"

// applyScript refuses to recreate a missing key; INCRBY alone would silently restart at zero.
var applyScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return redis.error_reply('` + missingMarker + `')
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

// RedisStore keeps the total in one Redis string key.
// Redis executes the apply script atomically, which serializes writers
// across every process sharing the key.
type RedisStore struct {
	key    string
	client redis.UniversalClient
	opts   options
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore initializes key to 0 if it does not exist.
// The caller keeps ownership of client; Close does not close it.
func NewRedisStore(ctx context.Context, client redis.UniversalClient, key string, opts ...Option) (*RedisStore, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.NewInvalidRequest("redis key must not be empty")
	}
	s := &RedisStore{key: key, client: client, opts: applyOptions(opts)}

	created, err := client.SetNX(ctx, key, 0, 0).Result()
	if err != nil {
		return nil, errors.NewPersistenceFailure("initialize redis key", err)
	}
	if created {
		s.opts.logger.Info("initialized counter state")
	}
	return s, nil
}

func (s *RedisStore) location() string {
	return "redis:" + s.key
}

// Read returns the stored total.
func (s *RedisStore) Read(ctx context.Context) (int64, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return 0, errors.NewCorruptState(s.location(), fmt.Errorf("key missing"))
		}
		return 0, s.transportError(ctx, "read total", err)
	}
	total, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.NewCorruptState(s.location(), err)
	}
	return total, nil
}

// Apply runs INCRBY through applyScript.
func (s *RedisStore) Apply(ctx context.Context, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelled("apply", err)
	}

	next, err := applyScript.Run(context.WithoutCancel(ctx), s.client, []string{s.key}, delta).Int64()
	if err == nil {
		return next, nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, missingMarker):
		return 0, errors.NewCorruptState(s.location(), fmt.Errorf("key missing"))
	case strings.Contains(msg, "not an integer"):
		return 0, errors.NewCorruptState(s.location(), err)
	case strings.Contains(msg, "would overflow"):
		total, _ := s.client.Get(ctx, s.key).Int64()
		return 0, errors.NewOverflow(total, delta)
	default:
		return 0, errors.NewPersistenceFailure("apply", err)
	}
}

func (s *RedisStore) transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(op, ctx.Err())
	}
	return errors.NewPersistenceFailure(op, err)
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}
