package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/magic-code-auth/internal/application/auth"
)

// Storage implements auth.Storage on Redis. Keys are namespaced by Prefix.
type Storage struct {
	rdb    redis.UniversalClient
	Prefix string
}

func New(rdb redis.UniversalClient, prefix string) *Storage {
	return &Storage{rdb: rdb, Prefix: prefix}
}

func (s *Storage) key(k string) string { return s.Prefix + k }

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrNotFound
	}
	return b, err
}

func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
}

// Take uses GETDEL so concurrent callers cannot both read the value.
func (s *Storage) Take(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.GetDel(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrNotFound
	}
	return b, err
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// incrScript sets the expiry only on the first increment.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func (s *Storage) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrScript.Run(ctx, s.rdb, []string{s.key(key)}, ttl.Milliseconds()).Int64()
}

var _ auth.Storage = (*Storage)(nil)
